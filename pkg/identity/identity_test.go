package identity_test

import (
	"path/filepath"
	"testing"

	"github.com/benmeehan/gpio-agent/pkg/file"
	"github.com/benmeehan/gpio-agent/pkg/identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDeviceInfo_GeneratesAndPersistsID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	fileClient := file.NewFileService()

	first := identity.NewDeviceInfo(path, fileClient)
	require.NoError(t, first.LoadDeviceInfo())
	_, err := uuid.Parse(first.GetDeviceID())
	require.NoError(t, err)

	second := identity.NewDeviceInfo(path, fileClient)
	require.NoError(t, second.LoadDeviceInfo())
	assert.Equal(t, first.GetDeviceID(), second.GetDeviceID())
}

func TestLoadDeviceInfo_KeepsExistingID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "device.json")
	fileClient := file.NewFileService()
	require.NoError(t, fileClient.WriteJsonFile(path, identity.Identity{ID: "kitchen-relay", Name: "Kitchen"}))

	info := identity.NewDeviceInfo(path, fileClient)
	require.NoError(t, info.LoadDeviceInfo())
	assert.Equal(t, "kitchen-relay", info.GetDeviceID())
	assert.Equal(t, "Kitchen", info.GetDeviceName())
}
