package constants

import "github.com/Masterminds/semver/v3"

// Version is the agent release, overridden at link time with
// -ldflags "-X github.com/benmeehan/gpio-agent/internal/constants.Version=...".
var Version = "1.3.0"

// FirmwareVersion parses Version. Unparseable build stamps fall back to 0.0.0.
func FirmwareVersion() *semver.Version {
	v, err := semver.NewVersion(Version)
	if err != nil {
		return semver.MustParse("0.0.0")
	}
	return v
}
