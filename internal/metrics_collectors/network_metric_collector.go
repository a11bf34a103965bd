package metrics_collectors

import (
	"context"
	"fmt"
	"strings"

	"github.com/benmeehan/gpio-agent/internal/models"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/net"
)

// NetworkMetricCollector reports the first IPv4 address of an interface that
// is up and not loopback.
type NetworkMetricCollector struct {
	Logger zerolog.Logger
}

// Name returns the identifier for the network collector.
func (n *NetworkMetricCollector) Name() string {
	return "network"
}

// Collect stores the device IP address.
func (n *NetworkMetricCollector) Collect(ctx context.Context, status *models.DeviceStatus) error {
	ifaces, err := net.InterfacesWithContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to list network interfaces: %w", err)
	}

	if ip := firstIPv4(ifaces); ip != "" {
		status.IP = ip
		n.Logger.Debug().Str("ip", ip).Msg("Network address collected")
	}
	return nil
}

func firstIPv4(ifaces []net.InterfaceStat) string {
	for _, iface := range ifaces {
		if !hasFlag(iface.Flags, "up") || hasFlag(iface.Flags, "loopback") {
			continue
		}
		for _, addr := range iface.Addrs {
			ip, _, _ := strings.Cut(addr.Addr, "/")
			if strings.Count(ip, ".") == 3 {
				return ip
			}
		}
	}
	return ""
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}

// IsEnabled checks if network monitoring is enabled in the configuration.
func (n *NetworkMetricCollector) IsEnabled(config *models.StatusConfig) bool {
	return config.MonitorNetwork
}
