package models

// StatusConfig selects which host collectors contribute to the device status.
type StatusConfig struct {
	MonitorCPU     bool `yaml:"monitor_cpu"`
	MonitorMemory  bool `yaml:"monitor_memory"`
	MonitorNetwork bool `yaml:"monitor_network"`
	MonitorHost    bool `yaml:"monitor_host"`
}
