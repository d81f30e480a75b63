// Package config loads connection defaults the same way the teacher did:
// an optional .env file in the project root, then environment-variable
// overrides, cached after the first successful load.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DeviceConfig holds the USB identity used to locate the device and the
// timing knobs an operator may want to tune without recompiling.
type DeviceConfig struct {
	USBVendorID  uint16
	USBProductID uint16

	// AckTimeoutMS and IdleTimeoutMS are loaded from DEVICE_ACK_TIMEOUT_MS
	// and DEVICE_IDLE_TIMEOUT_MS. No other package reads them, so they do
	// not change protocol.Config's timings.
	AckTimeoutMS  int
	IdleTimeoutMS int
}

var (
	deviceConfig *DeviceConfig
	configLoaded bool
)

// LoadDeviceConfig reads .env then applies environment overrides, caching
// the result for subsequent calls.
func LoadDeviceConfig() (*DeviceConfig, error) {
	if deviceConfig != nil && configLoaded {
		return deviceConfig, nil
	}

	cfg := &DeviceConfig{}

	projectRoot := findProjectRoot()
	envPath := filepath.Join(projectRoot, ".env")

	data, err := os.ReadFile(envPath)
	if err == nil {
		parseEnvFile(string(data), cfg)
	}

	if vid := os.Getenv("DEVICE_USB_VID"); vid != "" {
		if v, err := parseHexOrDecimal(vid); err == nil {
			cfg.USBVendorID = v
		}
	}
	if pid := os.Getenv("DEVICE_USB_PID"); pid != "" {
		if v, err := parseHexOrDecimal(pid); err == nil {
			cfg.USBProductID = v
		}
	}
	if ack := os.Getenv("DEVICE_ACK_TIMEOUT_MS"); ack != "" {
		if v, err := strconv.Atoi(ack); err == nil {
			cfg.AckTimeoutMS = v
		}
	}
	if idle := os.Getenv("DEVICE_IDLE_TIMEOUT_MS"); idle != "" {
		if v, err := strconv.Atoi(idle); err == nil {
			cfg.IdleTimeoutMS = v
		}
	}

	deviceConfig = cfg
	configLoaded = true
	return cfg, nil
}

func parseEnvFile(content string, cfg *DeviceConfig) {
	lines := strings.Split(content, "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "DEVICE_USB_VID":
			if v, err := parseHexOrDecimal(value); err == nil {
				cfg.USBVendorID = v
			}
		case "DEVICE_USB_PID":
			if v, err := parseHexOrDecimal(value); err == nil {
				cfg.USBProductID = v
			}
		case "DEVICE_ACK_TIMEOUT_MS":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.AckTimeoutMS = v
			}
		case "DEVICE_IDLE_TIMEOUT_MS":
			if v, err := strconv.Atoi(value); err == nil {
				cfg.IdleTimeoutMS = v
			}
		}
	}
}

func parseHexOrDecimal(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}
	v, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

func findProjectRoot() string {
	cwd, _ := os.Getwd()
	if _, err := os.Stat(filepath.Join(cwd, ".env")); err == nil {
		return cwd
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}

// GetUSBVendorID returns the configured vendor id, or 0 if unset.
func GetUSBVendorID() uint16 {
	cfg, err := LoadDeviceConfig()
	if err != nil {
		return 0
	}
	return cfg.USBVendorID
}

// GetUSBProductID returns the configured product id, or 0 if unset.
func GetUSBProductID() uint16 {
	cfg, err := LoadDeviceConfig()
	if err != nil {
		return 0
	}
	return cfg.USBProductID
}

// MustGetDeviceConfig panics unless both USB identifiers are configured,
// mirroring the teacher's fail-fast CLI entry point behavior.
func MustGetDeviceConfig() DeviceConfig {
	cfg, err := LoadDeviceConfig()
	if err != nil {
		panic("DEVICE_USB_VID and DEVICE_USB_PID must be set in .env file or environment")
	}
	if cfg.USBVendorID == 0 || cfg.USBProductID == 0 {
		panic("DEVICE_USB_VID and DEVICE_USB_PID must be set in .env file or environment")
	}
	return *cfg
}
