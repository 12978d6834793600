// Package settings loads and saves the fan controller configuration
// file. The file is YAML; missing keys fall back to defaults, and a
// missing file yields the default configuration rather than an error.
package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"emc2305-go/emc2305"
	"emc2305-go/i2cbus"
)

// Address is a 7-bit I2C address that accepts either a YAML integer
// (including 0x-prefixed, which YAML parses natively) or a quoted hex
// string like "0x61".
type Address byte

func (a *Address) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var n int
	if err := unmarshal(&n); err == nil {
		if n < 0 || n > 0x7F {
			return fmt.Errorf("settings: address 0x%X out of 7-bit range", n)
		}
		*a = Address(n)
		return nil
	}
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	n64, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return fmt.Errorf("settings: bad address %q: %w", s, err)
	}
	if n64 > 0x7F {
		return fmt.Errorf("settings: address 0x%X out of 7-bit range", n64)
	}
	*a = Address(n64)
	return nil
}

func (a Address) MarshalYAML() (interface{}, error) {
	return fmt.Sprintf("0x%02X", byte(a)), nil
}

// I2C configures the bus transport.
type I2C struct {
	// Bus is the periph bus name, e.g. "1" or "/dev/i2c-1".
	Bus string `yaml:"bus"`

	LockEnabled   bool   `yaml:"lock_enabled"`
	LockPath      string `yaml:"lock_path"`
	LockTimeoutMS int    `yaml:"lock_timeout_ms"`
}

// Fan is one channel's configuration plus the policy values (names,
// default targets) that live in the file but not in the device.
type Fan struct {
	Name        string `yaml:"name"`
	Enabled     bool   `yaml:"enabled"`
	ControlMode string `yaml:"control_mode"` // "pwm" or "fsc"

	MinRPM           int `yaml:"min_rpm"`
	MaxRPM           int `yaml:"max_rpm"`
	DefaultTargetRPM int `yaml:"default_target_rpm"`

	MinDutyPercent     int `yaml:"min_duty_percent"`
	MaxDutyPercent     int `yaml:"max_duty_percent"`
	DefaultDutyPercent int `yaml:"default_duty_percent"`

	UpdateTimeMS int `yaml:"update_time_ms"`
	Edges        int `yaml:"edges"`
	MaxStep      int `yaml:"max_step"`
	PWMDivide    int `yaml:"pwm_divide"`

	SpinUpLevelPercent int `yaml:"spin_up_level_percent"`
	SpinUpTimeMS       int `yaml:"spin_up_time_ms"`

	PIDGainP int `yaml:"pid_gain_p"`
	PIDGainI int `yaml:"pid_gain_i"`
	PIDGainD int `yaml:"pid_gain_d"`
}

func (f *Fan) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain Fan
	p := plain(DefaultFan(""))
	if err := unmarshal(&p); err != nil {
		return err
	}
	*f = Fan(p)
	return nil
}

// Device configures the controller itself.
type Device struct {
	Name    string  `yaml:"name"`
	Address Address `yaml:"address"`
	Enabled bool    `yaml:"enabled"`

	UseExternalClock bool `yaml:"use_external_clock"`

	PWMFrequencyHz      int  `yaml:"pwm_frequency_hz"`
	PWMPolarityInverted bool `yaml:"pwm_polarity_inverted"`
	PWMOutputPushPull   bool `yaml:"pwm_output_push_pull"`

	EnableWatchdog bool `yaml:"enable_watchdog"`
	EnableAlerts   bool `yaml:"enable_alerts"`

	Fans map[int]Fan `yaml:"fans"`
}

func (d *Device) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain Device
	p := plain(DefaultDevice())
	p.Fans = nil
	if err := unmarshal(&p); err != nil {
		return err
	}
	*d = Device(p)
	d.fillMissingFans()
	return nil
}

func (d *Device) fillMissingFans() {
	if d.Fans == nil {
		d.Fans = make(map[int]Fan, emc2305.NumChannels)
	}
	for ch := 1; ch <= emc2305.NumChannels; ch++ {
		if _, ok := d.Fans[ch]; !ok {
			d.Fans[ch] = DefaultFan(fmt.Sprintf("Fan %d", ch))
		}
	}
}

// Settings is the root of the configuration file.
type Settings struct {
	I2C      I2C    `yaml:"i2c"`
	Device   Device `yaml:"device"`
	LogLevel string `yaml:"log_level"`
}

// DefaultFan returns the channel defaults used for absent entries.
func DefaultFan(name string) Fan {
	if name == "" {
		name = "Fan"
	}
	return Fan{
		Name:               name,
		Enabled:            true,
		ControlMode:        "pwm",
		MinRPM:             emc2305.MinRPM,
		MaxRPM:             emc2305.MaxRPMInternal,
		DefaultTargetRPM:   2000,
		MinDutyPercent:     20,
		MaxDutyPercent:     100,
		DefaultDutyPercent: 50,
		UpdateTimeMS:       200,
		Edges:              5,
		MaxStep:            31,
		PWMDivide:          1,
		SpinUpLevelPercent: 50,
		SpinUpTimeMS:       500,
		PIDGainP:           2,
		PIDGainI:           1,
		PIDGainD:           1,
	}
}

// DefaultDevice returns the controller defaults with all five channels
// present.
func DefaultDevice() Device {
	d := Device{
		Name:           "EMC2305 Fan Controller",
		Address:        emc2305.AddressDefault,
		Enabled:        true,
		PWMFrequencyHz: 26000,
		EnableAlerts:   true,
	}
	d.fillMissingFans()
	return d
}

// Default returns the full default configuration.
func Default() *Settings {
	return &Settings{
		I2C: I2C{
			Bus:           "1",
			LockEnabled:   true,
			LockPath:      "/var/lock/emc2305.lock",
			LockTimeoutMS: 5000,
		},
		Device:   DefaultDevice(),
		LogLevel: "info",
	}
}

// DefaultLocations are the search paths used when Load is given no
// explicit file, in order of preference.
func DefaultLocations() []string {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "emc2305", "emc2305.yaml"))
	}
	return append(paths, "/etc/emc2305/emc2305.yaml")
}

// Load reads the configuration from path, or from the first existing
// default location when path is empty. No file at all is not an error:
// the defaults are returned.
func Load(path string) (*Settings, error) {
	if path == "" {
		for _, p := range DefaultLocations() {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
	}
	if path == "" {
		return Default(), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}

	s := Default()
	if err := yaml.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return s, nil
}

// Save writes the configuration to path, creating parent directories as
// needed.
func (s *Settings) Save(path string) error {
	raw, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("settings: mkdir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("settings: write %s: %w", path, err)
	}
	return nil
}

// CreateDefault writes a starter configuration with named channels to
// path.
func CreateDefault(path string) error {
	s := Default()

	cpu := DefaultFan("CPU Fan")
	cpu.ControlMode = "fsc"
	cpu.DefaultTargetRPM = 3000
	cpu.MinRPM = 1000
	cpu.MaxRPM = 4500

	case1 := DefaultFan("Case Fan 1")
	case1.DefaultDutyPercent = 40
	case1.MinDutyPercent = 30

	case2 := DefaultFan("Case Fan 2")
	case2.DefaultDutyPercent = 40
	case2.MinDutyPercent = 30

	exhaust := DefaultFan("Exhaust Fan")
	exhaust.DefaultDutyPercent = 50
	exhaust.MinDutyPercent = 30

	spare := DefaultFan("Spare Fan")
	spare.Enabled = false
	spare.DefaultDutyPercent = 0

	s.Device.Fans = map[int]Fan{1: cpu, 2: case1, 3: case2, 4: exhaust, 5: spare}
	return s.Save(path)
}

// BusConfig converts the I2C section to the transport configuration.
func (s *Settings) BusConfig() i2cbus.LinuxConfig {
	cfg := i2cbus.LinuxConfig{
		Bus:         s.I2C.Bus,
		LockTimeout: time.Duration(s.I2C.LockTimeoutMS) * time.Millisecond,
		// The part wants a short bus-idle gap between transactions.
		SettleDelay: time.Millisecond,
	}
	if s.I2C.LockEnabled {
		cfg.LockPath = s.I2C.LockPath
	}
	return cfg
}

// DeviceConfig converts the device section to the driver configuration.
func (s *Settings) DeviceConfig() emc2305.Config {
	return emc2305.Config{
		Address:          byte(s.Device.Address),
		UseExternalClock: s.Device.UseExternalClock,
		EnableWatchdog:   s.Device.EnableWatchdog,
		PWMFrequencyHz:   s.Device.PWMFrequencyHz,
		InvertPolarity:   s.Device.PWMPolarityInverted,
		PushPullOutput:   s.Device.PWMOutputPushPull,
	}
}

// FanConfig converts one channel entry to the driver's per-channel
// configuration. File-only policy fields (name, default targets) are not
// part of the result.
func (f Fan) FanConfig() emc2305.FanConfig {
	cfg := emc2305.DefaultFanConfig()
	cfg.Enabled = f.Enabled
	if f.ControlMode == "fsc" {
		cfg.ControlMode = emc2305.ModeFSC
	} else {
		cfg.ControlMode = emc2305.ModePWM
	}
	cfg.MinRPM = f.MinRPM
	cfg.MaxRPM = f.MaxRPM
	cfg.MinDrivePercent = f.MinDutyPercent
	cfg.MaxStep = f.MaxStep
	cfg.UpdateTimeMS = f.UpdateTimeMS
	cfg.Edges = f.Edges
	cfg.SpinUpLevelPercent = f.SpinUpLevelPercent
	cfg.SpinUpTimeMS = f.SpinUpTimeMS
	cfg.PIDGainP = f.PIDGainP
	cfg.PIDGainI = f.PIDGainI
	cfg.PIDGainD = f.PIDGainD
	cfg.PWMDivide = f.PWMDivide
	return cfg
}
