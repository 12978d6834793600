package settings

import (
	"os"
	"path/filepath"
	"testing"

	"emc2305-go/emc2305"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "emc2305.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Device.Address != emc2305.AddressDefault {
		t.Fatalf("address 0x%02X, want default", byte(s.Device.Address))
	}
	if len(s.Device.Fans) != emc2305.NumChannels {
		t.Fatalf("got %d fans, want %d", len(s.Device.Fans), emc2305.NumChannels)
	}
	if !s.I2C.LockEnabled {
		t.Fatal("lock not enabled by default")
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
i2c:
  bus: "2"
  lock_timeout_ms: 1000
device:
  name: Rack Controller
  address: "0x4D"
  use_external_clock: true
  enable_watchdog: true
  fans:
    1:
      name: Intake
      control_mode: fsc
      default_target_rpm: 4000
log_level: debug
`)
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.I2C.Bus != "2" || s.I2C.LockTimeoutMS != 1000 {
		t.Fatalf("i2c section %+v", s.I2C)
	}
	if s.Device.Address != 0x4D {
		t.Fatalf("address 0x%02X, want 0x4D", byte(s.Device.Address))
	}
	if !s.Device.UseExternalClock || !s.Device.EnableWatchdog {
		t.Fatalf("device section %+v", s.Device)
	}
	if s.LogLevel != "debug" {
		t.Fatalf("log level %q", s.LogLevel)
	}

	fan := s.Device.Fans[1]
	if fan.Name != "Intake" || fan.ControlMode != "fsc" || fan.DefaultTargetRPM != 4000 {
		t.Fatalf("fan 1 %+v", fan)
	}
	// Unlisted fields keep their defaults.
	if fan.Edges != 5 || fan.UpdateTimeMS != 200 {
		t.Fatalf("fan 1 defaults not applied: %+v", fan)
	}
	// Unlisted channels are filled in.
	if len(s.Device.Fans) != emc2305.NumChannels {
		t.Fatalf("got %d fans, want %d", len(s.Device.Fans), emc2305.NumChannels)
	}
	if s.Device.Fans[3].Name != "Fan 3" {
		t.Fatalf("fan 3 %+v", s.Device.Fans[3])
	}
}

func TestLoadIntegerAddress(t *testing.T) {
	path := writeConfig(t, "device:\n  address: 0x2F\n")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Device.Address != 0x2F {
		t.Fatalf("address 0x%02X, want 0x2F", byte(s.Device.Address))
	}
}

func TestLoadRejectsBadAddress(t *testing.T) {
	for _, content := range []string{
		"device:\n  address: \"zz\"\n",
		"device:\n  address: 0x100\n",
	} {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Fatalf("bad address accepted: %q", content)
		}
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "device: [unclosed\n")); err == nil {
		t.Fatal("malformed YAML accepted")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "emc2305.yaml")

	s := Default()
	s.Device.Address = 0x4C
	fan := s.Device.Fans[2]
	fan.Name = "Exhaust"
	fan.ControlMode = "fsc"
	s.Device.Fans[2] = fan

	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Device.Address != 0x4C {
		t.Fatalf("address 0x%02X, want 0x4C", byte(got.Device.Address))
	}
	if got.Device.Fans[2].Name != "Exhaust" || got.Device.Fans[2].ControlMode != "fsc" {
		t.Fatalf("fan 2 %+v", got.Device.Fans[2])
	}
}

func TestCreateDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emc2305.yaml")
	if err := CreateDefault(path); err != nil {
		t.Fatalf("CreateDefault: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Device.Fans[1].Name != "CPU Fan" || s.Device.Fans[1].ControlMode != "fsc" {
		t.Fatalf("fan 1 %+v", s.Device.Fans[1])
	}
	if s.Device.Fans[5].Enabled {
		t.Fatal("spare fan enabled in starter config")
	}
}

func TestFanConfigConversion(t *testing.T) {
	fan := DefaultFan("Test")
	fan.ControlMode = "fsc"
	fan.MinRPM = 1000
	fan.MaxRPM = 4500
	fan.MinDutyPercent = 25
	fan.PIDGainP = 4

	cfg := fan.FanConfig()
	if cfg.ControlMode != emc2305.ModeFSC {
		t.Fatalf("mode %v, want fsc", cfg.ControlMode)
	}
	if cfg.MinRPM != 1000 || cfg.MaxRPM != 4500 {
		t.Fatalf("rpm bounds %d-%d", cfg.MinRPM, cfg.MaxRPM)
	}
	if cfg.MinDrivePercent != 25 || cfg.PIDGainP != 4 {
		t.Fatalf("cfg %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("converted config invalid: %v", err)
	}
}

func TestDeviceConfigConversion(t *testing.T) {
	s := Default()
	s.Device.Address = 0x2E
	s.Device.UseExternalClock = true
	s.Device.PWMPolarityInverted = true

	cfg := s.DeviceConfig()
	if cfg.Address != 0x2E || !cfg.UseExternalClock || !cfg.InvertPolarity {
		t.Fatalf("device config %+v", cfg)
	}
}

func TestBusConfigLockDisabled(t *testing.T) {
	s := Default()
	s.I2C.LockEnabled = false
	if cfg := s.BusConfig(); cfg.LockPath != "" {
		t.Fatalf("lock path %q with locking disabled", cfg.LockPath)
	}

	s.I2C.LockEnabled = true
	if cfg := s.BusConfig(); cfg.LockPath == "" {
		t.Fatal("lock path empty with locking enabled")
	}
}
