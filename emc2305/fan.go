package emc2305

// ControlMode selects how a channel drives its fan.
type ControlMode uint8

const (
	// ModePWM is direct duty-cycle control.
	ModePWM ControlMode = iota
	// ModeFSC is closed-loop RPM control using the device's PID algorithm.
	ModeFSC
)

func (m ControlMode) String() string {
	if m == ModeFSC {
		return "fsc"
	}
	return "pwm"
}

// Status is the operational state of one fan channel.
type Status uint8

const (
	StatusOK Status = iota
	StatusStalled
	StatusSpinFailure
	StatusDriveFailure
	StatusUnknown
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusStalled:
		return "stalled"
	case StatusSpinFailure:
		return "spin_failure"
	case StatusDriveFailure:
		return "drive_failure"
	default:
		return "unknown"
	}
}

// FanConfig holds the per-channel settings committed to the channel's
// register block. Values outside the enumerations in Validate are rejected
// before any register write.
type FanConfig struct {
	Enabled     bool
	ControlMode ControlMode

	// RPM bounds for FSC mode. MinRPM must be below MaxRPM.
	MinRPM int
	MaxRPM int

	// MinDrivePercent floors the drive to prevent stall oscillation.
	MinDrivePercent int

	// MaxStep limits the drive change per update (0-63).
	MaxStep int

	// UpdateTimeMS is the control loop period: one of
	// 100/200/300/400/500/800/1200/1600. 500ms is known to break direct
	// PWM control on this part; 200ms is the factory default.
	UpdateTimeMS int

	// Edges per revolution reported by the tach: 3/5/7/9 for 1-4 pole fans.
	Edges int

	// Spin-up drive level (one of 30/35/40/45/50/55/60/65 percent) and
	// duration (0-1550ms in 50ms steps).
	SpinUpLevelPercent int
	SpinUpTimeMS       int

	// PID gain multipliers: P in {1,2,4,8}, I and D in {0,1,2,4,8,16,32}.
	PIDGainP int
	PIDGainI int
	PIDGainD int

	// PWMDivide divides the base PWM frequency (1-255).
	PWMDivide int

	// ErrorRangeRPM is the FSC error window: 0, 50, 100 or 200 RPM.
	ErrorRangeRPM int

	// DerivativeMode selects the derivative option (0-7).
	DerivativeMode int

	// GlitchFilterEnabled enables tach input glitch filtering.
	GlitchFilterEnabled bool

	// DriveFailBandRPM arms aging-fan detection; 0 disables it.
	DriveFailBandRPM int

	// ValidTachCount is the minimum tach count treated as a spinning fan
	// (0-0x1FFF).
	ValidTachCount int
}

// DefaultFanConfig returns the per-channel defaults applied at init:
// direct PWM, 200ms update, 2-pole fan, 50%/500ms spin-up, conservative
// PID gains, unrestricted minimum drive.
func DefaultFanConfig() FanConfig {
	return FanConfig{
		Enabled:             true,
		ControlMode:         ModePWM,
		MinRPM:              MinRPM,
		MaxRPM:              MaxRPMInternal,
		MinDrivePercent:     0,
		MaxStep:             31,
		UpdateTimeMS:        200,
		Edges:               5,
		SpinUpLevelPercent:  50,
		SpinUpTimeMS:        500,
		PIDGainP:            2,
		PIDGainI:            1,
		PIDGainD:            1,
		PWMDivide:           1,
		ErrorRangeRPM:       0,
		DerivativeMode:      0,
		GlitchFilterEnabled: true,
		DriveFailBandRPM:    0,
		ValidTachCount:      0x0FFF,
	}
}

// FanState is a point-in-time snapshot of one channel, recomputed from
// live register reads on demand and never cached.
type FanState struct {
	Channel     int
	Enabled     bool
	ControlMode ControlMode
	PWMPercent  float64
	TargetRPM   int
	CurrentRPM  int
	Status      Status
}

// ProductFeatures describes the device capabilities read at detection.
type ProductFeatures struct {
	FanChannels         int
	RPMControlSupported bool
	ProductID           byte
	ManufacturerID      byte
	Revision            byte
}
