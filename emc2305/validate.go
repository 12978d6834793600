package emc2305

import "fmt"

// Single-value validators. Every public entry point runs these before it
// touches the bus, so malformed input never reaches the transport layer.

func validateChannel(channel int) error {
	if channel < 1 || channel > NumChannels {
		return validationErr("channel", channel, allowedRange(1, NumChannels))
	}
	return nil
}

func validatePercent(percent float64) error {
	if percent < 0 || percent > 100 {
		return validationErr("percent", percent, allowedRange(0, 100))
	}
	return nil
}

func validateRPM(rpm, minRPM, maxRPM int) error {
	if rpm < 0 {
		return validationErr("rpm", rpm, "non-negative")
	}
	if rpm < minRPM || rpm > maxRPM {
		return validationErr("rpm", rpm, allowedRange(minRPM, maxRPM))
	}
	return nil
}

func validateGain(name string, gain int, allowed []int) error {
	for _, v := range allowed {
		if gain == v {
			return nil
		}
	}
	return validationErr(name, gain, allowedSet(allowed))
}

var (
	validPGains       = []int{1, 2, 4, 8}
	validIDGains      = []int{0, 1, 2, 4, 8, 16, 32}
	validUpdateTimes  = []int{100, 200, 300, 400, 500, 800, 1200, 1600}
	validEdgeCounts   = []int{3, 5, 7, 9}
	validSpinUpLevels = []int{30, 35, 40, 45, 50, 55, 60, 65}
	validErrorRanges  = []int{0, 50, 100, 200}
)

// Validate checks every field of the configuration against its allowed
// domain. The RPM bound ordering is checked first; after that, fields are
// checked independently and the first violation is reported with the field
// name, the offending value, and the allowed set.
func (c FanConfig) Validate() error {
	if c.MinRPM >= c.MaxRPM {
		return validationErr("min_rpm", c.MinRPM,
			fmt.Sprintf("less than max_rpm (%d)", c.MaxRPM))
	}
	if err := validateRPM(c.MinRPM, MinRPM, MaxRPMInternal); err != nil {
		return err
	}
	if err := validateRPM(c.MaxRPM, MinRPM, MaxRPMInternal); err != nil {
		return err
	}
	if c.MinDrivePercent < 0 || c.MinDrivePercent > 100 {
		return validationErr("min_drive_percent", c.MinDrivePercent, allowedRange(0, 100))
	}
	if c.MaxStep < 0 || c.MaxStep > 63 {
		return validationErr("max_step", c.MaxStep, allowedRange(0, 63))
	}
	if !containsInt(validUpdateTimes, c.UpdateTimeMS) {
		return validationErr("update_time_ms", c.UpdateTimeMS, allowedSet(validUpdateTimes))
	}
	if !containsInt(validEdgeCounts, c.Edges) {
		return validationErr("edges", c.Edges, allowedSet(validEdgeCounts))
	}
	if c.SpinUpTimeMS < 0 || c.SpinUpTimeMS > 1550 {
		return validationErr("spin_up_time_ms", c.SpinUpTimeMS, allowedRange(0, 1550))
	}
	if !containsInt(validSpinUpLevels, c.SpinUpLevelPercent) {
		return validationErr("spin_up_level_percent", c.SpinUpLevelPercent, allowedSet(validSpinUpLevels))
	}
	if err := validateGain("pid_gain_p", c.PIDGainP, validPGains); err != nil {
		return err
	}
	if err := validateGain("pid_gain_i", c.PIDGainI, validIDGains); err != nil {
		return err
	}
	if err := validateGain("pid_gain_d", c.PIDGainD, validIDGains); err != nil {
		return err
	}
	if c.PWMDivide < 1 || c.PWMDivide > 255 {
		return validationErr("pwm_divide", c.PWMDivide, allowedRange(1, 255))
	}
	if !containsInt(validErrorRanges, c.ErrorRangeRPM) {
		return validationErr("error_range_rpm", c.ErrorRangeRPM, allowedSet(validErrorRanges))
	}
	if c.DerivativeMode < 0 || c.DerivativeMode > 7 {
		return validationErr("derivative_mode", c.DerivativeMode, allowedRange(0, 7))
	}
	// 0 disables the band; anything else must be a measurable RPM, or the
	// builder's conversion would quietly disable the feature.
	if c.DriveFailBandRPM != 0 &&
		(c.DriveFailBandRPM < MinRPM || c.DriveFailBandRPM > MaxRPMInternal) {
		return validationErr("drive_fail_band_rpm", c.DriveFailBandRPM,
			fmt.Sprintf("0 to disable, else %s", allowedRange(MinRPM, MaxRPMInternal)))
	}
	if c.ValidTachCount < 0 || c.ValidTachCount > tachCountMax {
		return validationErr("valid_tach_count", c.ValidTachCount, allowedRange(0, tachCountMax))
	}
	return nil
}

func containsInt(set []int, v int) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func allowedRange(lo, hi int) string {
	return fmt.Sprintf("in %d-%d", lo, hi)
}

func allowedSet(set []int) string {
	return fmt.Sprintf("one of %v", set)
}
