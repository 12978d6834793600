package emc2305

import (
	"emc2305-go/x/mathx"
)

// ClockSource selects the tachometer reference clock. It is fixed at
// controller construction and never changes for the device's lifetime.
type ClockSource uint8

const (
	// ClockInternal is the on-die 32kHz oscillator.
	ClockInternal ClockSource = iota
	// ClockExternal is a 32.768kHz crystal on the CLK pin.
	ClockExternal
)

// Hz returns the reference frequency for the source.
func (c ClockSource) Hz() int {
	if c == ClockExternal {
		return 32768
	}
	return 32000
}

// MaxRPM returns the top of the supported RPM range for the source.
func (c ClockSource) MaxRPM() int {
	if c == ClockExternal {
		return MaxRPMExternal
	}
	return MaxRPMInternal
}

// percentToPWM converts a duty percentage (0-100, fractions allowed) to the
// 8-bit register value. Truncating, so the round trip through pwmToPercent
// can lose up to one 1/255 step.
func percentToPWM(percent float64) byte {
	return byte(percent * maxPWMValue / 100.0)
}

// pwmToPercent converts an 8-bit register value to a duty percentage.
func pwmToPercent(pwm byte) float64 {
	return float64(pwm) / maxPWMValue * 100.0
}

// rpmToTachCount converts a target RPM to the 13-bit tachometer count:
//
//	count = clockHz * 60 / (rpm * poles)
//
// rpm 0 maps to the maximum count (fan stopped). Out-of-range RPM for the
// clock source is a ValidationError.
func rpmToTachCount(rpm int, clock ClockSource, poles int) (int, error) {
	if rpm == 0 {
		return tachCountMax, nil
	}
	if rpm < MinRPM || rpm > clock.MaxRPM() {
		return 0, validationErr("rpm", rpm,
			allowedRange(MinRPM, clock.MaxRPM()))
	}
	count := clock.Hz() * 60 / (rpm * poles)
	return mathx.Clamp(count, 0, tachCountMax), nil
}

// tachCountToRPM converts a 13-bit tachometer count back to RPM:
//
//	rpm = clockHz * 60 / (count * poles)
//
// where poles = (edges-1)/2, defaulting to 2 if that yields zero. A count
// of 0 reads as 0 RPM. The pair rpmToTachCount/tachCountToRPM is integer
// quantised and therefore lossy; expect round trips within measurement
// tolerance, not bit-exact values.
func tachCountToRPM(count, edges int, clock ClockSource) (int, error) {
	if count == 0 {
		return 0, nil
	}
	if count < 0 || count > tachCountMax {
		return 0, validationErr("tach count", count, allowedRange(0, tachCountMax))
	}
	if !validEdges(edges) {
		return 0, validationErr("edges", edges, "one of 3, 5, 7, 9")
	}
	poles := (edges - 1) / 2
	if poles == 0 {
		poles = 2
	}
	return clock.Hz() * 60 / (count * poles), nil
}

// polesForEdges maps a tach edge count to fan poles, defaulting to 2-pole.
func polesForEdges(edges int) int {
	poles := (edges - 1) / 2
	if poles == 0 {
		poles = 2
	}
	return poles
}

func validEdges(edges int) bool {
	switch edges {
	case 3, 5, 7, 9:
		return true
	}
	return false
}

// pwmFreqCode maps a requested base frequency in Hz onto the nearest
// supported code by threshold.
func pwmFreqCode(freqHz int) (code byte, actualHz int) {
	switch {
	case freqHz >= 20000:
		return pwmFreqCode26000, 26000
	case freqHz >= 12000:
		return pwmFreqCode19531, 19531
	case freqHz >= 3500:
		return pwmFreqCode4882, 4882
	default:
		return pwmFreqCode2441, 2441
	}
}
