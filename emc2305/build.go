package emc2305

import "emc2305-go/x/mathx"

// regWrite is one (register, value) pair produced by the builder.
type regWrite struct {
	reg byte
	val byte
}

// Enumerated bit-pattern fields as fixed lookup tables. Each table carries
// an explicit default used when a value is not in the table; validated
// configurations never take that path, but the builder tolerates it.

type codeEntry struct {
	value int
	bits  byte
}

var updateTimeCodes = []codeEntry{
	{100, 0x00},
	{200, 0x20},
	{300, 0x40},
	{400, 0x60},
	{500, 0x80},
	{800, 0xA0},
	{1200, 0xC0},
	{1600, 0xE0},
}

// defaultUpdateTimeBits is 200ms. 500ms breaks direct PWM control on this
// part, so the fallback is the factory default, not the mid-range value.
const defaultUpdateTimeBits = 0x20

var edgesCodes = []codeEntry{
	{3, 0x00},
	{5, 0x08},
	{7, 0x10},
	{9, 0x18},
}

const defaultEdgesBits = 0x08 // 5 edges, 2-pole

var errorRangeCodes = []codeEntry{
	{0, 0x00},
	{50, 0x40},
	{100, 0x80},
	{200, 0xC0},
}

var derivativeOptionCodes = []codeEntry{
	{0, 0x00},
	{1, 0x08},
	{2, 0x10},
	{3, 0x18},
	{4, 0x20},
	{5, 0x28},
	{6, 0x30},
	{7, 0x38},
}

var gainPCodes = []codeEntry{
	{1, 0x00},
	{2, 0x40},
	{4, 0x80},
	{8, 0xC0},
}

const defaultGainPBits = 0x40 // 2x

var gainICodes = []codeEntry{
	{0, 0x00},
	{1, 0x08},
	{2, 0x10},
	{4, 0x18},
	{8, 0x20},
	{16, 0x28},
	{32, 0x30},
}

const defaultGainIBits = 0x08 // 1x

var gainDCodes = []codeEntry{
	{0, 0x00},
	{1, 0x01},
	{2, 0x02},
	{4, 0x03},
	{8, 0x04},
	{16, 0x05},
	{32, 0x06},
}

const defaultGainDBits = 0x01 // 1x

var spinUpLevelCodes = []codeEntry{
	{30, 0x00},
	{35, 0x20},
	{40, 0x40},
	{45, 0x60},
	{50, 0x80},
	{55, 0xA0},
	{60, 0xC0},
	{65, 0xE0},
}

func lookupCode(table []codeEntry, value int, def byte) byte {
	for _, e := range table {
		if e.value == value {
			return e.bits
		}
	}
	return def
}

// closestSpinUpLevel picks the table entry with the smallest absolute
// distance to the requested percent; ties resolve to the lower level.
func closestSpinUpLevel(percent int) byte {
	best := spinUpLevelCodes[0]
	for _, e := range spinUpLevelCodes[1:] {
		if mathx.Abs(e.value-percent) < mathx.Abs(best.value-percent) {
			best = e
		}
	}
	return best.bits
}

// buildConfig1 packs the CONFIG1 byte: update-time field, edges field, and
// the FSC-enable plus ramp-rate-control bits (both set iff FSC mode).
func buildConfig1(cfg FanConfig) byte {
	b := lookupCode(updateTimeCodes, cfg.UpdateTimeMS, defaultUpdateTimeBits)
	b |= lookupCode(edgesCodes, cfg.Edges, defaultEdgesBits)
	if cfg.ControlMode == ModeFSC {
		b |= fanCfg1EnAlgo | fanCfg1EnRRC
	}
	return b
}

// buildConfig2 packs the CONFIG2 byte: error-range field, derivative
// option, glitch filter bit, and the RPM range bit selected by the clock
// source.
func buildConfig2(cfg FanConfig, clock ClockSource) byte {
	b := lookupCode(errorRangeCodes, cfg.ErrorRangeRPM, 0x00)
	b |= lookupCode(derivativeOptionCodes, cfg.DerivativeMode, 0x00)
	if cfg.GlitchFilterEnabled {
		b |= fanCfg2GlitchEn
	}
	if clock == ClockExternal {
		b |= fanCfg2Rng1KTo32
	} else {
		b |= fanCfg2Rng500To16
	}
	return b
}

// buildGain packs the GAIN byte from the three enumerated multipliers.
// The fields are bit patterns, not linear scales.
func buildGain(cfg FanConfig) byte {
	b := lookupCode(gainPCodes, cfg.PIDGainP, defaultGainPBits)
	b |= lookupCode(gainICodes, cfg.PIDGainI, defaultGainIBits)
	b |= lookupCode(gainDCodes, cfg.PIDGainD, defaultGainDBits)
	return b
}

// buildSpinUp packs the spin-up byte: closest drive level ORed with the
// time in 50ms units clamped to 0-31.
func buildSpinUp(cfg FanConfig) byte {
	b := closestSpinUpLevel(cfg.SpinUpLevelPercent)
	t := mathx.Clamp(cfg.SpinUpTimeMS/spinUpTimeUnitMS, 0, spinUpTimeMaxValue)
	return b | byte(t)
}

// fanRegisterWrites builds the full register sequence applying cfg to a
// channel's block. Pure: no bus access, no state. Drive-fail band of 0
// disables the feature by writing zero to both band registers. The low
// band register takes (count >> 3) & 0xFF and the high register
// (count >> 11) & 0x1F; the shift conventions were confirmed against
// hardware.
func fanRegisterWrites(channel int, cfg FanConfig, clock ClockSource) []regWrite {
	base := fanRegBase(channel)
	off := func(reg byte) byte { return base + (reg - regFan1Setting) }

	writes := []regWrite{
		{off(regFan1PWMDivide), byte(mathx.Clamp(cfg.PWMDivide, 1, 255))},
		{off(regFan1Config1), buildConfig1(cfg)},
		{off(regFan1Config2), buildConfig2(cfg, clock)},
		{off(regFan1Gain), buildGain(cfg)},
		{off(regFan1SpinUpConfig), buildSpinUp(cfg)},
		{off(regFan1MaxStep), byte(cfg.MaxStep)},
		{off(regFan1MinimumDrive), percentToPWM(float64(cfg.MinDrivePercent))},
		{off(regFan1ValidTachCount), byte(cfg.ValidTachCount >> tachCountHighShift)},
	}

	var bandLow, bandHigh byte
	if cfg.DriveFailBandRPM > 0 {
		// Validated configs keep the band inside the RPM range, so the
		// conversion cannot fail here; fall back to disabled if it does.
		count, err := rpmToTachCount(cfg.DriveFailBandRPM, clock, polesForEdges(cfg.Edges))
		if err == nil {
			bandLow = byte(count >> driveFailLowShift)
			bandHigh = byte(count>>driveFailHighShift) & driveFailHighMask
		}
	}
	writes = append(writes,
		regWrite{off(regFan1DriveFailBandLow), bandLow},
		regWrite{off(regFan1DriveFailBandHigh), bandHigh},
	)
	return writes
}
