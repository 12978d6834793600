// Package emc2305 provides a driver for the SMSC/Microchip EMC2305
// 5-channel PWM fan controller on I2C/SMBus.
//
// Register addresses and field layouts follow datasheet DS20006532A
// (April 2021), with two placements confirmed on hardware where datasheet
// revisions disagree (drive-fail band low/high at 0x3A/0x3B).
package emc2305

const (
	// AddressDefault is the factory I2C address (ADDR_SEL open).
	AddressDefault = 0x61

	// Expected identification values.
	productID      = 0x34
	manufacturerID = 0x5D

	// --- Global registers ---

	regConfiguration = 0x20 // watchdog, clock selection, global PWM enable

	regFanStatus       = 0x24 // combined fault status, read clears
	regFanStallStatus  = 0x25 // per-fan stall flags, read clears
	regFanSpinStatus   = 0x26 // per-fan spin-up failure flags, read clears
	regDriveFailStatus = 0x27 // per-fan drive failure flags, read clears

	regFanInterruptEnable = 0x29 // per-fan ALERT# gating, bits 4:0
	regPWMPolarityConfig  = 0x2A
	regPWMOutputConfig    = 0x2B
	regPWMBaseFreq1       = 0x2C // fans 1-3
	regPWMBaseFreq2       = 0x2D // fans 4-5

	regSoftwareLock    = 0xEF
	regProductFeatures = 0xFC
	regProductID       = 0xFD
	regManufacturerID  = 0xFE
	regRevision        = 0xFF

	// --- Per-channel register block (fan 1 base; fan n = base + (n-1)*0x10) ---

	fanChannelOffset = 0x10
	// NumChannels is the number of fan channels on the EMC2305.
	NumChannels = 5

	regFan1Setting           = 0x30 // PWM duty (0-255), or max drive in FSC mode
	regFan1PWMDivide         = 0x31
	regFan1Config1           = 0x32
	regFan1Config2           = 0x33
	regFan1Gain              = 0x35
	regFan1SpinUpConfig      = 0x36
	regFan1MaxStep           = 0x37
	regFan1MinimumDrive      = 0x38
	regFan1ValidTachCount    = 0x39 // bits 12:8 of the minimum valid tach count
	regFan1DriveFailBandLow  = 0x3A // confirmed by testing; some datasheets say 0x3B
	regFan1DriveFailBandHigh = 0x3B // confirmed by testing; some datasheets say 0x3C
	regFan1TachTargetLow     = 0x3C
	regFan1TachTargetHigh    = 0x3D
	regFan1TachReadingHigh   = 0x3E
	regFan1TachReadingLow    = 0x3F

	// --- Configuration register bits (0x20) ---

	cfgMask      = 0x80 // 1 = disable ALERT# pin
	cfgDisTO     = 0x40 // 1 = disable SMBus timeout
	cfgWDEn      = 0x20 // 1 = enable 4s watchdog
	cfgDrExtClk  = 0x10 // 1 = drive clock out on CLK pin
	cfgUseExtClk = 0x08 // 1 = use external 32.768kHz clock
	cfgClkSel    = 0x04
	cfgGlblEn    = 0x02 // must be set or all PWM outputs stay disabled
	cfgGPO       = 0x01

	// --- Fan CONFIG1 bits (0x32 + offset) ---

	fanCfg1UpdateMask = 0xE0 // bits 7:5, control loop update time
	fanCfg1EdgesMask  = 0x18 // bits 4:3, tach edges per revolution
	fanCfg1EnAlgo     = 0x04 // 1 = FSC (closed-loop RPM) mode
	fanCfg1EnRRC      = 0x02 // 1 = ramp rate control
	fanCfg1Clr        = 0x01 // write 1 to clear accumulated error

	// --- Fan CONFIG2 bits (0x33 + offset) ---

	fanCfg2ErrRngMask = 0xC0 // bits 7:6, RPM error window
	fanCfg2DerOptMask = 0x38 // bits 5:3, derivative option
	fanCfg2GlitchEn   = 0x04 // 1 = tach glitch filter
	fanCfg2RngMask    = 0x60 // bits 6:5, RPM range
	fanCfg2Rng500To16 = 0x00 // 500-16000 RPM (internal clock)
	fanCfg2Rng1KTo32  = 0x20 // 1000-32000 RPM (external clock)

	// --- GAIN register fields (0x35 + offset) ---
	// [GP1:GP0 | GI2:GI1:GI0 | GD2:GD1:GD0]

	gainPMask = 0xC0
	gainIMask = 0x38
	gainDMask = 0x07

	// --- Spin-up register fields (0x36 + offset) ---

	spinUpLevelMask    = 0xE0 // bits 7:5, drive level during spin-up
	spinUpTimeMask     = 0x1F // bits 4:0, time in 50ms units
	spinUpTimeUnitMS   = 50
	spinUpTimeMaxValue = 31

	// --- Status register bits ---

	fanStatusWatch   = 0x80 // watchdog timeout occurred
	fanStatusAllFans = 0x1F // bits 4:0, fans 1-5

	interruptEnableAllFans = 0x1F
	pwmAllChannels         = 0x1F // polarity/output config, bits 4:0

	// --- Software lock values (0xEF) ---

	softwareLockLocked   = 0xFF
	softwareLockUnlocked = 0x00

	// --- Product features bits (0xFC) ---

	featuresFanCountMask = 0x07 // bits 2:0
	featuresRPMControl   = 0x08 // bit 3

	// --- PWM base frequency codes (0x2C/0x2D) ---

	pwmFreqCode26000 = 0x00
	pwmFreqCode19531 = 0x01
	pwmFreqCode4882  = 0x02
	pwmFreqCode2441  = 0x03

	// --- Tachometer count ---

	tachCountMax       = 0x1FFF // 13-bit
	tachCountHighMask  = 0x1F
	tachCountHighShift = 8

	driveFailLowShift  = 3
	driveFailHighShift = 11
	driveFailHighMask  = 0x1F

	// --- Speed limits ---

	// MinRPM is the lowest RPM the tach measurement supports.
	MinRPM = 500
	// MaxRPMInternal is the upper RPM limit with the internal oscillator.
	MaxRPMInternal = 16000
	// MaxRPMExternal is the upper RPM limit with an external crystal.
	MaxRPMExternal = 32000

	maxPWMValue = 255

	// SafeShutdownPercent is the duty applied to every channel on Close,
	// avoiding an abrupt stop.
	SafeShutdownPercent = 30
)

// fanRegBase returns the register block base for a channel (1-based).
// Callers validate the channel first.
func fanRegBase(channel int) byte {
	return byte(regFan1Setting + (channel-1)*fanChannelOffset)
}
