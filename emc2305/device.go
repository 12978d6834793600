package emc2305

import (
	"fmt"
	"log/slog"
	"sync"

	"emc2305-go/i2cbus"
)

// Config is the device-level controller configuration. Per-channel
// behaviour lives in FanConfig.
type Config struct {
	// Address is the 7-bit I2C address. Zero means AddressDefault.
	Address byte

	// UseExternalClock selects a 32.768kHz crystal on the CLK pin and
	// extends the RPM range to 32000.
	UseExternalClock bool

	// EnableWatchdog arms the 4s SMBus watchdog.
	EnableWatchdog bool

	// PWMFrequencyHz is the requested base PWM frequency; it is mapped to
	// the nearest supported value (26000/19531/4882/2441). Zero keeps
	// 26000.
	PWMFrequencyHz int

	// InvertPolarity inverts the PWM sense on every output: 0% duty
	// drives the pin high.
	InvertPolarity bool

	// PushPullOutput selects push-pull drivers instead of the default
	// open-drain.
	PushPullOutput bool

	// Logger receives non-fatal driver events (Close failures, degraded
	// status reads). Nil means slog.Default().
	Logger *slog.Logger
}

// Device is a controller for one EMC2305 on an I2C bus.
//
// All public methods take an internal mutex, so a Device is safe for
// concurrent use. Each call is one critical section; there is no
// transaction spanning calls, and a failed multi-register sequence is not
// rolled back.
type Device struct {
	bus      i2cbus.Bus
	addr     byte
	clock    ClockSource
	watchdog bool
	log      *slog.Logger

	mu         sync.Mutex
	fanConfigs map[int]FanConfig

	// Identification, read once at detection.
	product  byte
	mfg      byte
	revision byte
	features byte
}

// New detects and initialises the device. Identity checks run first:
// a product or manufacturer ID mismatch returns ErrDeviceNotFound and
// nothing is written. Initialisation then enables all PWM outputs,
// disables the SMBus timeout, applies DefaultFanConfig to every channel,
// enables all fan interrupts, and clears any stale status flags.
func New(bus i2cbus.Bus, cfg Config) (*Device, error) {
	addr := cfg.Address
	if addr == 0 {
		addr = AddressDefault
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	clock := ClockInternal
	if cfg.UseExternalClock {
		clock = ClockExternal
	}

	d := &Device{
		bus:        bus,
		addr:       addr,
		clock:      clock,
		watchdog:   cfg.EnableWatchdog,
		log:        log,
		fanConfigs: make(map[int]FanConfig, NumChannels),
	}

	if err := d.detect(); err != nil {
		return nil, err
	}
	if err := d.initialise(cfg); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) detect() error {
	product, err := d.read(regProductID)
	if err != nil {
		return err
	}
	if product != productID {
		return fmt.Errorf("%w: product ID 0x%02X, want 0x%02X",
			ErrDeviceNotFound, product, productID)
	}
	mfg, err := d.read(regManufacturerID)
	if err != nil {
		return err
	}
	if mfg != manufacturerID {
		return fmt.Errorf("%w: manufacturer ID 0x%02X, want 0x%02X",
			ErrDeviceNotFound, mfg, manufacturerID)
	}
	revision, err := d.read(regRevision)
	if err != nil {
		return err
	}
	features, err := d.read(regProductFeatures)
	if err != nil {
		return err
	}
	d.product = product
	d.mfg = mfg
	d.revision = revision
	d.features = features
	return nil
}

func (d *Device) initialise(cfg Config) error {
	conf := byte(cfgDisTO | cfgGlblEn)
	if cfg.EnableWatchdog {
		conf |= cfgWDEn
	}
	if cfg.UseExternalClock {
		conf |= cfgUseExtClk
	}
	if err := d.write(regConfiguration, conf); err != nil {
		return err
	}

	freq := cfg.PWMFrequencyHz
	if freq == 0 {
		freq = 26000
	}
	code, _ := pwmFreqCode(freq)
	if err := d.write(regPWMBaseFreq1, code); err != nil {
		return err
	}
	if err := d.write(regPWMBaseFreq2, code); err != nil {
		return err
	}

	var polarity, output byte
	if cfg.InvertPolarity {
		polarity = pwmAllChannels
	}
	if cfg.PushPullOutput {
		output = pwmAllChannels
	}
	if err := d.write(regPWMPolarityConfig, polarity); err != nil {
		return err
	}
	if err := d.write(regPWMOutputConfig, output); err != nil {
		return err
	}

	def := DefaultFanConfig()
	for ch := 1; ch <= NumChannels; ch++ {
		if err := d.applyFanConfig(ch, def); err != nil {
			return err
		}
		d.fanConfigs[ch] = def
	}

	if err := d.write(regFanInterruptEnable, interruptEnableAllFans); err != nil {
		return err
	}

	// Status registers clear on read; one block read flushes power-on
	// residue so the first caller-visible status is current.
	if _, err := d.readBlock(regFanStatus, 4); err != nil {
		return err
	}
	return nil
}

// Close drives every channel to SafeShutdownPercent so fans keep moving
// air after the controller lets go. Per-channel write failures are logged
// and skipped; Close always returns nil.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	pwm := percentToPWM(SafeShutdownPercent)
	for ch := 1; ch <= NumChannels; ch++ {
		if err := d.write(fanRegBase(ch), pwm); err != nil {
			d.log.Warn("safe shutdown write failed",
				"channel", ch, "err", err)
		}
	}
	return nil
}

// Features reports the capabilities read at detection.
func (d *Device) Features() ProductFeatures {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ProductFeatures{
		FanChannels:         int(d.features & featuresFanCountMask),
		RPMControlSupported: d.features&featuresRPMControl != 0,
		ProductID:           d.product,
		ManufacturerID:      d.mfg,
		Revision:            d.revision,
	}
}

// ClockSource reports the tachometer reference selected at construction.
func (d *Device) ClockSource() ClockSource { return d.clock }

// --- PWM duty cycle ---

// SetPWMDutyCycle sets a channel's duty cycle in percent (0-100,
// fractions allowed). The conversion truncates to 1/255 steps, so 75%
// writes 191.
func (d *Device) SetPWMDutyCycle(channel int, percent float64) error {
	if err := validateChannel(channel); err != nil {
		return err
	}
	if err := validatePercent(percent); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(fanRegBase(channel), percentToPWM(percent))
}

// PWMDutyCycle reads back a channel's current duty cycle in percent.
func (d *Device) PWMDutyCycle(channel int) (float64, error) {
	if err := validateChannel(channel); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.read(fanRegBase(channel))
	if err != nil {
		return 0, err
	}
	return pwmToPercent(v), nil
}

// SetPWMDutyCycleVerified sets the duty cycle and reads it back,
// returning an error if the readback differs from the request by more
// than tolerance percent. Catches a locked or wedged part that ACKs
// writes without applying them.
func (d *Device) SetPWMDutyCycleVerified(channel int, percent, tolerance float64) error {
	if err := validateChannel(channel); err != nil {
		return err
	}
	if err := validatePercent(percent); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	reg := fanRegBase(channel)
	if err := d.write(reg, percentToPWM(percent)); err != nil {
		return err
	}
	v, err := d.read(reg)
	if err != nil {
		return err
	}
	got := pwmToPercent(v)
	diff := got - percent
	if diff < 0 {
		diff = -diff
	}
	// Truncation alone can cost one step, just under 0.4%.
	if diff > tolerance+100.0/maxPWMValue {
		return fmt.Errorf("emc2305: duty readback %.1f%% outside %.1f%% of %.1f%%",
			got, tolerance, percent)
	}
	return nil
}

// --- RPM control ---

// SetTargetRPM sets the closed-loop RPM target for a channel in FSC
// mode. rpm 0 parks the fan (maximum tach count). The high byte is
// written before the low byte; the device latches the target on the low
// write.
func (d *Device) SetTargetRPM(channel int, rpm int) error {
	if err := validateChannel(channel); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	cfg := d.fanConfig(channel)
	count, err := rpmToTachCount(rpm, d.clock, polesForEdges(cfg.Edges))
	if err != nil {
		return err
	}

	base := fanRegBase(channel)
	high := base + (regFan1TachTargetHigh - regFan1Setting)
	low := base + (regFan1TachTargetLow - regFan1Setting)
	if err := d.write(high, byte(count>>tachCountHighShift)&tachCountHighMask); err != nil {
		return err
	}
	return d.write(low, byte(count))
}

// TargetRPM reads back the channel's RPM target. A parked target (max
// count) reads as the conversion of that count, not zero.
func (d *Device) TargetRPM(channel int) (int, error) {
	if err := validateChannel(channel); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.targetRPM(channel)
}

// CurrentRPM reads the measured fan speed. A stopped fan reads 0.
func (d *Device) CurrentRPM(channel int) (int, error) {
	if err := validateChannel(channel); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentRPM(channel)
}

func (d *Device) currentRPM(channel int) (int, error) {
	base := fanRegBase(channel)
	high, err := d.read(base + (regFan1TachReadingHigh - regFan1Setting))
	if err != nil {
		return 0, err
	}
	low, err := d.read(base + (regFan1TachReadingLow - regFan1Setting))
	if err != nil {
		return 0, err
	}
	count := int(high&tachCountHighMask)<<tachCountHighShift | int(low)
	// Saturated reading means the tach sees no edges.
	if count == tachCountMax {
		return 0, nil
	}
	return tachCountToRPM(count, d.fanConfig(channel).Edges, d.clock)
}

// --- Channel configuration ---

// ConfigureFan validates cfg, checks the hardware software lock, and
// commits the configuration to the channel's register block. The writes
// are ordered but not transactional; a mid-sequence failure leaves the
// channel partially updated.
func (d *Device) ConfigureFan(channel int, cfg FanConfig) error {
	if err := validateChannel(channel); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkNotLocked(); err != nil {
		return err
	}
	if err := d.applyFanConfig(channel, cfg); err != nil {
		return err
	}
	d.fanConfigs[channel] = cfg
	return nil
}

// FanConfiguration returns the last configuration committed for a
// channel, which is DefaultFanConfig until ConfigureFan changes it.
func (d *Device) FanConfiguration(channel int) (FanConfig, error) {
	if err := validateChannel(channel); err != nil {
		return FanConfig{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fanConfig(channel), nil
}

// SetControlMode switches a channel between direct PWM and closed-loop
// FSC without disturbing the rest of CONFIG1.
func (d *Device) SetControlMode(channel int, mode ControlMode) error {
	if err := validateChannel(channel); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.checkNotLocked(); err != nil {
		return err
	}
	reg := fanRegBase(channel) + (regFan1Config1 - regFan1Setting)
	cur, err := d.read(reg)
	if err != nil {
		return err
	}
	if mode == ModeFSC {
		cur |= fanCfg1EnAlgo | fanCfg1EnRRC
	} else {
		cur &^= fanCfg1EnAlgo | fanCfg1EnRRC
	}
	if err := d.write(reg, cur); err != nil {
		return err
	}
	cfg := d.fanConfig(channel)
	cfg.ControlMode = mode
	d.fanConfigs[channel] = cfg
	return nil
}

func (d *Device) applyFanConfig(channel int, cfg FanConfig) error {
	for _, w := range fanRegisterWrites(channel, cfg, d.clock) {
		if err := d.write(w.reg, w.val); err != nil {
			return err
		}
	}
	if !cfg.Enabled {
		return d.write(fanRegBase(channel), 0x00)
	}
	return nil
}

// fanConfig returns the cached channel config; callers hold d.mu.
func (d *Device) fanConfig(channel int) FanConfig {
	if cfg, ok := d.fanConfigs[channel]; ok {
		return cfg
	}
	return DefaultFanConfig()
}

// --- Software lock ---

// LockConfiguration sets the hardware software-lock register. Once set
// it holds until power-on reset; further configuration calls fail with
// ErrConfigurationLocked.
func (d *Device) LockConfiguration() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(regSoftwareLock, softwareLockLocked)
}

// ConfigurationLocked reads the live lock state. The register is read
// every time rather than cached, since another master can set it.
func (d *Device) ConfigurationLocked() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.read(regSoftwareLock)
	if err != nil {
		return false, err
	}
	return v == softwareLockLocked, nil
}

func (d *Device) checkNotLocked() error {
	v, err := d.read(regSoftwareLock)
	if err != nil {
		return err
	}
	if v == softwareLockLocked {
		return ErrConfigurationLocked
	}
	return nil
}

// --- Watchdog ---

// CheckWatchdog reports whether the SMBus watchdog has fired. The flag
// clears on read.
func (d *Device) CheckWatchdog() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.read(regFanStatus)
	if err != nil {
		return false, err
	}
	return v&fanStatusWatch != 0, nil
}

// ResetWatchdog kicks the 4s watchdog timer. Any SMBus access resets
// it, so a dummy configuration-register read suffices. Call this at
// least every 4 seconds while the watchdog is armed; a no-op when it is
// not.
func (d *Device) ResetWatchdog() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.watchdog {
		return nil
	}
	_, err := d.read(regConfiguration)
	return err
}

// --- Bus helpers (callers hold d.mu where state matters) ---

func (d *Device) read(reg byte) (byte, error) {
	v, err := d.bus.ReadByte(d.addr, reg)
	if err != nil {
		return 0, commErr(fmt.Sprintf("read reg 0x%02X", reg), err)
	}
	return v, nil
}

func (d *Device) write(reg, val byte) error {
	if err := d.bus.WriteByte(d.addr, reg, val); err != nil {
		return commErr(fmt.Sprintf("write reg 0x%02X", reg), err)
	}
	return nil
}

func (d *Device) readBlock(reg byte, n int) ([]byte, error) {
	buf, err := d.bus.ReadBlock(d.addr, reg, n)
	if err != nil {
		return nil, commErr(fmt.Sprintf("read block 0x%02X", reg), err)
	}
	if len(buf) < n {
		return nil, commErr(fmt.Sprintf("read block 0x%02X", reg),
			fmt.Errorf("short read: %d of %d bytes", len(buf), n))
	}
	return buf, nil
}
