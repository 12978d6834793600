package emc2305

// Fault status and ALERT# handling. The four status registers (combined,
// stall, spin-up, drive-fail) all clear on read, so every read here is
// consuming; callers that need the full picture use FanStates or
// ClearAlertStatus rather than polling registers piecemeal.

// Status reads a channel's fault state. When multiple faults are latched
// the most specific wins: stall, then spin-up failure, then drive
// failure. A transport error degrades to StatusUnknown with a nil error,
// so status polls never abort a monitoring loop.
func (d *Device) Status(channel int) (Status, error) {
	if err := validateChannel(channel); err != nil {
		return StatusUnknown, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	block, err := d.readBlock(regFanStatus, 4)
	if err != nil {
		d.log.Warn("status read failed", "channel", channel, "err", err)
		return StatusUnknown, nil
	}
	return statusFromBlock(block, channel), nil
}

func statusFromBlock(block []byte, channel int) Status {
	bit := byte(1) << (channel - 1)
	switch {
	case block[1]&bit != 0:
		return StatusStalled
	case block[2]&bit != 0:
		return StatusSpinFailure
	case block[3]&bit != 0:
		return StatusDriveFailure
	default:
		return StatusOK
	}
}

// FanStates snapshots every channel: duty, target, measured RPM and
// fault status. One status block read serves all channels, so a fault
// on one channel is not lost to the read-clears behaviour while
// iterating.
func (d *Device) FanStates() ([]FanState, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	block, err := d.readBlock(regFanStatus, 4)
	if err != nil {
		return nil, err
	}

	states := make([]FanState, 0, NumChannels)
	for ch := 1; ch <= NumChannels; ch++ {
		cfg := d.fanConfig(ch)
		st := FanState{
			Channel:     ch,
			Enabled:     cfg.Enabled,
			ControlMode: cfg.ControlMode,
			Status:      statusFromBlock(block, ch),
		}

		duty, err := d.read(fanRegBase(ch))
		if err != nil {
			return nil, err
		}
		st.PWMPercent = pwmToPercent(duty)

		rpm, err := d.currentRPM(ch)
		if err != nil {
			return nil, err
		}
		st.CurrentRPM = rpm

		if cfg.ControlMode == ModeFSC {
			target, err := d.targetRPM(ch)
			if err != nil {
				return nil, err
			}
			st.TargetRPM = target
		}
		states = append(states, st)
	}
	return states, nil
}

func (d *Device) targetRPM(channel int) (int, error) {
	base := fanRegBase(channel)
	high, err := d.read(base + (regFan1TachTargetHigh - regFan1Setting))
	if err != nil {
		return 0, err
	}
	low, err := d.read(base + (regFan1TachTargetLow - regFan1Setting))
	if err != nil {
		return 0, err
	}
	count := int(high&tachCountHighMask)<<tachCountHighShift | int(low)
	return tachCountToRPM(count, d.fanConfig(channel).Edges, d.clock)
}

// ConfigureFanAlerts gates a channel's faults onto the ALERT# pin via
// the interrupt enable register, read-modify-write so other channels
// keep their setting.
func (d *Device) ConfigureFanAlerts(channel int, enabled bool) error {
	if err := validateChannel(channel); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	cur, err := d.read(regFanInterruptEnable)
	if err != nil {
		return err
	}
	bit := byte(1) << (channel - 1)
	if enabled {
		cur |= bit
	} else {
		cur &^= bit
	}
	return d.write(regFanInterruptEnable, cur)
}

// AlertStatus reports, per channel, whether any fault is latched. The
// whole status block is read, so the stall/spin/drive-fail registers are
// drained too and a later Status call cannot re-report the same fault.
func (d *Device) AlertStatus() (map[int]bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	block, err := d.readBlock(regFanStatus, 4)
	if err != nil {
		return nil, err
	}
	faults := block[1] | block[2] | block[3]
	out := make(map[int]bool, NumChannels)
	for ch := 1; ch <= NumChannels; ch++ {
		out[ch] = faults&(1<<(ch-1)) != 0
	}
	return out, nil
}

// IsAlertActive reports whether any fan fault is latched. This checks
// raw status, not the interrupt enable mask, so a fault on a channel
// with alerts disabled still reads true. The read clears the flags.
func (d *Device) IsAlertActive() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, err := d.read(regFanStatus)
	if err != nil {
		return false, err
	}
	return v&fanStatusAllFans != 0, nil
}

// ClearAlertStatus discards all latched fault flags by reading each
// status register once.
func (d *Device) ClearAlertStatus() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, reg := range []byte{
		regFanStatus, regFanStallStatus, regFanSpinStatus, regDriveFailStatus,
	} {
		if _, err := d.read(reg); err != nil {
			return err
		}
	}
	return nil
}
