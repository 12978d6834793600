package emc2305

import (
	"errors"
	"fmt"
	"sync"
)

// mockBus simulates an EMC2305 on the bus: power-on register defaults,
// read-clears status registers, and per-register fault injection. It
// implements i2cbus.Bus.
type mockBus struct {
	mu   sync.Mutex
	addr byte
	regs map[byte]byte

	// writes records every register write in order.
	writes []regWrite

	// failRead/failWrite inject a transport error for one register.
	failRead  map[byte]error
	failWrite map[byte]error

	// sticky registers ACK writes but keep their value, like a part
	// with the software lock engaged.
	sticky map[byte]bool
}

func newMockBus() *mockBus {
	m := &mockBus{
		addr:      AddressDefault,
		regs:      make(map[byte]byte),
		failRead:  make(map[byte]error),
		failWrite: make(map[byte]error),
		sticky:    make(map[byte]bool),
	}
	m.resetDefaults()
	return m
}

// resetDefaults loads the power-on register values.
func (m *mockBus) resetDefaults() {
	m.regs = map[byte]byte{
		regProductID:       0x34,
		regManufacturerID:  0x5D,
		regRevision:        0x80,
		regProductFeatures: 0x0D, // 5 channels, RPM control

		regConfiguration:      0x00,
		regPWMPolarityConfig:  0x00,
		regPWMOutputConfig:    0x00,
		regPWMBaseFreq1:       0x00,
		regPWMBaseFreq2:       0x00,
		regFanStatus:          0x00,
		regFanStallStatus:     0x00,
		regFanSpinStatus:      0x00,
		regDriveFailStatus:    0x00,
		regFanInterruptEnable: 0x00,
		regSoftwareLock:       0x00,
	}
	for ch := 1; ch <= NumChannels; ch++ {
		base := fanRegBase(ch)
		m.regs[base] = 0xFF                       // 100% duty
		m.regs[base+0x01] = 0x01                  // PWM divide
		m.regs[base+0x02] = 0x28                  // 200ms, 5 edges
		m.regs[base+0x03] = 0x00                  // CONFIG2
		m.regs[base+0x05] = 0x48                  // P=2x I=1x D=1x
		m.regs[base+0x06] = 0x8A                  // 50% / 500ms spin-up
		m.regs[base+0x07] = 0xFF                  // max step unlimited
		m.regs[base+0x08] = 0x00                  // minimum drive
		m.regs[base+0x09] = 0x0F                  // valid tach MSB
		m.regs[base+0x0A], m.regs[base+0x0B] = 0x00, 0x00
		m.regs[base+0x0C], m.regs[base+0x0D] = 0xFF, 0xFF
		// Tach reading for 3000 RPM on the internal clock, 2-pole:
		// 32000*60/(3000*2) = 320 = 0x0140.
		m.regs[base+0x0E] = 0x01
		m.regs[base+0x0F] = 0x40
	}
}

func (m *mockBus) ReadByte(addr, reg byte) (byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if addr != m.addr {
		return 0, fmt.Errorf("no device at 0x%02X", addr)
	}
	if err := m.failRead[reg]; err != nil {
		return 0, err
	}
	v := m.regs[reg]
	m.clearOnRead(reg)
	return v, nil
}

func (m *mockBus) WriteByte(addr, reg, val byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if addr != m.addr {
		return fmt.Errorf("no device at 0x%02X", addr)
	}
	if err := m.failWrite[reg]; err != nil {
		return err
	}
	if !m.sticky[reg] {
		m.regs[reg] = val
	}
	m.writes = append(m.writes, regWrite{reg, val})
	return nil
}

func (m *mockBus) ReadBlock(addr, reg byte, n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if addr != m.addr {
		return nil, fmt.Errorf("no device at 0x%02X", addr)
	}
	if err := m.failRead[reg]; err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = m.regs[reg+byte(i)]
		m.clearOnRead(reg + byte(i))
	}
	return buf, nil
}

// clearOnRead mimics hardware: the four status registers clear when read.
func (m *mockBus) clearOnRead(reg byte) {
	switch reg {
	case regFanStatus, regFanStallStatus, regFanSpinStatus, regDriveFailStatus:
		m.regs[reg] = 0x00
	}
}

func (m *mockBus) get(reg byte) byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[reg]
}

func (m *mockBus) set(reg, val byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[reg] = val
}

// simulateFault latches a fault for a channel in the combined status
// register and the matching specific register.
func (m *mockBus) simulateFault(kind string, channel int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bit := byte(1) << (channel - 1)
	m.regs[regFanStatus] |= bit
	switch kind {
	case "stall":
		m.regs[regFanStallStatus] |= bit
	case "spin":
		m.regs[regFanSpinStatus] |= bit
	case "drive_fail":
		m.regs[regDriveFailStatus] |= bit
	default:
		panic("unknown fault kind " + kind)
	}
}

// setTachReading stores a 13-bit count in a channel's reading registers.
func (m *mockBus) setTachReading(channel, count int) {
	base := fanRegBase(channel)
	m.set(base+0x0E, byte(count>>tachCountHighShift)&tachCountHighMask)
	m.set(base+0x0F, byte(count))
}

var errBusBroken = errors.New("bus broken")
