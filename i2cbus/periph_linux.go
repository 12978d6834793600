//go:build linux

package i2cbus

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// LinuxConfig configures a periph.io-backed bus on /dev/i2c-*.
type LinuxConfig struct {
	// Bus is the periph bus name, e.g. "1" or "/dev/i2c-1". Empty picks
	// the first available bus.
	Bus string

	// LockPath is an optional flock file serialising bus access across
	// processes. Empty disables inter-process locking.
	LockPath string

	// LockTimeout bounds the wait for the flock. Zero means 1s.
	LockTimeout time.Duration

	// SettleDelay is an optional pause after every transaction for
	// devices that need bus idle time between operations.
	SettleDelay time.Duration
}

// LinuxBus is a Bus on a Linux I2C adapter via periph.io, with optional
// flock-based inter-process serialisation.
type LinuxBus struct {
	bus         i2c.BusCloser
	lockFile    *os.File
	lockTimeout time.Duration
	settle      time.Duration
}

// OpenLinux initialises the periph host drivers and opens the bus.
func OpenLinux(cfg LinuxConfig) (*LinuxBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("i2cbus: host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("i2cbus: open %q: %w", cfg.Bus, err)
	}

	b := &LinuxBus{
		bus:         bus,
		lockTimeout: cfg.LockTimeout,
		settle:      cfg.SettleDelay,
	}
	if b.lockTimeout == 0 {
		b.lockTimeout = time.Second
	}
	if cfg.LockPath != "" {
		f, err := os.OpenFile(cfg.LockPath, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			bus.Close()
			return nil, fmt.Errorf("i2cbus: open lock file: %w", err)
		}
		b.lockFile = f
	}
	return b, nil
}

// Close releases the bus and the lock file.
func (b *LinuxBus) Close() error {
	if b.lockFile != nil {
		b.lockFile.Close()
	}
	return b.bus.Close()
}

// lock takes the flock non-blocking in a poll loop so a wedged peer
// cannot hang us past the timeout.
func (b *LinuxBus) lock() error {
	if b.lockFile == nil {
		return nil
	}
	deadline := time.Now().Add(b.lockTimeout)
	for {
		err := unix.Flock(int(b.lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}
		if err != unix.EWOULDBLOCK {
			return fmt.Errorf("i2cbus: flock: %w", err)
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

func (b *LinuxBus) unlock() {
	if b.lockFile == nil {
		return
	}
	unix.Flock(int(b.lockFile.Fd()), unix.LOCK_UN)
}

func (b *LinuxBus) tx(addr byte, w, r []byte) error {
	if err := b.lock(); err != nil {
		return err
	}
	defer b.unlock()
	err := b.bus.Tx(uint16(addr), w, r)
	if b.settle > 0 {
		time.Sleep(b.settle)
	}
	return err
}

func (b *LinuxBus) ReadByte(addr, reg byte) (byte, error) {
	var buf [1]byte
	if err := b.tx(addr, []byte{reg}, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (b *LinuxBus) WriteByte(addr, reg, val byte) error {
	return b.tx(addr, []byte{reg, val}, nil)
}

func (b *LinuxBus) ReadBlock(addr, reg byte, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := b.tx(addr, []byte{reg}, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
