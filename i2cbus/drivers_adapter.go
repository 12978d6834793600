package i2cbus

import "tinygo.org/x/drivers"

// DriversBus adapts a tinygo.org/x/drivers I2C (bare-metal or TinyGo
// targets) to the Bus interface used by the drivers in this module.
type DriversBus struct {
	i2c drivers.I2C
}

// WrapDrivers wraps a drivers.I2C as a Bus.
func WrapDrivers(i2c drivers.I2C) *DriversBus {
	return &DriversBus{i2c: i2c}
}

func (b *DriversBus) ReadByte(addr, reg byte) (byte, error) {
	var r [1]byte
	if err := b.i2c.Tx(uint16(addr), []byte{reg}, r[:]); err != nil {
		return 0, err
	}
	return r[0], nil
}

func (b *DriversBus) WriteByte(addr, reg, val byte) error {
	return b.i2c.Tx(uint16(addr), []byte{reg, val}, nil)
}

func (b *DriversBus) ReadBlock(addr, reg byte, n int) ([]byte, error) {
	buf := make([]byte, n)
	if err := b.i2c.Tx(uint16(addr), []byte{reg}, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
