// Package i2cbus abstracts SMBus register access for drivers in this
// module. Implementations must be safe for use from a single goroutine;
// drivers serialise their own access.
package i2cbus

import "errors"

// ErrLockTimeout reports that the inter-process bus lock could not be
// acquired within the configured timeout. The bus itself is healthy;
// callers may retry.
var ErrLockTimeout = errors.New("i2cbus: bus lock timeout")

// Bus is byte-register SMBus access to devices on one physical bus.
type Bus interface {
	// ReadByte reads one register from the device at addr.
	ReadByte(addr, reg byte) (byte, error)

	// WriteByte writes one register on the device at addr.
	WriteByte(addr, reg, val byte) error

	// ReadBlock reads n consecutive registers starting at reg.
	ReadBlock(addr, reg byte, n int) ([]byte, error)
}
