//go:build !linux

package rtc

import "fmt"

func openI2C(bus string, addr uint16) (i2cDev, error) {
	return nil, fmt.Errorf("i2c unsupported on this platform")
}
