//go:build !linux || (!arm && !arm64)

package statusled

import "fmt"

// Stub for non-Linux and/or non-ARM platforms.
func openGPIO(pin int) (lineDriver, error) {
	return nil, fmt.Errorf("statusled: gpio unsupported on this platform")
}
