//go:build linux

package rtc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux I2C access backed by /dev/i2c-*. I2C_RDWR performs a combined
// write+read (repeated start), which the DS3231 needs for register reads.

const (
	i2cMrd  = 0x0001
	i2cRdwr = 0x0707
)

type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type i2cRdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

type linuxI2C struct {
	f    *os.File
	addr uint16
}

func openI2C(bus string, addr uint16) (i2cDev, error) {
	if addr == 0 || addr > 0x7F {
		return nil, fmt.Errorf("invalid i2c addr 0x%X", addr)
	}
	f, err := os.OpenFile(filepath.Clean(bus), os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	return &linuxI2C{f: f, addr: addr}, nil
}

func (d *linuxI2C) Close() error {
	if d == nil || d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

func (d *linuxI2C) Write(p []byte) error {
	return d.tx(p, nil)
}

func (d *linuxI2C) ReadReg(reg byte, dst []byte) error {
	return d.tx([]byte{reg}, dst)
}

func (d *linuxI2C) tx(w, r []byte) error {
	if d == nil || d.f == nil {
		return errors.New("i2c device is closed")
	}

	msgs := make([]i2cMsg, 0, 2)
	if len(w) > 0 {
		msgs = append(msgs, i2cMsg{addr: d.addr, flags: 0, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))})
	}
	if len(r) > 0 {
		msgs = append(msgs, i2cMsg{addr: d.addr, flags: i2cMrd, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))})
	}
	if len(msgs) == 0 {
		return nil
	}

	data := i2cRdwrData{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.f.Fd(), uintptr(i2cRdwr), uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return errno
	}
	return nil
}
