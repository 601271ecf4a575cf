package rtc

import (
	"fmt"
	"time"
)

// DS3231 register map: seven BCD timekeeping registers starting at 0x00
// (seconds, minutes, hours, weekday, date, month, year). The month register
// carries a century flag in bit 7 which we ignore; years pivot into
// 2000-2099 like the record format does.
const (
	ds3231DefaultAddr = 0x68
	ds3231TimeReg     = 0x00
)

// i2cDev is the slice of an I2C device the DS3231 driver needs.
type i2cDev interface {
	ReadReg(reg byte, dst []byte) error
	Write(p []byte) error
	Close() error
}

// openI2CFn is a seam for tests; the platform implementation opens the
// character device.
var openI2CFn = openI2C

// DS3231 reads and writes the battery-backed hardware clock.
type DS3231 struct {
	dev i2cDev
}

// OpenDS3231 opens the RTC at addr (0 means the standard 0x68) on the given
// bus (e.g. /dev/i2c-1).
func OpenDS3231(bus string, addr uint16) (*DS3231, error) {
	if addr == 0 {
		addr = ds3231DefaultAddr
	}
	dev, err := openI2CFn(bus, addr)
	if err != nil {
		return nil, fmt.Errorf("rtc: open ds3231 bus=%s addr=0x%X: %w", bus, addr, err)
	}
	return &DS3231{dev: dev}, nil
}

func (d *DS3231) Close() error {
	if d == nil || d.dev == nil {
		return nil
	}
	err := d.dev.Close()
	d.dev = nil
	return err
}

// ReadTime returns the chip time interpreted as UTC.
func (d *DS3231) ReadTime() (time.Time, error) {
	var regs [7]byte
	if err := d.dev.ReadReg(ds3231TimeReg, regs[:]); err != nil {
		return time.Time{}, fmt.Errorf("rtc: read ds3231: %w", err)
	}
	sec := fromBCD(regs[0] & 0x7F)
	min := fromBCD(regs[1] & 0x7F)
	hour := fromBCD(regs[2] & 0x3F) // 24-hour mode assumed; bit 6 clear
	day := fromBCD(regs[4] & 0x3F)
	mon := fromBCD(regs[5] & 0x1F)
	year := 2000 + fromBCD(regs[6])
	if mon < 1 || mon > 12 || day < 1 || day > 31 || hour > 23 || min > 59 || sec > 59 {
		return time.Time{}, fmt.Errorf("rtc: ds3231 returned invalid time % X", regs)
	}
	return time.Date(year, time.Month(mon), day, hour, min, sec, 0, time.UTC), nil
}

// WriteTime programs the chip with t (stored as UTC, 24-hour mode).
func (d *DS3231) WriteTime(t time.Time) error {
	t = t.UTC()
	buf := []byte{
		ds3231TimeReg,
		toBCD(t.Second()),
		toBCD(t.Minute()),
		toBCD(t.Hour()),
		byte(t.Weekday()) + 1,
		toBCD(t.Day()),
		toBCD(int(t.Month())),
		toBCD(t.Year() % 100),
	}
	if err := d.dev.Write(buf); err != nil {
		return fmt.Errorf("rtc: write ds3231: %w", err)
	}
	return nil
}

func fromBCD(b byte) int { return int(b>>4)*10 + int(b&0x0F) }

func toBCD(v int) byte { return byte(v/10)<<4 | byte(v%10) }

// HardwareClock keeps a SystemClock in step with a DS3231: seeded from the
// chip at open, written back on SetTime. Between those points the software
// clock serves reads, so a flaky bus cannot stall the logging cadence.
type HardwareClock struct {
	sys  *SystemClock
	chip *DS3231
}

func OpenHardwareClock(bus string, addr uint16) (*HardwareClock, error) {
	chip, err := OpenDS3231(bus, addr)
	if err != nil {
		return nil, err
	}
	seed, err := chip.ReadTime()
	if err != nil {
		_ = chip.Close()
		return nil, err
	}
	sys := NewSystemClock()
	_ = sys.SetTime(seed)
	return &HardwareClock{sys: sys, chip: chip}, nil
}

func (h *HardwareClock) Now() time.Time { return h.sys.Now() }

func (h *HardwareClock) SetTime(t time.Time) error {
	if err := h.chip.WriteTime(t); err != nil {
		return err
	}
	return h.sys.SetTime(t)
}

func (h *HardwareClock) Close() error { return h.chip.Close() }
