// Package wire defines the line formats shared by the device and the host:
// the persisted record format and the bulk-retrieval stream vocabulary.
package wire

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignalLost is the sentinel placed in the position and speed columns of a
// record committed while the receiver reported a void fix.
const SignalLost = "SL"

// Record is one persisted log entry.
//
// Date is DDMMYY and Time is HHMMSS, both as written by the device clock.
// Lon and Lat carry the raw NMEA value with its hemisphere suffix
// (e.g. "01131.0004E"). When SignalLost is set the position and speed
// columns hold the SL sentinel instead.
type Record struct {
	Date       string
	Time       string
	Lon        string
	Lat        string
	SpeedKmh   float64
	SignalLost bool
}

// Line renders the record in its wire format:
//
//	DDMMYY,HHMMSS,<lon><EW>,<lat><NS>,<speed one-decimal>
//	DDMMYY,HHMMSS,SL,SL,SL
func (r Record) Line() string {
	if r.SignalLost {
		return fmt.Sprintf("%s,%s,%s,%s,%s", r.Date, r.Time, SignalLost, SignalLost, SignalLost)
	}
	return fmt.Sprintf("%s,%s,%s,%s,%.1f", r.Date, r.Time, r.Lon, r.Lat, r.SpeedKmh)
}

// ParseRecord decodes one record line.
func ParseRecord(line string) (Record, error) {
	f := strings.Split(strings.TrimSpace(line), ",")
	if len(f) < 5 {
		return Record{}, fmt.Errorf("wire: record needs 5 fields, got %d: %q", len(f), line)
	}
	rec := Record{
		Date: strings.TrimSpace(f[0]),
		Time: strings.TrimSpace(f[1]),
	}
	if len(rec.Date) != 6 || len(rec.Time) != 6 {
		return Record{}, fmt.Errorf("wire: bad date/time in record: %q", line)
	}
	if strings.TrimSpace(f[2]) == SignalLost {
		rec.SignalLost = true
		return rec, nil
	}
	rec.Lon = strings.TrimSpace(f[2])
	rec.Lat = strings.TrimSpace(f[3])
	spd, err := strconv.ParseFloat(strings.TrimSpace(f[4]), 64)
	if err != nil {
		return Record{}, fmt.Errorf("wire: bad speed in record %q: %w", line, err)
	}
	rec.SpeedKmh = spd
	return rec, nil
}

// EpochUTC reconstructs the record timestamp as UTC epoch seconds.
// Two-digit years pivot into 2000-2099.
func (r Record) EpochUTC() (int64, error) {
	if len(r.Date) != 6 || len(r.Time) != 6 {
		return 0, fmt.Errorf("wire: bad date/time %q %q", r.Date, r.Time)
	}
	day, err1 := strconv.Atoi(r.Date[0:2])
	mon, err2 := strconv.Atoi(r.Date[2:4])
	yy, err3 := strconv.Atoi(r.Date[4:6])
	hh, err4 := strconv.Atoi(r.Time[0:2])
	mm, err5 := strconv.Atoi(r.Time[2:4])
	ss, err6 := strconv.Atoi(r.Time[4:6])
	for _, err := range []error{err1, err2, err3, err4, err5, err6} {
		if err != nil {
			return 0, fmt.Errorf("wire: non-numeric date/time %q %q", r.Date, r.Time)
		}
	}
	if mon < 1 || mon > 12 || day < 1 || day > 31 || hh > 23 || mm > 59 || ss > 59 {
		return 0, fmt.Errorf("wire: out-of-range date/time %q %q", r.Date, r.Time)
	}
	t := time.Date(2000+yy, time.Month(mon), day, hh, mm, ss, 0, time.UTC)
	return t.Unix(), nil
}

// Stamp formats a time the way the control channel reports it.
func Stamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}
