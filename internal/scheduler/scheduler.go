// Package scheduler decides, once per RTC second, whether the current fix
// must be committed to the log store.
package scheduler

import (
	"tracklog/internal/nmea"
	"tracklog/internal/rtc"
	"tracklog/internal/wire"
)

// quantizationSeconds spaces records on 5-second boundaries. This decouples
// the logging rate from the much higher NMEA sentence rate and bounds write
// volume on constrained storage.
const quantizationSeconds = 5

// State is the mutable device state shared by the scheduler and the command
// dispatcher. The device loop is the single writer; no locking is needed
// on-device.
type State struct {
	SpeedLimitKmh int
	LimpSpeedKmh  int

	RecordsLogged      int
	SpeedLimitExceeded bool
	AppendFailures     int
	LastAppendError    string
}

func NewState(speedLimitKmh, limpSpeedKmh int) *State {
	return &State{SpeedLimitKmh: speedLimitKmh, LimpSpeedKmh: limpSpeedKmh}
}

// Reset clears the in-memory counters and flags. Configured limits survive.
func (st *State) Reset() {
	st.RecordsLogged = 0
	st.SpeedLimitExceeded = false
	st.AppendFailures = 0
	st.LastAppendError = ""
}

// Appender is the write side of the log store.
type Appender interface {
	Append(rec wire.Record) error
}

type Scheduler struct {
	clock rtc.Clock
	store Appender
	state *State

	lastLoggedUnix int64
}

func New(clock rtc.Clock, store Appender, state *State) *Scheduler {
	return &Scheduler{clock: clock, store: store, state: state, lastLoggedUnix: -1}
}

// Offer considers one decoded fix for logging and reports whether a record
// was committed. At most one record is committed per RTC second even when
// several fixes arrive within it, and only on quantization boundaries.
func (s *Scheduler) Offer(fix nmea.Fix) bool {
	if !fix.DataReady {
		return false
	}
	now := s.clock.Now().UTC()
	sec := now.Unix()
	if sec%quantizationSeconds != 0 {
		return false
	}
	if sec == s.lastLoggedUnix {
		return false
	}
	// Claim the second before the append: a failed write loses the record
	// rather than retrying into a duplicate.
	s.lastLoggedUnix = sec

	rec := wire.Record{
		Date: now.Format("020106"),
		Time: now.Format("150405"),
	}
	if fix.Active {
		rec.Lon = fix.Lon + fix.EW
		rec.Lat = fix.Lat + fix.NS
		rec.SpeedKmh = fix.SpeedKmh
		if s.state.SpeedLimitKmh > 0 && fix.SpeedKmh > float64(s.state.SpeedLimitKmh) {
			s.state.SpeedLimitExceeded = true
		}
	} else {
		rec.SignalLost = true
	}

	if err := s.store.Append(rec); err != nil {
		s.state.AppendFailures++
		s.state.LastAppendError = err.Error()
		return false
	}
	s.state.RecordsLogged++
	return true
}
