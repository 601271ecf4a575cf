// Package gpssim emits deterministic synthetic RMC sentences for bench
// runs without a receiver: a circular track around a configured center at
// a constant speed.
package gpssim

import (
	"fmt"
	"math"
	"time"

	"tracklog/internal/nmea"
)

type Config struct {
	CenterLatDeg float64
	CenterLonDeg float64
	SpeedKmh     float64
	Period       time.Duration
}

// Source produces one sentence per second. It implements the same raw byte
// interface as a serial GPS channel.
type Source struct {
	cfg     Config
	pending []byte
	next    time.Time

	nowFn   func() time.Time
	sleepFn func(d time.Duration)
}

func New(cfg Config) *Source {
	if cfg.Period <= 0 {
		cfg.Period = 120 * time.Second
	}
	if cfg.SpeedKmh <= 0 {
		cfg.SpeedKmh = 40
	}
	return &Source{cfg: cfg, nowFn: time.Now, sleepFn: time.Sleep}
}

// Read blocks until the next 1 Hz sentence is due and returns its bytes.
func (s *Source) Read(p []byte) (int, error) {
	if len(s.pending) == 0 {
		now := s.nowFn()
		if wait := s.next.Sub(now); wait > 0 {
			s.sleepFn(wait)
			now = s.next
		}
		s.next = now.Add(time.Second)
		s.pending = []byte(s.Sentence(now) + "\r\n")
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *Source) Close() error { return nil }

// Sentence builds the RMC sentence for the given instant, with a valid
// checksum so real parsers accept it.
func (s *Source) Sentence(now time.Time) string {
	now = now.UTC()
	latDeg, lonDeg, trackDeg := s.position(now)

	lat, ns := formatLat(latDeg)
	lon, ew := formatLon(lonDeg)
	knots := s.cfg.SpeedKmh / 1.852

	payload := fmt.Sprintf("GPRMC,%s.00,A,%s,%s,%s,%s,%.1f,%.1f,%s,,,A",
		now.Format("150405"), lat, ns, lon, ew, knots, trackDeg, now.Format("020106"))
	return nmea.Sentence(payload)
}

// position walks a circle whose radius follows from speed and period
// (circumference = speed * period).
func (s *Source) position(now time.Time) (latDeg, lonDeg, trackDeg float64) {
	period := s.cfg.Period
	circumferenceKm := s.cfg.SpeedKmh * period.Hours()
	radiusKm := circumferenceKm / (2 * math.Pi)
	// ~111.2 km per degree of latitude.
	radiusDeg := radiusKm / 111.2

	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())
	w := 2 * math.Pi * phase

	latDeg = s.cfg.CenterLatDeg + radiusDeg*math.Sin(w)
	lonDeg = s.cfg.CenterLonDeg + radiusDeg*math.Cos(w)/math.Cos(s.cfg.CenterLatDeg*math.Pi/180)

	// Track is tangent to the circle (atan2 of east over north velocity).
	trackRad := math.Atan2(-math.Sin(w), math.Cos(w))
	trackDeg = math.Mod(trackRad*180/math.Pi+360, 360)
	return latDeg, lonDeg, trackDeg
}

// formatLat renders decimal degrees as NMEA ddmm.mmmm plus hemisphere.
func formatLat(deg float64) (string, string) {
	hemi := "N"
	if deg < 0 {
		hemi = "S"
		deg = -deg
	}
	d := int(deg)
	mins := (deg - float64(d)) * 60
	return fmt.Sprintf("%02d%07.4f", d, mins), hemi
}

// formatLon renders decimal degrees as NMEA dddmm.mmmm plus hemisphere.
func formatLon(deg float64) (string, string) {
	hemi := "E"
	if deg < 0 {
		hemi = "W"
		deg = -deg
	}
	d := int(deg)
	mins := (deg - float64(d)) * 60
	return fmt.Sprintf("%03d%07.4f", d, mins), hemi
}
