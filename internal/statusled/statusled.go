// Package statusled drives a fix-state LED on a GPIO line: solid while the
// receiver has an active fix, off otherwise. Best-effort bring-up; a missing
// GPIO never brings down the logger.
package statusled

import (
	"fmt"
	"sync"
)

// lineDriver is the minimal interface the service needs from a GPIO backend.
type lineDriver interface {
	SetValue(v int) error
	Close() error
}

var openGPIOFn = openGPIO

type Config struct {
	Enable bool
	// Pin is BCM GPIO numbering.
	Pin int
}

type Snapshot struct {
	Enabled   bool   `json:"enabled"`
	Available bool   `json:"available"`
	On        bool   `json:"on"`
	LastError string `json:"last_error,omitempty"`
}

type Service struct {
	cfg Config

	mu   sync.Mutex
	drv  lineDriver
	snap Snapshot
}

func New(cfg Config) *Service {
	return &Service{cfg: cfg, snap: Snapshot{Enabled: cfg.Enable}}
}

// Start opens the GPIO line. Failure is recorded in the snapshot and
// returned, but callers are expected to continue without the LED.
func (s *Service) Start() error {
	if s == nil || !s.cfg.Enable {
		return nil
	}
	drv, err := openGPIOFn(s.cfg.Pin)
	if err != nil {
		s.mu.Lock()
		s.snap.LastError = err.Error()
		s.mu.Unlock()
		return err
	}
	s.mu.Lock()
	s.drv = drv
	s.snap.Available = true
	s.mu.Unlock()
	return nil
}

// Set drives the LED: on for an active fix, off otherwise. Redundant calls
// with the same state are cheap no-ops.
func (s *Service) Set(active bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drv == nil || s.snap.On == active {
		return
	}
	v := 0
	if active {
		v = 1
	}
	if err := s.drv.SetValue(v); err != nil {
		s.snap.LastError = fmt.Sprintf("statusled: set value failed: %v", err)
		return
	}
	s.snap.On = active
	s.snap.LastError = ""
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	drv := s.drv
	s.drv = nil
	s.snap.Available = false
	s.mu.Unlock()
	if drv != nil {
		_ = drv.Close()
	}
}
