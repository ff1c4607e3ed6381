// Package input turns debounced button edges and remote commands into the
// single selected-mode value consumed by the program orchestrator, plus
// halt and balance-confirm signals.
package input

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Mode is a user-selectable program.
type Mode int32

const (
	ModeNone Mode = iota
	ModeWash
	ModeRinse
	ModeSpin
	ModeComplete
	ModeSoak
)

var modeNames = [...]string{
	ModeNone:     "NONE",
	ModeWash:     "WASH_ONLY",
	ModeRinse:    "RINSE_ONLY",
	ModeSpin:     "SPIN_ONLY",
	ModeComplete: "COMPLETE",
	ModeSoak:     "SOAK_ONLY",
}

func (m Mode) String() string {
	if m < 0 || int(m) >= len(modeNames) {
		return fmt.Sprintf("Mode(%d)", int32(m))
	}
	return modeNames[m]
}

// MarshalText encodes the mode by name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseMode accepts a mode name or its short command form.
func ParseMode(s string) (Mode, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for m, name := range modeNames {
		if s == name || name == s+"_ONLY" {
			return Mode(m), nil
		}
	}
	return ModeNone, fmt.Errorf("unknown mode %q", s)
}

// Selector is the selected-mode cell. Writers are the button handler and
// the remote command channel; the orchestrator is the only consumer.
// Every write bumps a sequence number so a consumer can tell that the
// selection was touched even if the mode value is unchanged.
type Selector struct {
	state   atomic.Uint64 // seq<<32 | mode
	changed chan struct{}
}

// NewSelector returns a Selector holding ModeNone.
func NewSelector() *Selector {
	return &Selector{changed: make(chan struct{}, 1)}
}

// Set stores m.
func (s *Selector) Set(m Mode) {
	s.store(m)
}

// Clear stores ModeNone.
func (s *Selector) Clear() {
	s.store(ModeNone)
}

func (s *Selector) store(m Mode) {
	for {
		old := s.state.Load()
		next := (old>>32+1)<<32 | uint64(uint32(m))
		if s.state.CompareAndSwap(old, next) {
			break
		}
	}
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Load returns the current mode and its sequence number.
func (s *Selector) Load() (Mode, uint32) {
	v := s.state.Load()
	return Mode(int32(uint32(v))), uint32(v >> 32)
}

// Mode returns the current mode.
func (s *Selector) Mode() Mode {
	m, _ := s.Load()
	return m
}

// Changed receives after any write. Writes in between coalesce.
func (s *Selector) Changed() <-chan struct{} {
	return s.changed
}
