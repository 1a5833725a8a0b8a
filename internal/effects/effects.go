// Package effects holds the process-wide global effect parameters and pushes
// them to the synth as control changes.
package effects

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Effect names accepted by Set.
const (
	MasterVolume = "master_volume"
	Reverb       = "reverb"
	Chorus       = "chorus"
	Cutoff       = "cutoff"
	Resonance    = "resonance"
)

// ccByEffect maps each effect to its General MIDI control number.
var ccByEffect = map[string]uint8{
	MasterVolume: 7,
	Reverb:       91,
	Chorus:       93,
	Cutoff:       74,
	Resonance:    71,
}

var (
	// ErrUnknownEffect reports an effect name outside the fixed set.
	ErrUnknownEffect = errors.New("unknown effect")
	// ErrValueRange reports a value outside [0,100].
	ErrValueRange = errors.New("effect value out of range")
)

// Synth is the subset of the synth backend the effects state writes to.
type Synth interface {
	ControlChange(channel, controller, value uint8) error
}

// State is the single process-wide effects instance. Values are on the 0-100
// UI scale and converted to 0-127 at the synth boundary.
type State struct {
	mu      sync.Mutex
	values  map[string]int
	synth   Synth
	chans   []uint8
	persist func(map[string]int) error
	log     *logrus.Entry
}

// Defaults returns the documented initial effect values.
func Defaults() map[string]int {
	return map[string]int{
		MasterVolume: 80,
		Reverb:       40,
		Chorus:       20,
		Cutoff:       64,
		Resonance:    64,
	}
}

// New creates the effects state. channels is the fixed set of active synth
// channels the values are applied to; persist, when non-nil, is called with a
// snapshot after every successful mutation. initial overrides defaults when
// non-nil (restored from the store on startup).
func New(synth Synth, channels []uint8, initial map[string]int, persist func(map[string]int) error) *State {
	values := Defaults()
	for name, v := range initial {
		if _, ok := values[name]; ok && v >= 0 && v <= 100 {
			values[name] = v
		}
	}
	return &State{
		values:  values,
		synth:   synth,
		chans:   channels,
		persist: persist,
		log:     logrus.WithField("component", "effects"),
	}
}

// Set validates, stores and synchronously applies one effect value to every
// active synth channel. An out-of-range value is rejected with no mutation.
func (s *State) Set(name string, value int) error {
	cc, ok := ccByEffect[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownEffect, name)
	}
	if value < 0 || value > 100 {
		return fmt.Errorf("%w: %s=%d", ErrValueRange, name, value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	wire := uint8(value * 127 / 100)
	for _, ch := range s.chans {
		if err := s.synth.ControlChange(ch, cc, wire); err != nil {
			return fmt.Errorf("apply %s to channel %d: %w", name, ch, err)
		}
	}
	s.values[name] = value

	if s.persist != nil {
		if err := s.persist(s.snapshotLocked()); err != nil {
			// The live value is already applied; durability catches up later.
			s.log.WithError(err).Warn("effects persistence failed")
		}
	}
	return nil
}

// Get returns a snapshot of all effect values.
func (s *State) Get() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Reapply pushes every stored value to the synth again, used after panic so
// the reset controllers come back to the configured state.
func (s *State) Reapply() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reapplyLocked()
}

// Restore replaces the stored values with a persisted snapshot and pushes
// everything to the synth. Unknown names and out-of-range values are ignored.
// The caller already owns the durable copy, so persist is not re-triggered.
func (s *State) Restore(values map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, v := range values {
		if _, ok := s.values[name]; ok && v >= 0 && v <= 100 {
			s.values[name] = v
		}
	}
	return s.reapplyLocked()
}

func (s *State) reapplyLocked() error {
	for name, value := range s.values {
		cc := ccByEffect[name]
		wire := uint8(value * 127 / 100)
		for _, ch := range s.chans {
			if err := s.synth.ControlChange(ch, cc, wire); err != nil {
				return fmt.Errorf("reapply %s to channel %d: %w", name, ch, err)
			}
		}
	}
	return nil
}

func (s *State) snapshotLocked() map[string]int {
	out := make(map[string]int, len(s.values))
	for name, v := range s.values {
		out[name] = v
	}
	return out
}
