package midi

import (
	"gitlab.com/gomidi/midi/v2"

	"github.com/guitarmidi/hub/internal/preset"
)

// CommandKind discriminates the normalized commands profiles emit.
type CommandKind int

const (
	// CmdForward passes a channel message through to the synth unchanged
	// (already rewritten onto the controller's output channel).
	CmdForward CommandKind = iota
	// CmdSelectSlot activates the preset stored in Slot.
	CmdSelectSlot
	// CmdUpdateSlotProgram rewrites one slot's program in place (hexaphonic
	// per-string program change) and applies it.
	CmdUpdateSlotProgram
	// CmdSelectScene replaces the active-preset assignment of every other
	// controller according to the scene index.
	CmdSelectScene
	// CmdSetEffect mutates one global effect parameter.
	CmdSetEffect
	// CmdPanic silences all sound without touching selection state.
	CmdPanic
)

// Command is the normalized result of a profile handling a raw event.
type Command struct {
	Kind   CommandKind
	Slot   int
	Scene  int
	Effect string
	Value  int
	Msg    midi.Message
}

// Profile is the per-type message handling policy. The set of controller
// types is closed; new types are added here and in ProfileFor, not by
// implementing the interface elsewhere.
type Profile interface {
	Type() ControllerType

	// DefaultPresets returns the seed slots used when a controller of this
	// type has no persisted presets.
	DefaultPresets() []preset.Slot

	// ResolveChannel returns the output channel for a slot index.
	ResolveChannel(slotIndex int) uint8

	// HandleIncoming translates a raw event into a normalized command.
	// ok=false means the event is consumed with no effect.
	HandleIncoming(msg midi.Message) (cmd Command, ok bool)
}

// ProfileFor returns the profile for a controller type, or nil for
// ControllerUnknown.
func ProfileFor(t ControllerType) Profile {
	switch t {
	case ControllerPercussion:
		return &PercussionProfile{}
	case ControllerString:
		return &StringProfile{}
	case ControllerMaster:
		return &MasterProfile{}
	default:
		return nil
	}
}
