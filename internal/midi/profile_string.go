package midi

import (
	"gitlab.com/gomidi/midi/v2"

	"github.com/guitarmidi/hub/internal/preset"
)

// StringProfile handles a hexaphonic guitar interface. Each of the six input
// sub-channels is statically bound to the identical output channel, so string
// k plays on channel k with its own instrument. A program change on
// sub-channel k retunes only that string's preset.
type StringProfile struct{}

func (p *StringProfile) Type() ControllerType { return ControllerString }

func (p *StringProfile) ResolveChannel(slotIndex int) uint8 { return uint8(slotIndex) }

func (p *StringProfile) DefaultPresets() []preset.Slot {
	return []preset.Slot{
		{SlotIndex: 0, Name: "Acoustic Guitar", Icon: "🎸", Program: 24, Channel: 0},
		{SlotIndex: 1, Name: "Electric Clean", Icon: "🎸", Program: 27, Channel: 1},
		{SlotIndex: 2, Name: "Overdriven", Icon: "🎸", Program: 29, Channel: 2},
		{SlotIndex: 3, Name: "Distortion", Icon: "🎸", Program: 30, Channel: 3},
		{SlotIndex: 4, Name: "Harmonics", Icon: "🎸", Program: 31, Channel: 4},
		{SlotIndex: 5, Name: "Synth Lead", Icon: "🎛️", Program: 80, Channel: 5},
	}
}

func (p *StringProfile) HandleIncoming(msg midi.Message) (Command, bool) {
	var ch, key, vel uint8
	var prog uint8

	switch {
	case msg.GetProgramChange(&ch, &prog):
		if int(ch) >= ControllerString.SlotCount() {
			return Command{}, false
		}
		return Command{Kind: CmdUpdateSlotProgram, Slot: int(ch), Value: int(prog)}, true

	case msg.GetNoteOn(&ch, &key, &vel):
		if int(ch) >= ControllerString.SlotCount() {
			return Command{}, false
		}
		return Command{Kind: CmdForward, Msg: midi.NoteOn(ch, key, vel)}, true

	case msg.GetNoteOff(&ch, &key, &vel):
		if int(ch) >= ControllerString.SlotCount() {
			return Command{}, false
		}
		return Command{Kind: CmdForward, Msg: midi.NoteOff(ch, key)}, true

	case msg.GetControlChange(&ch, &key, &vel):
		if int(ch) >= ControllerString.SlotCount() {
			return Command{}, false
		}
		return Command{Kind: CmdForward, Msg: midi.ControlChange(ch, key, vel)}, true
	}

	// Pitch bend and channel pressure carry the string expression; forward
	// them raw, the sub-channel already equals the output channel.
	var rel int16
	var abs uint16
	if msg.GetPitchBend(&ch, &rel, &abs) && int(ch) < ControllerString.SlotCount() {
		return Command{Kind: CmdForward, Msg: msg}, true
	}
	var pressure uint8
	if msg.GetAfterTouch(&ch, &pressure) && int(ch) < ControllerString.SlotCount() {
		return Command{Kind: CmdForward, Msg: msg}, true
	}

	return Command{}, false
}
