package midi

import (
	"gitlab.com/gomidi/midi/v2"

	"github.com/guitarmidi/hub/internal/preset"
)

// percussionTriggerBase is the first of the four reserved trigger notes
// (36-39, the bottom pad row on an MPK-style pad).
const percussionTriggerBase uint8 = 36

// PercussionProfile handles a trigger pad pinned to the GM drum channel.
// Four reserved notes select preset slots; everything else passes through on
// channel 9 unchanged.
type PercussionProfile struct{}

func (p *PercussionProfile) Type() ControllerType { return ControllerPercussion }

func (p *PercussionProfile) ResolveChannel(int) uint8 { return 9 }

func (p *PercussionProfile) DefaultPresets() []preset.Slot {
	return []preset.Slot{
		{SlotIndex: 0, Name: "Standard Kit", Icon: "🥁", Program: 0, Channel: 9},
		{SlotIndex: 1, Name: "Room Kit", Icon: "🥁", Program: 8, Channel: 9},
		{SlotIndex: 2, Name: "Power Kit", Icon: "🥁", Program: 16, Channel: 9},
		{SlotIndex: 3, Name: "Electronic Kit", Icon: "🎛️", Program: 24, Channel: 9},
	}
}

func (p *PercussionProfile) HandleIncoming(msg midi.Message) (Command, bool) {
	var ch, key, vel uint8

	switch {
	case msg.GetNoteOn(&ch, &key, &vel):
		if slot, reserved := p.triggerSlot(key); reserved {
			if vel == 0 {
				// Running-status note-off for a trigger; consumed.
				return Command{}, false
			}
			return Command{Kind: CmdSelectSlot, Slot: slot}, true
		}
		return Command{Kind: CmdForward, Msg: midi.NoteOn(9, key, vel)}, true

	case msg.GetNoteOff(&ch, &key, &vel):
		if _, reserved := p.triggerSlot(key); reserved {
			return Command{}, false
		}
		return Command{Kind: CmdForward, Msg: midi.NoteOff(9, key)}, true

	case msg.GetControlChange(&ch, &key, &vel):
		return Command{Kind: CmdForward, Msg: midi.ControlChange(9, key, vel)}, true
	}

	// Aftertouch, pitch bend etc. are not meaningful on the pad; consumed.
	return Command{}, false
}

func (p *PercussionProfile) triggerSlot(note uint8) (int, bool) {
	if note >= percussionTriggerBase && note < percussionTriggerBase+uint8(ControllerPercussion.SlotCount()) {
		return int(note - percussionTriggerBase), true
	}
	return 0, false
}
