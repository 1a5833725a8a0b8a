package midi

import (
	"gitlab.com/gomidi/midi/v2"

	"github.com/guitarmidi/hub/internal/effects"
	"github.com/guitarmidi/hub/internal/preset"
)

// Effect control numbers understood on the master controller, plus the panic
// controls. All-sound-off and all-notes-off both trigger panic so either
// footswitch wiring works.
var masterEffectCC = map[uint8]string{
	7:  effects.MasterVolume,
	91: effects.Reverb,
	93: effects.Chorus,
	74: effects.Cutoff,
	71: effects.Resonance,
}

// MasterProfile handles the footswitch controller on channel 15. Program
// changes 0-7 select scenes that reconfigure every other controller; reserved
// control changes drive the global effects; the panic controls silence the
// rig without touching any selection.
type MasterProfile struct{}

func (p *MasterProfile) Type() ControllerType { return ControllerMaster }

func (p *MasterProfile) ResolveChannel(int) uint8 { return 15 }

func (p *MasterProfile) DefaultPresets() []preset.Slot {
	return []preset.Slot{
		{SlotIndex: 0, Name: "Acoustic Set", Icon: "🎸", Program: 0, Channel: 15},
		{SlotIndex: 1, Name: "Clean Stage", Icon: "🎸", Program: 1, Channel: 15},
		{SlotIndex: 2, Name: "Crunch", Icon: "🔥", Program: 2, Channel: 15},
		{SlotIndex: 3, Name: "High Gain", Icon: "🔥", Program: 3, Channel: 15},
		{SlotIndex: 4, Name: "Orchestral", Icon: "🎻", Program: 4, Channel: 15},
		{SlotIndex: 5, Name: "Synth Rig", Icon: "🎛️", Program: 5, Channel: 15},
		{SlotIndex: 6, Name: "Ambient Pad", Icon: "🌊", Program: 6, Channel: 15},
		{SlotIndex: 7, Name: "Percussive", Icon: "🥁", Program: 7, Channel: 15},
	}
}

func (p *MasterProfile) HandleIncoming(msg midi.Message) (Command, bool) {
	var ch, key, val uint8
	var prog uint8

	switch {
	case msg.GetProgramChange(&ch, &prog):
		if int(prog) >= ControllerMaster.SlotCount() {
			return Command{}, false
		}
		return Command{Kind: CmdSelectScene, Scene: int(prog)}, true

	case msg.GetControlChange(&ch, &key, &val):
		switch key {
		case ccAllSoundOff, ccAllNotesOff:
			return Command{Kind: CmdPanic}, true
		}
		if name, ok := masterEffectCC[key]; ok {
			// CC values are 0-127, effects live on the 0-100 UI scale.
			return Command{Kind: CmdSetEffect, Effect: name, Value: int(val) * 100 / 127}, true
		}
		return Command{}, false

	case msg.GetNoteOn(&ch, &key, &val):
		return Command{Kind: CmdForward, Msg: midi.NoteOn(15, key, val)}, true

	case msg.GetNoteOff(&ch, &key, &val):
		return Command{Kind: CmdForward, Msg: midi.NoteOff(15, key)}, true
	}

	return Command{}, false
}
