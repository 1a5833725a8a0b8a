package midi

import (
	"testing"

	"gitlab.com/gomidi/midi/v2"

	"github.com/guitarmidi/hub/internal/effects"
)

func TestPercussionReservedNotesSelectSlots(t *testing.T) {
	p := &PercussionProfile{}

	for note := uint8(36); note <= 39; note++ {
		cmd, ok := p.HandleIncoming(midi.NoteOn(9, note, 100))
		if !ok || cmd.Kind != CmdSelectSlot {
			t.Fatalf("note %d: expected slot selection, got %+v ok=%v", note, cmd, ok)
		}
		if cmd.Slot != int(note-36) {
			t.Errorf("note %d selected slot %d, want %d", note, cmd.Slot, note-36)
		}
	}
}

func TestPercussionPassThroughOnDrumChannel(t *testing.T) {
	p := &PercussionProfile{}

	cmd, ok := p.HandleIncoming(midi.NoteOn(0, 50, 90))
	if !ok || cmd.Kind != CmdForward {
		t.Fatalf("expected forward, got %+v ok=%v", cmd, ok)
	}
	var ch, key, vel uint8
	if !cmd.Msg.GetNoteOn(&ch, &key, &vel) {
		t.Fatal("forwarded message is not a note on")
	}
	if ch != 9 || key != 50 || vel != 90 {
		t.Errorf("forwarded ch=%d key=%d vel=%d, want 9/50/90", ch, key, vel)
	}

	// Note off for a reserved trigger is consumed.
	if _, ok := p.HandleIncoming(midi.NoteOff(9, 37)); ok {
		t.Error("reserved trigger note off should be consumed")
	}
}

func TestStringProgramChangeIsPerString(t *testing.T) {
	p := &StringProfile{}

	for ch := uint8(0); ch < 6; ch++ {
		cmd, ok := p.HandleIncoming(midi.ProgramChange(ch, 42))
		if !ok || cmd.Kind != CmdUpdateSlotProgram {
			t.Fatalf("sub-channel %d: expected program update, got %+v ok=%v", ch, cmd, ok)
		}
		if cmd.Slot != int(ch) || cmd.Value != 42 {
			t.Errorf("sub-channel %d: slot=%d value=%d, want %d/42", ch, cmd.Slot, cmd.Value, ch)
		}
	}

	// Sub-channels beyond the six strings are dropped.
	if _, ok := p.HandleIncoming(midi.ProgramChange(6, 42)); ok {
		t.Error("program change on sub-channel 6 should be dropped")
	}
}

func TestStringNotesKeepTheirChannel(t *testing.T) {
	p := &StringProfile{}

	cmd, ok := p.HandleIncoming(midi.NoteOn(3, 64, 101))
	if !ok || cmd.Kind != CmdForward {
		t.Fatalf("expected forward, got %+v ok=%v", cmd, ok)
	}
	var ch, key, vel uint8
	if !cmd.Msg.GetNoteOn(&ch, &key, &vel) || ch != 3 {
		t.Errorf("string note forwarded on channel %d, want 3", ch)
	}

	bend, ok := p.HandleIncoming(midi.Pitchbend(2, 1024))
	if !ok || bend.Kind != CmdForward {
		t.Fatalf("pitch bend not forwarded: %+v ok=%v", bend, ok)
	}

	if _, ok := p.HandleIncoming(midi.NoteOn(7, 64, 101)); ok {
		t.Error("note on sub-channel 7 should be dropped")
	}
}

func TestMasterProgramChangeSelectsScene(t *testing.T) {
	p := &MasterProfile{}

	cmd, ok := p.HandleIncoming(midi.ProgramChange(15, 5))
	if !ok || cmd.Kind != CmdSelectScene || cmd.Scene != 5 {
		t.Fatalf("expected scene 5, got %+v ok=%v", cmd, ok)
	}

	if _, ok := p.HandleIncoming(midi.ProgramChange(15, 8)); ok {
		t.Error("program change 8 is outside the scene domain and should be dropped")
	}
}

func TestMasterControlChangeMapsEffects(t *testing.T) {
	p := &MasterProfile{}

	cases := []struct {
		cc   uint8
		want string
	}{
		{7, effects.MasterVolume},
		{91, effects.Reverb},
		{93, effects.Chorus},
		{74, effects.Cutoff},
		{71, effects.Resonance},
	}
	for _, tc := range cases {
		cmd, ok := p.HandleIncoming(midi.ControlChange(15, tc.cc, 127))
		if !ok || cmd.Kind != CmdSetEffect {
			t.Fatalf("cc %d: expected effect command, got %+v ok=%v", tc.cc, cmd, ok)
		}
		if cmd.Effect != tc.want || cmd.Value != 100 {
			t.Errorf("cc %d mapped to %s=%d, want %s=100", tc.cc, cmd.Effect, cmd.Value, tc.want)
		}
	}
}

func TestMasterPanicControls(t *testing.T) {
	p := &MasterProfile{}

	for _, cc := range []uint8{120, 123} {
		cmd, ok := p.HandleIncoming(midi.ControlChange(15, cc, 0))
		if !ok || cmd.Kind != CmdPanic {
			t.Fatalf("cc %d: expected panic, got %+v ok=%v", cc, cmd, ok)
		}
	}
}

func TestDefaultPresetDomains(t *testing.T) {
	for _, typ := range []ControllerType{ControllerPercussion, ControllerString, ControllerMaster} {
		p := ProfileFor(typ)
		defaults := p.DefaultPresets()
		if len(defaults) != typ.SlotCount() {
			t.Errorf("%s: %d defaults, want %d", typ, len(defaults), typ.SlotCount())
		}
		for i, slot := range defaults {
			if slot.SlotIndex != i {
				t.Errorf("%s default %d has slot index %d", typ, i, slot.SlotIndex)
			}
			if uint8(slot.Channel) != p.ResolveChannel(i) {
				t.Errorf("%s slot %d on channel %d, want %d", typ, i, slot.Channel, p.ResolveChannel(i))
			}
		}
	}
	if ProfileFor(ControllerUnknown) != nil {
		t.Error("unknown type must have no profile")
	}
}
