package midi

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// Control numbers the synth backend and master profile speak.
const (
	ccBankMSB       uint8 = 0
	ccBankLSB       uint8 = 32
	ccAllSoundOff   uint8 = 120
	ccResetControls uint8 = 121
	ccAllNotesOff   uint8 = 123
)

// Synth is the backend every normalized command is forwarded to. The real
// implementation talks to a synthesizer's MIDI input port; tests substitute
// a recording fake.
type Synth interface {
	// Send forwards an already-normalized channel message unchanged.
	Send(msg midi.Message) error
	// ProgramChange selects program/bank on one channel (bank select CCs
	// followed by the program change).
	ProgramChange(channel uint8, program, bankMSB, bankLSB int) error
	// ControlChange sets one controller value on one channel.
	ControlChange(channel, controller, value uint8) error
	// Silence sends all-sound-off, all-notes-off and reset-controllers on
	// every channel. It never touches preset selection.
	Silence() error
}

// PortSynth drives a synthesizer through a MIDI output port.
type PortSynth struct {
	portName string
	send     func(midi.Message) error
}

// OpenSynth connects to the named output port.
func OpenSynth(portName string) (*PortSynth, error) {
	out, err := midi.FindOutPort(portName)
	if err != nil {
		return nil, fmt.Errorf("synth output port %q not found: %w", portName, err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		return nil, fmt.Errorf("open synth output %q: %w", portName, err)
	}
	return &PortSynth{portName: portName, send: send}, nil
}

func (s *PortSynth) Send(msg midi.Message) error {
	if err := s.send(msg); err != nil {
		return fmt.Errorf("send to %s: %w", s.portName, err)
	}
	return nil
}

func (s *PortSynth) ProgramChange(channel uint8, program, bankMSB, bankLSB int) error {
	if bankMSB != 0 || bankLSB != 0 {
		if err := s.Send(midi.ControlChange(channel, ccBankMSB, uint8(bankMSB))); err != nil {
			return err
		}
		if err := s.Send(midi.ControlChange(channel, ccBankLSB, uint8(bankLSB))); err != nil {
			return err
		}
	}
	return s.Send(midi.ProgramChange(channel, uint8(program)))
}

func (s *PortSynth) ControlChange(channel, controller, value uint8) error {
	return s.Send(midi.ControlChange(channel, controller, value))
}

func (s *PortSynth) Silence() error {
	for ch := uint8(0); ch < 16; ch++ {
		for _, cc := range []uint8{ccAllSoundOff, ccAllNotesOff, ccResetControls} {
			if err := s.Send(midi.ControlChange(ch, cc, 0)); err != nil {
				return err
			}
		}
	}
	return nil
}
