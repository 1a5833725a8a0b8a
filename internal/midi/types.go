package midi

import (
	"strings"
	"time"
)

// ControllerType classifies a physical MIDI controller.
type ControllerType string

const (
	ControllerPercussion ControllerType = "percussion" // trigger pad, channel 9
	ControllerString     ControllerType = "string"     // hexaphonic pickup, channels 0-5
	ControllerMaster     ControllerType = "master"     // footswitch, channel 15
	ControllerUnknown    ControllerType = "unknown"
)

// SlotCount returns the size of the preset slot domain for the type.
func (t ControllerType) SlotCount() int {
	switch t {
	case ControllerPercussion:
		return 4
	case ControllerString:
		return 6
	case ControllerMaster:
		return 8
	default:
		return 0
	}
}

// Channel returns the output channel pinned to the given slot. Percussion is
// fixed on the GM drum channel, strings map slot k to channel k, master owns
// channel 15.
func (t ControllerType) Channel(slotIndex int) uint8 {
	switch t {
	case ControllerPercussion:
		return 9
	case ControllerString:
		return uint8(slotIndex)
	case ControllerMaster:
		return 15
	default:
		return 0
	}
}

// SlotCounts maps type names to slot domain sizes, in the form the preset
// snapshot importer consumes.
func SlotCounts() map[string]int {
	return map[string]int{
		string(ControllerPercussion): ControllerPercussion.SlotCount(),
		string(ControllerString):     ControllerString.SlotCount(),
		string(ControllerMaster):     ControllerMaster.SlotCount(),
	}
}

// Controller is the registry record for one physical port. Records are
// created on first sight and flagged, never deleted, on disconnect, so
// identity (and everything keyed on it) survives reconnects.
type Controller struct {
	ID        string         `json:"id"`
	PortName  string         `json:"port_name"`
	Type      ControllerType `json:"type"`
	Connected bool           `json:"connected"`
	LastSeen  time.Time      `json:"last_seen"`
}

// controllerID derives the stable identity from a port name. ALSA decorates
// port names with client numbers ("TriplePlay 24:0"), which must not change
// the identity across replugs.
func controllerID(portName string) string {
	name := portName
	if i := strings.LastIndex(name, " "); i > 0 && strings.Contains(name[i+1:], ":") {
		name = name[:i]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
