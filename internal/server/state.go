package server

import (
	"encoding/json"

	"github.com/guitarmidi/hub/internal/midi"
	"github.com/guitarmidi/hub/internal/preset"
)

// StatePayload is the consolidated view pushed to clients and served by
// GET /api/state.
type StatePayload struct {
	Controllers []midi.Controller        `json:"controllers"`
	Presets     map[string][]preset.Slot `json:"presets"`
	Active      map[string]int           `json:"active"`
	Scene       int                      `json:"scene"`
	Effects     map[string]int           `json:"effects"`
	Activity    []midi.ActivityEntry     `json:"activity"`
}

// StateMessage is the websocket push envelope.
type StateMessage struct {
	Event string       `json:"event"`
	State StatePayload `json:"state"`
}

func (s *Server) buildState() StatePayload {
	controllers := s.router.Registry().Controllers()
	presets := make(map[string][]preset.Slot, len(controllers))
	for _, ctrl := range controllers {
		profile := midi.ProfileFor(ctrl.Type)
		if profile == nil {
			continue
		}
		slots, err := s.store.Load(ctrl.ID, profile.DefaultPresets())
		if err != nil {
			s.log.WithError(err).WithField("controller", ctrl.ID).Warn("state assembly: presets unavailable")
			continue
		}
		presets[ctrl.ID] = slots
	}

	active, scene := s.router.Active().Snapshot()
	return StatePayload{
		Controllers: controllers,
		Presets:     presets,
		Active:      active,
		Scene:       scene,
		Effects:     s.effects.Get(),
		Activity:    s.activity.Entries(),
	}
}

func (s *Server) stateMessage(event string) []byte {
	payload, err := json.Marshal(StateMessage{Event: event, State: s.buildState()})
	if err != nil {
		s.log.WithError(err).Error("state marshal failed")
		return []byte(`{"event":"error"}`)
	}
	return payload
}

// NotifyChange assembles the full state and pushes it to every client.
// Wired as the router's notify callback and the registry's change hook.
func (s *Server) NotifyChange(event string) {
	s.hub.Broadcast(s.stateMessage(event))
}
