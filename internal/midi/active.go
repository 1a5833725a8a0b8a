package midi

import "sync"

// ActiveState is the single process-wide record of which preset slot each
// controller currently plays, plus the master scene. Mutated only by
// successful routing of a selection-changing event; panic never touches it.
type ActiveState struct {
	mu    sync.Mutex
	slots map[string]int // controller ID -> slot index
	scene int
}

// NewActiveState creates the state with no selections and scene 0.
func NewActiveState() *ActiveState {
	return &ActiveState{slots: make(map[string]int)}
}

// SetSlot records the active slot for one controller.
func (a *ActiveState) SetSlot(controllerID string, slotIndex int) {
	a.mu.Lock()
	a.slots[controllerID] = slotIndex
	a.mu.Unlock()
}

// Slot returns the active slot for a controller, defaulting to 0 before any
// selection has been routed.
func (a *ActiveState) Slot(controllerID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slots[controllerID]
}

// ReplaceAll atomically swaps every controller's selection and the scene in
// one update. Used by scene activation.
func (a *ActiveState) ReplaceAll(slots map[string]int, scene int) {
	a.mu.Lock()
	a.slots = make(map[string]int, len(slots))
	for id, slot := range slots {
		a.slots[id] = slot
	}
	a.scene = scene
	a.mu.Unlock()
}

// Snapshot returns a copy of all selections and the current scene.
func (a *ActiveState) Snapshot() (map[string]int, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]int, len(a.slots))
	for id, slot := range a.slots {
		out[id] = slot
	}
	return out, a.scene
}
