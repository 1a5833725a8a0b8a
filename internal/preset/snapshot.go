package preset

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// SnapshotVersion is the current export document version.
const SnapshotVersion = 1

// ErrSnapshotInvalid reports an import document that failed validation.
// Nothing is applied when it is returned.
var ErrSnapshotInvalid = errors.New("invalid snapshot")

// ControllerSnapshot is the exported preset set of one controller.
type ControllerSnapshot struct {
	ControllerID string `json:"controller_id"`
	Type         string `json:"type"`
	Slots        []Slot `json:"slots"`
}

// Snapshot is the versioned, self-describing export of the full preset set,
// used for backup and migration between installs.
type Snapshot struct {
	Version     int                  `json:"version"`
	ID          string               `json:"id"`
	CreatedAt   time.Time            `json:"created_at"`
	Controllers []ControllerSnapshot `json:"controllers"`
	Effects     map[string]int       `json:"effects,omitempty"`
}

// Export produces a snapshot of every persisted preset plus the stored
// global effects. typeOf resolves a controller ID to its type name.
func (s *Store) Export(typeOf func(controllerID string) string) (*Snapshot, error) {
	s.mu.Lock()
	rows, err := s.db.Query(`
		SELECT controller_id, slot_index, name, icon, program, bank_msb, bank_lsb, channel
		FROM presets ORDER BY controller_id, slot_index`)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("export presets: %w", err)
	}

	byController := make(map[string][]Slot)
	for rows.Next() {
		var slot Slot
		if err := rows.Scan(&slot.ControllerID, &slot.SlotIndex, &slot.Name, &slot.Icon,
			&slot.Program, &slot.BankMSB, &slot.BankLSB, &slot.Channel); err != nil {
			rows.Close()
			s.mu.Unlock()
			return nil, fmt.Errorf("export presets: %w", err)
		}
		byController[slot.ControllerID] = append(byController[slot.ControllerID], slot)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("export presets: %w", err)
	}
	s.mu.Unlock()

	effects, err := s.LoadEffects()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(byController))
	for id := range byController {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	snap := &Snapshot{
		Version:   SnapshotVersion,
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		Effects:   effects,
	}
	for _, id := range ids {
		snap.Controllers = append(snap.Controllers, ControllerSnapshot{
			ControllerID: id,
			Type:         typeOf(id),
			Slots:        byController[id],
		})
	}
	return snap, nil
}

// Import validates the whole document and applies it in one transaction,
// presets and the global effects record together. slotCounts maps a
// controller type name to its slot domain size; any slot outside its domain,
// any value outside MIDI bounds or an unknown version rejects the entire
// document and leaves the store unmodified.
func (s *Store) Import(snap *Snapshot, slotCounts map[string]int) error {
	if snap.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrSnapshotInvalid, snap.Version)
	}
	for _, cs := range snap.Controllers {
		if cs.ControllerID == "" {
			return fmt.Errorf("%w: controller with empty id", ErrSnapshotInvalid)
		}
		count, ok := slotCounts[cs.Type]
		if !ok {
			return fmt.Errorf("%w: unknown controller type %q", ErrSnapshotInvalid, cs.Type)
		}
		for _, slot := range cs.Slots {
			if err := slot.Validate(count); err != nil {
				return fmt.Errorf("%w: %s slot %d: %v", ErrSnapshotInvalid, cs.ControllerID, slot.SlotIndex, err)
			}
		}
	}
	for name, value := range snap.Effects {
		if value < 0 || value > 100 {
			return fmt.Errorf("%w: effect %s=%d outside [0,100]", ErrSnapshotInvalid, name, value)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("import presets: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM presets`); err != nil {
		tx.Rollback()
		return fmt.Errorf("import presets: %w", err)
	}
	for _, cs := range snap.Controllers {
		for _, slot := range cs.Slots {
			if _, err := tx.Exec(`
				INSERT INTO presets (controller_id, slot_index, name, icon, program, bank_msb, bank_lsb, channel)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				cs.ControllerID, slot.SlotIndex, slot.Name, slot.Icon,
				slot.Program, slot.BankMSB, slot.BankLSB, slot.Channel); err != nil {
				tx.Rollback()
				return fmt.Errorf("import presets: %w", err)
			}
		}
	}
	if snap.Effects != nil {
		if _, err := tx.Exec(`
			INSERT INTO effects (id, master_volume, reverb, chorus, cutoff, resonance)
			VALUES (1, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				master_volume = excluded.master_volume,
				reverb        = excluded.reverb,
				chorus        = excluded.chorus,
				cutoff        = excluded.cutoff,
				resonance     = excluded.resonance`,
			snap.Effects["master_volume"], snap.Effects["reverb"], snap.Effects["chorus"],
			snap.Effects["cutoff"], snap.Effects["resonance"]); err != nil {
			tx.Rollback()
			return fmt.Errorf("import effects: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("import presets: %w", err)
	}

	// Only after commit does the new document become visible to readers.
	s.cache = make(map[string][]Slot)
	for _, cs := range snap.Controllers {
		slots := make([]Slot, len(cs.Slots))
		copy(slots, cs.Slots)
		for i := range slots {
			slots[i].ControllerID = cs.ControllerID
		}
		s.cache[cs.ControllerID] = slots
	}
	return nil
}
