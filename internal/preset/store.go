package preset

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // register the sqlite driver
)

// Slot is one durable preset assignment for a controller.
type Slot struct {
	ControllerID string `json:"controller_id"`
	SlotIndex    int    `json:"slot_index"`
	Name         string `json:"name"`
	Icon         string `json:"icon"`
	Program      int    `json:"program"`
	BankMSB      int    `json:"bank_msb"`
	BankLSB      int    `json:"bank_lsb"`
	Channel      int    `json:"channel"`
}

var (
	// ErrSlotRange reports a slot index outside the controller's slot domain.
	ErrSlotRange = errors.New("slot index out of range")
	// ErrValueRange reports a program, bank or channel outside MIDI bounds.
	ErrValueRange = errors.New("value out of MIDI range")
	// ErrSlotNotFound reports a lookup of a slot that was never saved or seeded.
	ErrSlotNotFound = errors.New("preset slot not found")
)

// Validate checks the slot against the controller's slot count and MIDI bounds.
func (s Slot) Validate(slotCount int) error {
	if s.SlotIndex < 0 || s.SlotIndex >= slotCount {
		return fmt.Errorf("%w: %d (controller has %d slots)", ErrSlotRange, s.SlotIndex, slotCount)
	}
	for _, v := range []int{s.Program, s.BankMSB, s.BankLSB} {
		if v < 0 || v > 127 {
			return fmt.Errorf("%w: %d", ErrValueRange, v)
		}
	}
	if s.Channel < 0 || s.Channel > 15 {
		return fmt.Errorf("%w: channel %d", ErrValueRange, s.Channel)
	}
	return nil
}

// Store is the durable preset mapping. The in-memory cache stays authoritative
// when the database is unavailable; writes then fail loudly but reads keep
// serving the last known state.
type Store struct {
	mu    sync.Mutex
	db    *sql.DB
	cache map[string][]Slot
	log   *logrus.Entry
}

const schema = `
CREATE TABLE IF NOT EXISTS presets (
	controller_id TEXT    NOT NULL,
	slot_index    INTEGER NOT NULL,
	name          TEXT    NOT NULL,
	icon          TEXT    NOT NULL,
	program       INTEGER NOT NULL,
	bank_msb      INTEGER NOT NULL DEFAULT 0,
	bank_lsb      INTEGER NOT NULL DEFAULT 0,
	channel       INTEGER NOT NULL,
	PRIMARY KEY (controller_id, slot_index)
);
CREATE TABLE IF NOT EXISTS effects (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	master_volume INTEGER NOT NULL,
	reverb        INTEGER NOT NULL,
	chorus        INTEGER NOT NULL,
	cutoff        INTEGER NOT NULL,
	resonance     INTEGER NOT NULL
);`

// Open opens (creating if necessary) the preset database at path.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open preset database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init preset schema: %w", err)
	}
	return &Store{
		db:    db,
		cache: make(map[string][]Slot),
		log:   logrus.WithField("component", "preset-store"),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the persisted slots for a controller. When the controller has
// no persisted slots, defaults are seeded and persisted. Seeding is
// idempotent: a second Load returns the stored rows, not fresh defaults.
func (s *Store) Load(controllerID string, defaults []Slot) ([]Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slots, ok := s.cache[controllerID]; ok {
		return copySlots(slots), nil
	}

	slots, err := s.querySlots(controllerID)
	if err != nil {
		return nil, fmt.Errorf("load presets for %s: %w", controllerID, err)
	}
	if len(slots) == 0 {
		slots = copySlots(defaults)
		for i := range slots {
			slots[i].ControllerID = controllerID
			slots[i].SlotIndex = i
		}
		if err := s.persistAll(controllerID, slots); err != nil {
			// Memory stays authoritative; the system runs without durability
			// until storage recovers.
			s.log.WithError(err).Warn("seeding defaults failed, continuing in memory")
		}
	}
	s.cache[controllerID] = slots
	return copySlots(slots), nil
}

// Get returns one cached slot. The controller must have been loaded first.
func (s *Store) Get(controllerID string, slotIndex int) (Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, slot := range s.cache[controllerID] {
		if slot.SlotIndex == slotIndex {
			return slot, nil
		}
	}
	return Slot{}, fmt.Errorf("%w: %s/%d", ErrSlotNotFound, controllerID, slotIndex)
}

// Save validates and persists one slot. The write hits storage before the
// cache: on failure the previous in-memory preset remains authoritative and
// the caller gets an explicit error.
func (s *Store) Save(controllerID string, slot Slot, slotCount int) error {
	if err := slot.Validate(slotCount); err != nil {
		return err
	}
	slot.ControllerID = controllerID

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.persistOne(slot); err != nil {
		return fmt.Errorf("persist preset %s/%d: %w", controllerID, slot.SlotIndex, err)
	}

	slots := s.cache[controllerID]
	replaced := false
	for i := range slots {
		if slots[i].SlotIndex == slot.SlotIndex {
			slots[i] = slot
			replaced = true
			break
		}
	}
	if !replaced {
		slots = append(slots, slot)
	}
	s.cache[controllerID] = slots
	return nil
}

// LoadEffects returns the persisted global effect values, or nil when none
// have been stored yet.
func (s *Store) LoadEffects() (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT master_volume, reverb, chorus, cutoff, resonance FROM effects WHERE id = 1`)
	var volume, reverb, chorus, cutoff, resonance int
	err := row.Scan(&volume, &reverb, &chorus, &cutoff, &resonance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load effects: %w", err)
	}
	return map[string]int{
		"master_volume": volume,
		"reverb":        reverb,
		"chorus":        chorus,
		"cutoff":        cutoff,
		"resonance":     resonance,
	}, nil
}

// SaveEffects persists the global effect values.
func (s *Store) SaveEffects(values map[string]int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO effects (id, master_volume, reverb, chorus, cutoff, resonance)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			master_volume = excluded.master_volume,
			reverb        = excluded.reverb,
			chorus        = excluded.chorus,
			cutoff        = excluded.cutoff,
			resonance     = excluded.resonance`,
		values["master_volume"], values["reverb"], values["chorus"],
		values["cutoff"], values["resonance"])
	if err != nil {
		return fmt.Errorf("persist effects: %w", err)
	}
	return nil
}

// Controllers returns the IDs of all controllers currently loaded in memory.
func (s *Store) Controllers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.cache))
	for id := range s.cache {
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) querySlots(controllerID string) ([]Slot, error) {
	rows, err := s.db.Query(`
		SELECT controller_id, slot_index, name, icon, program, bank_msb, bank_lsb, channel
		FROM presets WHERE controller_id = ? ORDER BY slot_index`, controllerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []Slot
	for rows.Next() {
		var slot Slot
		if err := rows.Scan(&slot.ControllerID, &slot.SlotIndex, &slot.Name, &slot.Icon,
			&slot.Program, &slot.BankMSB, &slot.BankLSB, &slot.Channel); err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func (s *Store) persistOne(slot Slot) error {
	_, err := s.db.Exec(`
		INSERT INTO presets (controller_id, slot_index, name, icon, program, bank_msb, bank_lsb, channel)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (controller_id, slot_index) DO UPDATE SET
			name = excluded.name, icon = excluded.icon, program = excluded.program,
			bank_msb = excluded.bank_msb, bank_lsb = excluded.bank_lsb, channel = excluded.channel`,
		slot.ControllerID, slot.SlotIndex, slot.Name, slot.Icon,
		slot.Program, slot.BankMSB, slot.BankLSB, slot.Channel)
	return err
}

func (s *Store) persistAll(controllerID string, slots []Slot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, slot := range slots {
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO presets (controller_id, slot_index, name, icon, program, bank_msb, bank_lsb, channel)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			controllerID, slot.SlotIndex, slot.Name, slot.Icon,
			slot.Program, slot.BankMSB, slot.BankLSB, slot.Channel); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func copySlots(slots []Slot) []Slot {
	out := make([]Slot, len(slots))
	copy(out, slots)
	return out
}
