package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/guitarmidi/hub/internal/effects"
	"github.com/guitarmidi/hub/internal/midi"
	"github.com/guitarmidi/hub/internal/preset"
)

type fakeSynth struct {
	mu       sync.Mutex
	programs int
	silences int
}

func (f *fakeSynth) Send(gomidi.Message) error { return nil }

func (f *fakeSynth) ProgramChange(uint8, int, int, int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.programs++
	return nil
}

func (f *fakeSynth) ControlChange(uint8, uint8, uint8) error { return nil }

func (f *fakeSynth) Silence() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.silences++
	return nil
}

func newTestServer(t *testing.T) (*Server, *midi.Router) {
	t.Helper()

	store, err := preset.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	synth := &fakeSynth{}
	fx := effects.New(synth, []uint8{0, 1, 2, 3, 4, 5, 9, 15}, nil, store.SaveEffects)
	activity := midi.NewActivityLog(20)

	rules, err := midi.CompileRules(midi.DefaultRules())
	if err != nil {
		t.Fatalf("compile rules: %v", err)
	}
	registry := midi.NewRegistry(rules)
	router := midi.NewRouter(registry, store, preset.NewWriter(store, 8), fx, synth, activity)

	srv := New(":0", router, store, fx, activity)
	router.SetNotify(srv.NotifyChange)
	registry.SetOnChange(func() { srv.NotifyChange("controllers") })
	return srv, router
}

func TestStateEndpoint(t *testing.T) {
	srv, router := newTestServer(t)
	router.Registry().Resolve("Akai MPK mini")

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var state StatePayload
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(state.Controllers) != 1 {
		t.Fatalf("controllers = %d, want 1", len(state.Controllers))
	}
	id := state.Controllers[0].ID
	if len(state.Presets[id]) != 4 {
		t.Fatalf("percussion presets = %d, want 4", len(state.Presets[id]))
	}
	if state.Effects[effects.MasterVolume] != 80 {
		t.Fatalf("default master volume = %d, want 80", state.Effects[effects.MasterVolume])
	}
}

func TestEffectEndpointValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/effects/master_volume", "application/json",
		strings.NewReader(`{"value":150}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("out-of-range value: status = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/api/effects/master_volume", "application/json",
		strings.NewReader(`{"value":73}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid value: status = %d, want 200", resp.StatusCode)
	}
}

func TestPresetSaveRejectsBadSlot(t *testing.T) {
	srv, router := newTestServer(t)
	ctrl := router.Registry().Resolve("Akai MPK mini")

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body, _ := json.Marshal(preset.Slot{Name: "Kit", Program: 300})
	req, _ := http.NewRequest(http.MethodPut,
		fmt.Sprintf("%s/api/controllers/%s/presets/1", ts.URL, ctrl.ID), bytes.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("program 300: status = %d, want 400", resp.StatusCode)
	}
}

func TestStatusForMapsSentinels(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{midi.ErrUnknownController, http.StatusNotFound},
		{fmt.Errorf("slot lookup: %w", preset.ErrSlotNotFound), http.StatusNotFound},
		{preset.ErrSlotRange, http.StatusBadRequest},
		{effects.ErrUnknownEffect, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestUnknownControllerIs404(t *testing.T) {
	srv, _ := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/controllers/nobody/active/0", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntilEvent(t *testing.T, conn *websocket.Conn, event string) StateMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var msg StateMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %q: %v", event, err)
		}
		if msg.Event == event {
			return msg
		}
	}
}

func TestBroadcastReachesOtherClients(t *testing.T) {
	srv, router := newTestServer(t)
	ctrl := router.Registry().Resolve("Akai MPK mini")

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	clientA := dialWS(t, ts)
	clientB := dialWS(t, ts)

	// Both clients converge to the same initial view.
	snapA := readUntilEvent(t, clientA, "snapshot")
	snapB := readUntilEvent(t, clientB, "snapshot")
	if snapA.State.Scene != snapB.State.Scene {
		t.Fatal("clients started from different snapshots")
	}

	// Client A activates percussion slot 2 over the API.
	resp, err := http.Post(fmt.Sprintf("%s/api/controllers/%s/active/2", ts.URL, ctrl.ID),
		"application/json", nil)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("activate: status = %d", resp.StatusCode)
	}

	// Client B observes the identical state within the broadcast cycle.
	msg := readUntilEvent(t, clientB, "active")
	if got := msg.State.Active[ctrl.ID]; got != 2 {
		t.Fatalf("client B sees slot %d, want 2", got)
	}
	msgA := readUntilEvent(t, clientA, "active")
	if msgA.State.Active[ctrl.ID] != msg.State.Active[ctrl.ID] {
		t.Fatal("clients diverged")
	}
}

func TestPanicEndpointKeepsSelection(t *testing.T) {
	srv, router := newTestServer(t)
	ctrl := router.Registry().Resolve("Akai MPK mini")
	if err := router.ActivateSlot(ctrl.ID, 1); err != nil {
		t.Fatalf("activate: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/panic", "application/json", nil)
	if err != nil {
		t.Fatalf("panic: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if got := router.Active().Slot(ctrl.ID); got != 1 {
		t.Fatalf("panic changed selection to %d", got)
	}
}

func TestExportImportOverHTTP(t *testing.T) {
	srv, router := newTestServer(t)
	ctrl := router.Registry().Resolve("Fishman TriplePlay")
	if err := router.SavePreset(ctrl.ID, preset.Slot{SlotIndex: 1, Name: "Twelve String", Program: 25}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := router.SetEffect(effects.MasterVolume, 73); err != nil {
		t.Fatalf("set effect: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var snap preset.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	resp.Body.Close()
	if snap.Version != preset.SnapshotVersion {
		t.Fatalf("version = %d", snap.Version)
	}
	if snap.Effects[effects.MasterVolume] != 73 {
		t.Fatalf("export missing effects: %v", snap.Effects)
	}

	// Change the live value, then restore the backup: the imported document
	// must win, durably and in the live state.
	if err := router.SetEffect(effects.MasterVolume, 20); err != nil {
		t.Fatalf("set effect: %v", err)
	}

	body, _ := json.Marshal(snap)
	resp, err = http.Post(ts.URL+"/api/import", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("import status = %d", resp.StatusCode)
	}

	var state StatePayload
	resp, err = http.Get(ts.URL + "/api/state")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	resp.Body.Close()
	if state.Effects[effects.MasterVolume] != 73 {
		t.Fatalf("imported effects not live: %v", state.Effects)
	}

	// Corrupt the document: the whole import must be rejected.
	snap.Controllers[0].Slots[0].SlotIndex = 42
	body, _ = json.Marshal(snap)
	resp, err = http.Post(ts.URL+"/api/import", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("corrupt import status = %d, want 400", resp.StatusCode)
	}
}
