// Package server exposes the remote control surface: a JSON API mirroring the
// synth state plus a websocket that pushes the consolidated state to every
// connected client on each change.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/guitarmidi/hub/internal/effects"
	"github.com/guitarmidi/hub/internal/midi"
	"github.com/guitarmidi/hub/internal/preset"
)

// Server is the HTTP/websocket front of the hub.
type Server struct {
	router   *midi.Router
	store    *preset.Store
	effects  *effects.State
	activity *midi.ActivityLog

	hub      *Hub
	mux      *mux.Router
	http     *http.Server
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

// New builds the server and its routes.
func New(addr string, router *midi.Router, store *preset.Store, fx *effects.State, activity *midi.ActivityLog) *Server {
	s := &Server{
		router:   router,
		store:    store,
		effects:  fx,
		activity: activity,
		hub:      NewHub(),
		mux:      mux.NewRouter(),
		upgrader: websocket.Upgrader{
			// Clients arrive from the hotspot captive page; origin is not a
			// trust boundary on this closed network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: logrus.WithField("component", "server"),
	}
	s.routes()
	s.http = &http.Server{Addr: addr, Handler: s.mux}
	return s
}

func (s *Server) routes() {
	api := s.mux.PathPrefix("/api").Subrouter()
	api.HandleFunc("/state", s.handleState).Methods(http.MethodGet)
	api.HandleFunc("/effects/{name}", s.handleSetEffect).Methods(http.MethodPost)
	api.HandleFunc("/controllers/{id}/presets", s.handleGetPresets).Methods(http.MethodGet)
	api.HandleFunc("/controllers/{id}/presets/{slot:[0-9]+}", s.handleSavePreset).Methods(http.MethodPut)
	api.HandleFunc("/controllers/{id}/active/{slot:[0-9]+}", s.handleActivateSlot).Methods(http.MethodPost)
	api.HandleFunc("/scenes/{index:[0-9]+}", s.handleActivateScene).Methods(http.MethodPost)
	api.HandleFunc("/panic", s.handlePanic).Methods(http.MethodPost)
	api.HandleFunc("/export", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/import", s.handleImport).Methods(http.MethodPost)
	s.mux.HandleFunc("/ws", s.handleWS)
}

// Handler returns the route tree, used directly by tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Hub returns the broadcast hub so main can wire registry change events.
func (s *Server) Hub() *Hub { return s.hub }

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.http.Addr).Info("remote surface listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.buildState())
}

func (s *Server) handleSetEffect(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Value int `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.router.SetEffect(mux.Vars(r)["name"], body.Value); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "effects": s.effects.Get()})
}

func (s *Server) handleGetPresets(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctrl, ok := s.router.Registry().ByID(id)
	if !ok {
		writeError(w, http.StatusNotFound, midi.ErrUnknownController)
		return
	}
	profile := midi.ProfileFor(ctrl.Type)
	if profile == nil {
		writeError(w, http.StatusNotFound, midi.ErrUnknownController)
		return
	}
	slots, err := s.store.Load(ctrl.ID, profile.DefaultPresets())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, slots)
}

func (s *Server) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	slotIndex, _ := strconv.Atoi(vars["slot"])

	var slot preset.Slot
	if err := json.NewDecoder(r.Body).Decode(&slot); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	slot.SlotIndex = slotIndex
	if err := s.router.SavePreset(vars["id"], slot); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleActivateSlot(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	slot, _ := strconv.Atoi(vars["slot"])
	if err := s.router.ActivateSlot(vars["id"], slot); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleActivateScene(w http.ResponseWriter, r *http.Request) {
	index, _ := strconv.Atoi(mux.Vars(r)["index"])
	if err := s.router.ActivateScene(index); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handlePanic(w http.ResponseWriter, r *http.Request) {
	if err := s.router.Panic(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.Export(func(controllerID string) string {
		if ctrl, ok := s.router.Registry().ByID(controllerID); ok {
			return string(ctrl.Type)
		}
		return string(midi.ControllerUnknown)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var snap preset.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.store.Import(&snap, midi.SlotCounts()); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if snap.Effects != nil {
		// The durable record is already committed; a synth hiccup here only
		// delays the audible change until the next mutation or panic.
		if err := s.effects.Restore(snap.Effects); err != nil {
			s.log.WithError(err).Warn("imported effects not applied to synth")
		}
	}
	s.NotifyChange("import")
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(s.upgrader, w, r, s.stateMessage("snapshot"))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, midi.ErrUnknownController),
		errors.Is(err, preset.ErrSlotNotFound):
		return http.StatusNotFound
	case errors.Is(err, preset.ErrSlotRange),
		errors.Is(err, preset.ErrValueRange),
		errors.Is(err, preset.ErrSnapshotInvalid),
		errors.Is(err, effects.ErrUnknownEffect),
		errors.Is(err, effects.ErrValueRange):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}
