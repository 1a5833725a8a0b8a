package midi

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"
)

// Manager watches the system's MIDI input ports and keeps one listener per
// connected controller. Each listener runs on its own driver goroutine, so
// events from one port arrive in order while ports drain concurrently.
// Disconnecting a port stops only that port's listener.
type Manager struct {
	registry *Registry
	router   *Router
	exclude  []string
	interval time.Duration

	mu    sync.Mutex
	stops map[string]func()

	log *logrus.Entry
}

// NewManager creates a port manager. exclude lists case-insensitive
// substrings of port names that are never controllers (the synth's own port,
// the ALSA "Midi Through" loopback).
func NewManager(registry *Registry, router *Router, exclude []string, interval time.Duration) *Manager {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Manager{
		registry: registry,
		router:   router,
		exclude:  append([]string{"midi through"}, exclude...),
		interval: interval,
		stops:    make(map[string]func()),
		log:      logrus.WithField("component", "port-manager"),
	}
}

// Run scans immediately, then on every tick until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.scan()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case <-ticker.C:
			m.scan()
		}
	}
}

// Close stops every listener and releases the MIDI driver.
func (m *Manager) Close() {
	m.mu.Lock()
	for name, stop := range m.stops {
		stop()
		delete(m.stops, name)
	}
	m.mu.Unlock()
	midi.CloseDriver()
}

func (m *Manager) scan() {
	present := make(map[string]bool)
	for _, in := range midi.GetInPorts() {
		name := in.String()
		if m.excluded(name) {
			continue
		}
		present[name] = true

		m.mu.Lock()
		_, listening := m.stops[name]
		m.mu.Unlock()
		if listening {
			continue
		}

		portName := name
		stop, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
			m.router.Route(portName, msg)
		})
		if err != nil {
			m.log.WithError(err).WithField("port", name).Warn("cannot listen on port")
			continue
		}

		m.mu.Lock()
		m.stops[name] = stop
		m.mu.Unlock()
		m.registry.OnConnect(name)
	}

	// Ports that vanished since the last scan.
	m.mu.Lock()
	var gone []string
	for name := range m.stops {
		if !present[name] {
			gone = append(gone, name)
		}
	}
	m.mu.Unlock()

	for _, name := range gone {
		m.mu.Lock()
		stop := m.stops[name]
		delete(m.stops, name)
		m.mu.Unlock()
		if stop != nil {
			stop()
		}
		m.registry.OnDisconnect(name)
	}
}

func (m *Manager) excluded(portName string) bool {
	lower := strings.ToLower(portName)
	for _, pattern := range m.exclude {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}
