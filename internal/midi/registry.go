package midi

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// RuleSpec is one entry of the classification rule table as written in the
// rules file. Patterns are Go regular expressions matched case-insensitively
// against the raw port name; a plain substring is a valid pattern.
type RuleSpec struct {
	Type    ControllerType `yaml:"type"`
	Pattern string         `yaml:"pattern"`
}

// Rule is a compiled classification rule.
type Rule struct {
	Type ControllerType
	re   *regexp.Regexp
}

// DefaultRules matches the controllers this system ships with: a Fishman
// TriplePlay hexaphonic pickup, an Akai MPK-style pad, and a MIDI Captain
// footswitch. Order matters: first match wins.
func DefaultRules() []RuleSpec {
	return []RuleSpec{
		{Type: ControllerString, Pattern: `tripleplay|fishman|hexaphonic|hex`},
		{Type: ControllerPercussion, Pattern: `mpk.*mini|akai|pad`},
		{Type: ControllerMaster, Pattern: `captain|mvave|foot`},
	}
}

// CompileRules builds the matcher list, rejecting invalid patterns or types.
func CompileRules(specs []RuleSpec) ([]Rule, error) {
	rules := make([]Rule, 0, len(specs))
	for _, spec := range specs {
		switch spec.Type {
		case ControllerPercussion, ControllerString, ControllerMaster:
		default:
			return nil, fmt.Errorf("rule %q: unknown controller type %q", spec.Pattern, spec.Type)
		}
		re, err := regexp.Compile(`(?i)` + spec.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", spec.Pattern, err)
		}
		rules = append(rules, Rule{Type: spec.Type, re: re})
	}
	return rules, nil
}

// LoadRules reads the YAML rule file at path, falling back to the compiled-in
// defaults when the file does not exist.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return CompileRules(DefaultRules())
	}
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	var specs []RuleSpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	return CompileRules(specs)
}

// Registry classifies ports into controller types and tracks liveness.
// Controller records are never removed; disconnect only clears the flag, so
// presets and identity survive hot-plug cycles.
type Registry struct {
	mu          sync.RWMutex
	rules       []Rule
	controllers map[string]*Controller // keyed by stable controller ID
	onChange    func()
	log         *logrus.Entry
}

// NewRegistry creates a registry with the given compiled rule table.
func NewRegistry(rules []Rule) *Registry {
	return &Registry{
		rules:       rules,
		controllers: make(map[string]*Controller),
		log:         logrus.WithField("component", "registry"),
	}
}

// SetOnChange registers the callback invoked after every liveness change.
func (r *Registry) SetOnChange(fn func()) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Identify evaluates the rule table top to bottom and returns the type of the
// first matching rule, or ControllerUnknown when nothing matches.
func (r *Registry) Identify(portName string) ControllerType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, rule := range r.rules {
		if rule.re.MatchString(portName) {
			return rule.Type
		}
	}
	return ControllerUnknown
}

// Resolve returns the controller record for a port, creating it on first
// sight. The type is classified once and cached on the record.
func (r *Registry) Resolve(portName string) Controller {
	id := controllerID(portName)

	r.mu.Lock()
	defer r.mu.Unlock()

	ctrl, ok := r.controllers[id]
	if !ok {
		ctrl = &Controller{
			ID:       id,
			PortName: portName,
			Type:     r.identifyLocked(portName),
		}
		r.controllers[id] = ctrl
		r.log.WithFields(logrus.Fields{"port": portName, "type": ctrl.Type}).Info("controller registered")
	}
	ctrl.LastSeen = time.Now()
	return *ctrl
}

// OnConnect marks the port's controller connected, creating the record when
// the port was never seen before.
func (r *Registry) OnConnect(portName string) Controller {
	ctrl := r.Resolve(portName)

	r.mu.Lock()
	rec := r.controllers[ctrl.ID]
	rec.Connected = true
	rec.PortName = portName
	rec.LastSeen = time.Now()
	ctrl = *rec
	fn := r.onChange
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{"port": portName, "type": ctrl.Type}).Info("controller connected")
	if fn != nil {
		fn()
	}
	return ctrl
}

// OnDisconnect flags the controller disconnected. The record and everything
// keyed on its ID stay intact for reconnection.
func (r *Registry) OnDisconnect(portName string) {
	id := controllerID(portName)

	r.mu.Lock()
	ctrl, ok := r.controllers[id]
	if ok && ctrl.Connected {
		ctrl.Connected = false
		ctrl.LastSeen = time.Now()
	}
	fn := r.onChange
	r.mu.Unlock()

	if !ok {
		return
	}
	r.log.WithField("port", portName).Info("controller disconnected")
	if fn != nil {
		fn()
	}
}

// ByID returns a copy of the record with the given controller ID.
func (r *Registry) ByID(id string) (Controller, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctrl, ok := r.controllers[id]
	if !ok {
		return Controller{}, false
	}
	return *ctrl, true
}

// Controllers returns a snapshot of all known records, sorted by ID.
func (r *Registry) Controllers() []Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Controller, 0, len(r.controllers))
	for _, ctrl := range r.controllers {
		out = append(out, *ctrl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) identifyLocked(portName string) ControllerType {
	for _, rule := range r.rules {
		if rule.re.MatchString(portName) {
			return rule.Type
		}
	}
	return ControllerUnknown
}
