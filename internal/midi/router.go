package midi

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gitlab.com/gomidi/midi/v2"

	"github.com/guitarmidi/hub/internal/effects"
	"github.com/guitarmidi/hub/internal/preset"
)

// ErrUnknownController reports an operation against a controller the
// registry has never seen, or one whose port name matched no rule.
var ErrUnknownController = errors.New("unknown controller")

// Router resolves raw events to controllers, applies the matching profile and
// forwards normalized commands to the synth backend. Both MIDI-originated and
// remote-client-originated mutations funnel through the same methods. Locks
// stay package-local, with one exception: the effects state holds its lock
// across the persist callback into the preset store, so no path may take the
// store lock and then call into effects.
type Router struct {
	registry *Registry
	store    *preset.Store
	writer   *preset.Writer
	effects  *effects.State
	synth    Synth
	active   *ActiveState
	activity *ActivityLog
	notify   func(event string)
	log      *logrus.Entry
}

// NewRouter wires the router. notify may be nil; it is invoked after every
// state-changing operation with a short event name.
func NewRouter(registry *Registry, store *preset.Store, writer *preset.Writer,
	fx *effects.State, synth Synth, activity *ActivityLog) *Router {
	return &Router{
		registry: registry,
		store:    store,
		writer:   writer,
		effects:  fx,
		synth:    synth,
		active:   NewActiveState(),
		activity: activity,
		log:      logrus.WithField("component", "router"),
	}
}

// SetNotify registers the state-change callback (the broadcaster).
func (r *Router) SetNotify(fn func(event string)) { r.notify = fn }

// Active exposes the selection state for state assembly.
func (r *Router) Active() *ActiveState { return r.active }

// Registry exposes the controller registry for state assembly.
func (r *Router) Registry() *Registry { return r.registry }

// Route processes one raw event from a physical port. Any single-event
// failure is logged and swallowed; the per-port worker keeps draining.
func (r *Router) Route(portName string, raw midi.Message) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("port", portName).Errorf("recovered routing panic: %v", rec)
		}
	}()

	if len(raw) == 0 {
		r.log.WithField("port", portName).Warn("dropped malformed event")
		r.activity.Append("%s: dropped malformed event", portName)
		return
	}

	ctrl := r.registry.Resolve(portName)
	if ctrl.Type == ControllerUnknown {
		r.log.WithField("port", portName).Debug("dropped event from unclassified port")
		r.activity.Append("%s: dropped event from unclassified port", portName)
		return
	}

	profile := ProfileFor(ctrl.Type)
	cmd, ok := profile.HandleIncoming(raw)
	if !ok {
		r.activity.Append("%s: ignored %s", ctrl.ID, raw.String())
		return
	}

	if err := r.apply(ctrl, cmd); err != nil {
		r.log.WithError(err).WithField("controller", ctrl.ID).Error("command failed")
		r.activity.Append("%s: error: %v", ctrl.ID, err)
	}
}

func (r *Router) apply(ctrl Controller, cmd Command) error {
	switch cmd.Kind {
	case CmdForward:
		if err := r.synth.Send(cmd.Msg); err != nil {
			return err
		}
		r.activity.Append("%s: %s", ctrl.ID, cmd.Msg.String())
		return nil
	case CmdSelectSlot:
		return r.ActivateSlot(ctrl.ID, cmd.Slot)
	case CmdUpdateSlotProgram:
		return r.updateSlotProgram(ctrl, cmd.Slot, cmd.Value)
	case CmdSelectScene:
		return r.ActivateScene(cmd.Scene)
	case CmdSetEffect:
		return r.SetEffect(cmd.Effect, cmd.Value)
	case CmdPanic:
		return r.Panic()
	default:
		return fmt.Errorf("unhandled command kind %d", cmd.Kind)
	}
}

// ActivateSlot selects the persisted preset in slotIndex for a controller and
// applies its program to the controller's channel.
func (r *Router) ActivateSlot(controllerID string, slotIndex int) error {
	ctrl, ok := r.registry.ByID(controllerID)
	if !ok || ctrl.Type == ControllerUnknown {
		return fmt.Errorf("%w: %s", ErrUnknownController, controllerID)
	}
	profile := ProfileFor(ctrl.Type)
	if slotIndex < 0 || slotIndex >= ctrl.Type.SlotCount() {
		return fmt.Errorf("%w: %d for %s", preset.ErrSlotRange, slotIndex, ctrl.Type)
	}

	if _, err := r.store.Load(ctrl.ID, profile.DefaultPresets()); err != nil {
		return err
	}
	slot, err := r.store.Get(ctrl.ID, slotIndex)
	if err != nil {
		return err
	}
	if err := r.synth.ProgramChange(uint8(slot.Channel), slot.Program, slot.BankMSB, slot.BankLSB); err != nil {
		return err
	}

	r.active.SetSlot(ctrl.ID, slotIndex)
	r.activity.Append("%s: activated slot %d (%s)", ctrl.ID, slotIndex, slot.Name)
	r.emit("active")
	return nil
}

// ActivateScene atomically replaces the active-preset assignment of every
// non-master controller and re-applies their programs. The scene itself is
// not a synth instrument change.
func (r *Router) ActivateScene(scene int) error {
	if scene < 0 || scene >= ControllerMaster.SlotCount() {
		return fmt.Errorf("%w: scene %d", preset.ErrSlotRange, scene)
	}

	assignment := make(map[string]int)
	for _, ctrl := range r.registry.Controllers() {
		switch ctrl.Type {
		case ControllerUnknown, ControllerMaster:
			continue
		}
		profile := ProfileFor(ctrl.Type)
		slots, err := r.store.Load(ctrl.ID, profile.DefaultPresets())
		if err != nil {
			return err
		}
		selected := scene % ctrl.Type.SlotCount()
		assignment[ctrl.ID] = selected

		if ctrl.Type == ControllerString {
			// Every string keeps its own instrument; a scene re-applies all
			// six programs at once.
			for _, slot := range slots {
				if err := r.synth.ProgramChange(uint8(slot.Channel), slot.Program, slot.BankMSB, slot.BankLSB); err != nil {
					return err
				}
			}
			continue
		}
		for _, slot := range slots {
			if slot.SlotIndex == selected {
				if err := r.synth.ProgramChange(uint8(slot.Channel), slot.Program, slot.BankMSB, slot.BankLSB); err != nil {
					return err
				}
				break
			}
		}
	}

	r.active.ReplaceAll(assignment, scene)
	r.activity.Append("scene %d activated", scene)
	r.emit("scene")
	return nil
}

// SetEffect mutates one global effect and broadcasts the change.
func (r *Router) SetEffect(name string, value int) error {
	if err := r.effects.Set(name, value); err != nil {
		return err
	}
	r.activity.Append("effect %s set to %d", name, value)
	r.emit("effects")
	return nil
}

// SavePreset validates and synchronously persists one slot for a controller.
// Used by the remote surface, which needs a durability acknowledgement.
func (r *Router) SavePreset(controllerID string, slot preset.Slot) error {
	ctrl, ok := r.registry.ByID(controllerID)
	if !ok || ctrl.Type == ControllerUnknown {
		return fmt.Errorf("%w: %s", ErrUnknownController, controllerID)
	}
	profile := ProfileFor(ctrl.Type)
	if _, err := r.store.Load(ctrl.ID, profile.DefaultPresets()); err != nil {
		return err
	}
	slot.Channel = int(profile.ResolveChannel(slot.SlotIndex))
	if err := r.store.Save(ctrl.ID, slot, ctrl.Type.SlotCount()); err != nil {
		return err
	}
	r.activity.Append("%s: preset %d saved (%s)", ctrl.ID, slot.SlotIndex, slot.Name)
	r.emit("preset")
	return nil
}

// Panic silences all sound on every channel and restores the configured
// effect levels. Selection state is deliberately untouched.
func (r *Router) Panic() error {
	if err := r.synth.Silence(); err != nil {
		return err
	}
	if err := r.effects.Reapply(); err != nil {
		return err
	}
	r.activity.Append("panic: all notes off, controllers reset")
	r.emit("panic")
	return nil
}

// updateSlotProgram rewrites one string's program in place. Persistence is
// queued so the MIDI worker never blocks on storage.
func (r *Router) updateSlotProgram(ctrl Controller, slotIndex, program int) error {
	profile := ProfileFor(ctrl.Type)
	if _, err := r.store.Load(ctrl.ID, profile.DefaultPresets()); err != nil {
		return err
	}
	slot, err := r.store.Get(ctrl.ID, slotIndex)
	if err != nil {
		return err
	}
	slot.Program = program
	if err := r.synth.ProgramChange(uint8(slot.Channel), slot.Program, slot.BankMSB, slot.BankLSB); err != nil {
		return err
	}
	r.writer.SaveAsync(ctrl.ID, slot, ctrl.Type.SlotCount())

	r.active.SetSlot(ctrl.ID, slotIndex)
	r.activity.Append("%s: string %d program %d", ctrl.ID, slotIndex, program)
	r.emit("preset")
	return nil
}

func (r *Router) emit(event string) {
	if r.notify != nil {
		r.notify(event)
	}
}
