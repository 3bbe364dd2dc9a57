// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package host

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"
)

var (
	// ErrUnknownAction is returned by ExecuteAction for unregistered ids.
	ErrUnknownAction = errors.New("host: unknown action")

	// ErrUnknownPreset is returned by PressPreset for unregistered ids.
	ErrUnknownPreset = errors.New("host: unknown preset")
)

// Unresolved is substituted for variable references that cannot be resolved.
const Unresolved = "$NA"

// InternalLabel is the label of the host's own variables (time, date).
const InternalLabel = "internal"

var variablePattern = regexp.MustCompile(`\$\(([^:()]+):([^()]+)\)`)

// ChangeKind identifies what changed in a Registry
type ChangeKind int

const (
	ChangeStatus ChangeKind = iota
	ChangeDefinitions
	ChangeVariables
	ChangeFeedbacks
)

// Change is delivered to Registry subscribers
type Change struct {
	Kind ChangeKind
}

// Registry is an in-memory Host. Surfaces read definitions, variables and
// preset feedback state from it and run actions through it.
//
// Registry is safe for concurrent use.
type Registry struct {
	label string

	mu           sync.RWMutex
	status       Status
	message      string
	actions      []ActionDefinition
	feedbacks    []FeedbackDefinition
	variableDefs []VariableDefinition
	presets      []PresetDefinition
	variables    map[string]interface{}
	active       map[string]bool // preset id -> feedback result

	subsMu sync.Mutex
	subs   map[chan Change]struct{}

	now func() time.Time
}

// NewRegistry creates a Registry for a module instance. label is the prefix
// used to reference this instance's variables, as in $(label:volume).
func NewRegistry(label string) *Registry {
	return &Registry{
		label:     label,
		status:    StatusDisconnected,
		variables: make(map[string]interface{}),
		active:    make(map[string]bool),
		subs:      make(map[chan Change]struct{}),
		now:       time.Now,
	}
}

// Label returns the instance label
func (r *Registry) Label() string {
	return r.label
}

// UpdateStatus implements Host
func (r *Registry) UpdateStatus(status Status, message string) {
	r.mu.Lock()
	r.status = status
	r.message = message
	r.mu.Unlock()
	r.notify(ChangeStatus)
}

// Status returns the last reported status and message
func (r *Registry) Status() (Status, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status, r.message
}

// SetActionDefinitions implements Host
func (r *Registry) SetActionDefinitions(defs []ActionDefinition) {
	r.mu.Lock()
	r.actions = append([]ActionDefinition(nil), defs...)
	r.mu.Unlock()
	r.notify(ChangeDefinitions)
}

// SetFeedbackDefinitions implements Host
func (r *Registry) SetFeedbackDefinitions(defs []FeedbackDefinition) {
	r.mu.Lock()
	r.feedbacks = append([]FeedbackDefinition(nil), defs...)
	r.mu.Unlock()
	r.notify(ChangeDefinitions)
}

// SetVariableDefinitions implements Host
func (r *Registry) SetVariableDefinitions(defs []VariableDefinition) {
	r.mu.Lock()
	r.variableDefs = append([]VariableDefinition(nil), defs...)
	r.mu.Unlock()
	r.notify(ChangeDefinitions)
}

// SetPresetDefinitions implements Host
func (r *Registry) SetPresetDefinitions(defs []PresetDefinition) {
	r.mu.Lock()
	r.presets = append([]PresetDefinition(nil), defs...)
	r.active = make(map[string]bool)
	r.mu.Unlock()
	r.notify(ChangeDefinitions)
}

// SetVariableValues implements Host
func (r *Registry) SetVariableValues(values map[string]interface{}) {
	r.mu.Lock()
	for k, v := range values {
		r.variables[k] = v
	}
	r.mu.Unlock()
	r.notify(ChangeVariables)
}

// CheckFeedbacks implements Host. Every preset feedback that references one
// of ids is re-evaluated and its result cached for PresetActive.
func (r *Registry) CheckFeedbacks(ids ...string) {
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}

	r.mu.RLock()
	callbacks := make(map[string]func(Options) bool, len(r.feedbacks))
	for _, fb := range r.feedbacks {
		if len(ids) == 0 || wanted[fb.ID] {
			callbacks[fb.ID] = fb.Callback
		}
	}
	presets := r.presets
	r.mu.RUnlock()

	// Callbacks run without the lock; they read module state
	results := make(map[string]bool)
	for _, p := range presets {
		for _, pf := range p.Feedbacks {
			cb, ok := callbacks[pf.FeedbackID]
			if !ok || cb == nil {
				continue
			}
			results[p.ID] = cb(pf.Options)
		}
	}

	r.mu.Lock()
	for id, v := range results {
		r.active[id] = v
	}
	r.mu.Unlock()
	r.notify(ChangeFeedbacks)
}

// ParseVariablesInString implements Host
func (r *Registry) ParseVariablesInString(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	return variablePattern.ReplaceAllStringFunc(text, func(ref string) string {
		m := variablePattern.FindStringSubmatch(ref)
		label, name := m[1], m[2]
		switch label {
		case r.label:
			v, ok := r.variables[name]
			if !ok {
				return Unresolved
			}
			return FormatVariable(v)
		case InternalLabel:
			return r.internalVariable(name)
		default:
			return Unresolved
		}
	}), nil
}

func (r *Registry) internalVariable(name string) string {
	now := r.now()
	switch name {
	case "time_hms":
		return now.Format("15:04:05")
	case "time_h":
		return now.Format("15")
	case "time_m":
		return now.Format("04")
	case "time_s":
		return now.Format("05")
	case "time_unix":
		return strconv.FormatInt(now.Unix(), 10)
	case "date_iso":
		return now.Format("2006-01-02")
	default:
		return Unresolved
	}
}

// FormatVariable renders a variable value as shown on buttons
func FormatVariable(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// Actions returns the registered actions in registration order
func (r *Registry) Actions() []ActionDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ActionDefinition(nil), r.actions...)
}

// Feedbacks returns the registered feedbacks
func (r *Registry) Feedbacks() []FeedbackDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]FeedbackDefinition(nil), r.feedbacks...)
}

// VariableDefinitions returns the registered variables
func (r *Registry) VariableDefinitions() []VariableDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]VariableDefinition(nil), r.variableDefs...)
}

// Presets returns the registered presets in registration order
func (r *Registry) Presets() []PresetDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]PresetDefinition(nil), r.presets...)
}

// Variables returns a copy of the current variable values
func (r *Registry) Variables() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]interface{}, len(r.variables))
	for k, v := range r.variables {
		out[k] = v
	}
	return out
}

// PresetActive reports the last feedback result of a preset
func (r *Registry) PresetActive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[id]
}

// EvaluateFeedback runs a feedback callback directly
func (r *Registry) EvaluateFeedback(id string, opts Options) bool {
	r.mu.RLock()
	var cb func(Options) bool
	for _, fb := range r.feedbacks {
		if fb.ID == id {
			cb = fb.Callback
			break
		}
	}
	r.mu.RUnlock()

	if cb == nil {
		return false
	}
	return cb(opts)
}

// ExecuteAction runs an action with opts laid over the option defaults.
func (r *Registry) ExecuteAction(ctx context.Context, id string, opts Options) error {
	r.mu.RLock()
	var def *ActionDefinition
	for i := range r.actions {
		if r.actions[i].ID == id {
			def = &r.actions[i]
			break
		}
	}
	var action ActionDefinition
	if def != nil {
		action = *def
	}
	r.mu.RUnlock()

	if def == nil {
		return fmt.Errorf("%w: %s", ErrUnknownAction, id)
	}
	if action.Callback == nil {
		return nil
	}

	merged := Defaults(action.Options)
	for k, v := range opts {
		merged[k] = v
	}
	return action.Callback(ctx, ActionEvent{ActionID: id, Options: merged, Host: r})
}

// PressPreset runs the down actions of a preset's first step
func (r *Registry) PressPreset(ctx context.Context, id string) error {
	r.mu.RLock()
	var preset *PresetDefinition
	for i := range r.presets {
		if r.presets[i].ID == id {
			p := r.presets[i]
			preset = &p
			break
		}
	}
	r.mu.RUnlock()

	if preset == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPreset, id)
	}
	if len(preset.Steps) == 0 {
		return nil
	}
	for _, a := range preset.Steps[0].Down {
		if err := r.ExecuteAction(ctx, a.ActionID, a.Options); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe returns a channel that receives a Change after every update, and
// a function to stop the subscription. Changes are dropped while the channel
// is full.
func (r *Registry) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, 16)
	r.subsMu.Lock()
	r.subs[ch] = struct{}{}
	r.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			r.subsMu.Lock()
			delete(r.subs, ch)
			r.subsMu.Unlock()
		})
	}
}

func (r *Registry) notify(kind ChangeKind) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for ch := range r.subs {
		select {
		case ch <- Change{Kind: kind}:
		default:
		}
	}
}
