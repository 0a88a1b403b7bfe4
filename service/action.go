package service

import "fmt"

// ActionKind identifies a mutation applied to a service.
type ActionKind string

const (
	// ActionCreate creates a service with an empty history.
	ActionCreate ActionKind = "create"

	// ActionUpdateSpec replaces the spec of an existing service.
	ActionUpdateSpec ActionKind = "update_spec"

	// ActionDelete removes a service and its history.
	ActionDelete ActionKind = "delete"

	// ActionAppendStatus appends one observation to a service's history.
	ActionAppendStatus ActionKind = "append_status"
)

// Action is a single mutation request against one service.
//
// Spec is set for create and update_spec; Status is set for append_status.
// Use the constructors rather than building the struct by hand.
type Action struct {
	Kind   ActionKind   `json:"kind"`
	Spec   *Spec        `json:"spec,omitempty"`
	Status *TimedStatus `json:"status,omitempty"`
}

// Create returns an action creating a service with spec.
func Create(spec Spec) Action {
	return Action{Kind: ActionCreate, Spec: &spec}
}

// UpdateSpec returns an action replacing a service's spec.
func UpdateSpec(spec Spec) Action {
	return Action{Kind: ActionUpdateSpec, Spec: &spec}
}

// Delete returns an action removing a service.
func Delete() Action {
	return Action{Kind: ActionDelete}
}

// AppendStatus returns an action appending ts to a service's history.
func AppendStatus(ts TimedStatus) Action {
	return Action{Kind: ActionAppendStatus, Status: &ts}
}

// Validate checks that the payload matching Kind is present.
func (a Action) Validate() error {
	switch a.Kind {
	case ActionCreate, ActionUpdateSpec:
		if a.Spec == nil {
			return fmt.Errorf("action %q requires a spec", a.Kind)
		}
	case ActionAppendStatus:
		if a.Status == nil {
			return fmt.Errorf("action %q requires a status", a.Kind)
		}
		return a.Status.Status.Validate()
	case ActionDelete:
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

// Clone returns a copy of a whose payload shares no memory with a.
func (a Action) Clone() Action {
	if a.Spec != nil {
		spec := *a.Spec
		a.Spec = &spec
	}
	if a.Status != nil {
		ts := *a.Status
		a.Status = &ts
	}
	return a
}

// Notification is published on the notification bus for every accepted
// mutation. Each subscriber receives its own copy of the action payload.
type Notification struct {
	// Service is the name of the mutated service.
	Service string `json:"service"`

	// Action is the mutation that was applied.
	Action Action `json:"action"`
}
