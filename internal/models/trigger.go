package models

import (
	"maps"
	"slices"

	"github.com/google/go-cmp/cmp"
)

type TriggerKind string

const (
	KindAvailability      TriggerKind = "AVAILABILITY"
	KindThresholdResponse TriggerKind = "THRESHOLD_RESPONSE"
	KindEvent             TriggerKind = "EVENT"
)

const EmailPlugin = "email"

type Trigger struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Severity    string              `json:"severity,omitempty"`
	Enabled     bool                `json:"enabled"`
	AutoResolve bool                `json:"autoResolve,omitempty"`
	Actions     map[string][]string `json:"actions,omitempty"`
	Context     map[string]string   `json:"context,omitempty"`
}

type Dampening struct {
	DampeningID      string `json:"dampeningId"`
	TriggerID        string `json:"triggerId"`
	TriggerMode      string `json:"triggerMode"`
	Type             string `json:"type"`
	EvalTrueSetting  int    `json:"evalTrueSetting"`
	EvalTotalSetting int    `json:"evalTotalSetting"`
	EvalTimeSetting  int64  `json:"evalTimeSetting"`
}

type Condition struct {
	ConditionID string  `json:"conditionId,omitempty"`
	TriggerID   string  `json:"triggerId"`
	TriggerMode string  `json:"triggerMode"`
	Type        string  `json:"type"`
	DataID      string  `json:"dataId"`
	Operator    string  `json:"operator,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

// FullTrigger is a trigger definition with its dampenings and conditions.
type FullTrigger struct {
	Trigger    Trigger     `json:"trigger"`
	Dampenings []Dampening `json:"dampenings"`
	Conditions []Condition `json:"conditions"`
}

func (f FullTrigger) Clone() FullTrigger {
	out := f
	if f.Trigger.Actions != nil {
		out.Trigger.Actions = make(map[string][]string, len(f.Trigger.Actions))
		for k, v := range f.Trigger.Actions {
			out.Trigger.Actions[k] = slices.Clone(v)
		}
	}
	out.Trigger.Context = maps.Clone(f.Trigger.Context)
	out.Dampenings = slices.Clone(f.Dampenings)
	out.Conditions = slices.Clone(f.Conditions)
	return out
}

// Email returns the first email action target, if any.
func (t Trigger) Email() (string, bool) {
	targets := t.Actions[EmailPlugin]
	if len(targets) == 0 {
		return "", false
	}
	return targets[0], true
}

func (t *Trigger) SetEmail(email string) {
	if t.Actions == nil {
		t.Actions = map[string][]string{}
	}
	targets := t.Actions[EmailPlugin]
	if len(targets) == 0 {
		t.Actions[EmailPlugin] = []string{email}
		return
	}
	targets[0] = email
}

// TriggerDiff lists the parts of a trigger definition that changed.
type TriggerDiff struct {
	Trigger    bool
	Dampenings []Dampening
	Conditions map[string][]Condition
}

func (d TriggerDiff) Empty() bool {
	return !d.Trigger && len(d.Dampenings) == 0 && len(d.Conditions) == 0
}

// DiffTrigger compares an updated definition against the original one.
// Changed conditions are grouped by trigger mode because the backend replaces
// conditions one mode at a time.
func DiffTrigger(original, updated FullTrigger) TriggerDiff {
	var diff TriggerDiff
	diff.Trigger = !cmp.Equal(original.Trigger, updated.Trigger)

	prev := make(map[string]Dampening, len(original.Dampenings))
	for _, d := range original.Dampenings {
		prev[d.DampeningID] = d
	}
	for _, d := range updated.Dampenings {
		if old, ok := prev[d.DampeningID]; !ok || old != d {
			diff.Dampenings = append(diff.Dampenings, d)
		}
	}

	before := groupConditions(original.Conditions)
	after := groupConditions(updated.Conditions)
	for mode, conds := range after {
		if !cmp.Equal(before[mode], conds) {
			if diff.Conditions == nil {
				diff.Conditions = map[string][]Condition{}
			}
			diff.Conditions[mode] = conds
		}
	}
	return diff
}

func groupConditions(conds []Condition) map[string][]Condition {
	out := map[string][]Condition{}
	for _, c := range conds {
		out[c.TriggerMode] = append(out[c.TriggerMode], c)
	}
	return out
}
