package triggers

import (
	"fmt"

	"hawkview/internal/models"
)

// Variant maps a trigger definition to the typed draft a user edits.
type Variant[D any] interface {
	Kind() models.TriggerKind
	// TriggerID derives the trigger id from the key the session was opened
	// with: a resource id, or the trigger id itself.
	TriggerID(key string) string
	Extract(def models.FullTrigger) (D, error)
	// Apply writes the draft onto def, which is a private copy.
	Apply(def *models.FullTrigger, d D)
}

type AvailabilityDraft struct {
	Email            string `json:"email"`
	ResponseDuration int64  `json:"responseDuration"`
	ConditionEnabled bool   `json:"conditionEnabled"`
}

type ThresholdDraft struct {
	Email              string  `json:"email"`
	ResponseDuration   int64   `json:"responseDuration"`
	ConditionEnabled   bool    `json:"conditionEnabled"`
	ConditionThreshold float64 `json:"conditionThreshold"`
}

type EventDraft struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Enabled     bool   `json:"enabled"`
	Email       string `json:"email"`
}

type Availability struct{}

func (Availability) Kind() models.TriggerKind { return models.KindAvailability }

func (Availability) TriggerID(resourceID string) string { return resourceID + "_trigger_avail" }

func (Availability) Extract(def models.FullTrigger) (AvailabilityDraft, error) {
	if len(def.Dampenings) == 0 {
		return AvailabilityDraft{}, fmt.Errorf("trigger %s has no dampening", def.Trigger.ID)
	}
	email, _ := def.Trigger.Email()
	return AvailabilityDraft{
		Email:            email,
		ResponseDuration: def.Dampenings[0].EvalTimeSetting,
		ConditionEnabled: def.Trigger.Enabled,
	}, nil
}

func (Availability) Apply(def *models.FullTrigger, d AvailabilityDraft) {
	applyEmail(&def.Trigger, d.Email)
	def.Trigger.Enabled = d.ConditionEnabled
	setEvalTime(def, d.ResponseDuration)
}

type Threshold struct{}

func (Threshold) Kind() models.TriggerKind { return models.KindThresholdResponse }

func (Threshold) TriggerID(resourceID string) string { return resourceID + "_trigger_thres" }

func (Threshold) Extract(def models.FullTrigger) (ThresholdDraft, error) {
	if len(def.Dampenings) == 0 {
		return ThresholdDraft{}, fmt.Errorf("trigger %s has no dampening", def.Trigger.ID)
	}
	if len(def.Conditions) == 0 {
		return ThresholdDraft{}, fmt.Errorf("trigger %s has no condition", def.Trigger.ID)
	}
	email, _ := def.Trigger.Email()
	return ThresholdDraft{
		Email:              email,
		ResponseDuration:   def.Dampenings[0].EvalTimeSetting,
		ConditionEnabled:   def.Trigger.Enabled,
		ConditionThreshold: def.Conditions[0].Threshold,
	}, nil
}

// Apply only persists the enabled flag of a disabled trigger; its other
// settings keep their stored values.
func (Threshold) Apply(def *models.FullTrigger, d ThresholdDraft) {
	def.Trigger.Enabled = d.ConditionEnabled
	if !d.ConditionEnabled {
		return
	}
	applyEmail(&def.Trigger, d.Email)
	setEvalTime(def, d.ResponseDuration)
	for i := range min(2, len(def.Conditions)) {
		def.Conditions[i].Threshold = d.ConditionThreshold
	}
}

type Event struct{}

func (Event) Kind() models.TriggerKind { return models.KindEvent }

func (Event) TriggerID(triggerID string) string { return triggerID }

func (Event) Extract(def models.FullTrigger) (EventDraft, error) {
	email, _ := def.Trigger.Email()
	return EventDraft{
		Name:        def.Trigger.Name,
		Description: def.Trigger.Description,
		Severity:    def.Trigger.Severity,
		Enabled:     def.Trigger.Enabled,
		Email:       email,
	}, nil
}

func (Event) Apply(def *models.FullTrigger, d EventDraft) {
	def.Trigger.Name = d.Name
	def.Trigger.Description = d.Description
	def.Trigger.Severity = d.Severity
	def.Trigger.Enabled = d.Enabled
	applyEmail(&def.Trigger, d.Email)
}

// setEvalTime keeps the firing and auto-resolve dampenings equal.
func setEvalTime(def *models.FullTrigger, ms int64) {
	for i := range min(2, len(def.Dampenings)) {
		def.Dampenings[i].EvalTimeSetting = ms
	}
}

func applyEmail(t *models.Trigger, email string) {
	if _, ok := t.Email(); !ok && email == "" {
		return
	}
	t.SetEmail(email)
}
