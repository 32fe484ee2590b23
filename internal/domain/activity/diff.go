package activity

import (
	"sort"
	"strings"

	"github.com/google/uuid"
)

// Snapshot is a flattened view of an incident's tracked fields, keyed by
// field name. Values are already rendered as display strings; a missing
// key, nil value and empty string all mean "not set".
type Snapshot map[string]string

// trackedFields fixes the order changes appear in within an entry.
var trackedFields = []string{
	"notifier_name",
	"worker_name",
	"occupation",
	"site_name",
	"date_of_injury",
	"time_of_injury",
	"injury_type",
	"severity",
	"classification",
	"body_part",
	"body_side",
	"description",
	"mechanism",
	"witness_name",
	"treatment_type",
	"treatment_provider",
	"actions",
	"case_notes",
	"cost_estimate",
}

var fieldLabels = map[string]string{
	"notifier_name":      "Notifier Name",
	"worker_name":        "Worker Name",
	"occupation":         "Occupation",
	"site_name":          "Site",
	"date_of_injury":     "Date of Injury",
	"time_of_injury":     "Time of Injury",
	"injury_type":        "Injury Type",
	"severity":           "Severity",
	"classification":     "Classification",
	"body_part":          "Body Part",
	"body_side":          "Body Side",
	"description":        "Description",
	"mechanism":          "Mechanism of Injury",
	"witness_name":       "Witness",
	"treatment_type":     "Treatment Type",
	"treatment_provider": "Treatment Provider",
	"actions":            "Corrective Actions",
	"case_notes":         "Case Notes",
	"cost_estimate":      "Cost Estimate",
}

// TrackedFields returns the audit-relevant field names in diff order.
func TrackedFields() []string {
	out := make([]string, len(trackedFields))
	copy(out, trackedFields)
	return out
}

// LabelFor returns the display label for a field, falling back to the raw
// field name for anything the label table does not know.
func LabelFor(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	return field
}

func normalize(v string) string {
	return strings.TrimSpace(v)
}

// Diff compares two snapshots and returns one FieldChange per field whose
// normalized value differs. Tracked fields come first in their fixed order;
// any other keys follow in sorted order. An empty result means the edit
// changed nothing worth recording.
func Diff(before, after Snapshot) []FieldChange {
	seen := make(map[string]bool, len(trackedFields))
	var changes []FieldChange

	check := func(field string) {
		if seen[field] {
			return
		}
		seen[field] = true
		oldV := normalize(before[field])
		newV := normalize(after[field])
		if oldV == newV {
			return
		}
		changes = append(changes, FieldChange{
			Field: field,
			Label: LabelFor(field),
			Old:   oldV,
			New:   newV,
		})
	}

	for _, f := range trackedFields {
		check(f)
	}

	var extras []string
	for f := range before {
		if !seen[f] {
			extras = append(extras, f)
		}
	}
	for f := range after {
		if !seen[f] && !contains(extras, f) {
			extras = append(extras, f)
		}
	}
	sort.Strings(extras)
	for _, f := range extras {
		check(f)
	}

	return changes
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

// NewEditEntry builds the single system-edit entry recorded for an incident
// edit. Returns nil when there are no changes.
func NewEditEntry(incidentID uuid.UUID, actorID, actorName string, changes []FieldChange) *Entry {
	if len(changes) == 0 {
		return nil
	}
	labels := make([]string, len(changes))
	meta := make([]interface{}, len(changes))
	for i, ch := range changes {
		labels[i] = ch.Label
		meta[i] = ch
	}
	return &Entry{
		IncidentID:  incidentID,
		Type:        TypeSystemEdit,
		Title:       "Incident Updated",
		Description: strings.Join(labels, ", "),
		Metadata:    map[string]interface{}{"changes": meta},
		ActorID:     actorID,
		ActorName:   actorName,
	}
}
