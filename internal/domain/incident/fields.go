package incident

import (
	"fmt"
	"strings"

	"github.com/sitesafe/sitesafe/internal/domain/activity"
)

// fieldColumns whitelists the wizard fields a sparse update may touch and
// maps each to its column. Anything outside this table is rejected before
// SQL is built.
var fieldColumns = map[string]string{
	"notifier_name":         "notifier_name",
	"notifier_role":         "notifier_role",
	"notifier_phone":        "notifier_phone",
	"notifier_email":        "notifier_email",
	"notifier_relationship": "notifier_relationship",
	"worker_id":             "worker_id",
	"worker_name":           "worker_name",
	"occupation":            "occupation",
	"employer_id":           "employer_id",
	"site_id":               "site_id",
	"site_name":             "site_name",
	"site_location":         "site_location",
	"date_of_injury":        "date_of_injury",
	"time_of_injury":        "time_of_injury",
	"date_reported":         "date_reported",
	"injury_type":           "injury_type",
	"severity":              "severity",
	"classification":        "classification",
	"body_part":             "body_part",
	"body_side":             "body_side",
	"description":           "description",
	"mechanism":             "mechanism",
	"witness_name":          "witness_name",
	"treatment_type":        "treatment_type",
	"treatment_provider":    "treatment_provider",
	"treatment_details":     "treatment_details",
	"referred_to":           "referred_to",
	"actions":               "actions",
	"case_notes":            "case_notes",
	"call_transcript":       "call_transcript",
	"document_refs":         "document_refs",
	"cost_estimate":         "cost_estimate",
}

// KnownField reports whether key is a wizard field.
func KnownField(key string) bool {
	_, ok := fieldColumns[key]
	return ok
}

// listFields distinguishes the two list-valued fields from scalar text.
var listFields = map[string]bool{
	"actions":       true,
	"document_refs": true,
}

// FieldMap renders an incident into the wizard's working representation.
func (inc *Incident) FieldMap() map[string]interface{} {
	return map[string]interface{}{
		"notifier_name":         inc.NotifierName,
		"notifier_role":         inc.NotifierRole,
		"notifier_phone":        inc.NotifierPhone,
		"notifier_email":        inc.NotifierEmail,
		"notifier_relationship": inc.NotifierRelationship,
		"worker_id":             inc.WorkerID,
		"worker_name":           inc.WorkerName,
		"occupation":            inc.Occupation,
		"employer_id":           inc.EmployerID,
		"site_id":               inc.SiteID,
		"site_name":             inc.SiteName,
		"site_location":         inc.SiteLocation,
		"date_of_injury":        inc.DateOfInjury,
		"time_of_injury":        inc.TimeOfInjury,
		"date_reported":         inc.DateReported,
		"injury_type":           inc.InjuryType,
		"severity":              inc.Severity,
		"classification":        inc.Classification,
		"body_part":             inc.BodyPart,
		"body_side":             inc.BodySide,
		"description":           inc.Description,
		"mechanism":             inc.Mechanism,
		"witness_name":          inc.WitnessName,
		"treatment_type":        inc.TreatmentType,
		"treatment_provider":    inc.TreatmentProvider,
		"treatment_details":     inc.TreatmentDetails,
		"referred_to":           inc.ReferredTo,
		"actions":               inc.Actions,
		"case_notes":            inc.CaseNotes,
		"call_transcript":       inc.CallTranscript,
		"document_refs":         inc.DocumentRefs,
		"cost_estimate":         inc.CostEstimate,
	}
}

// ApplyFields copies wizard field values onto the incident. Unknown keys are
// skipped; the validation layer has already rejected them by the time this
// runs.
func ApplyFields(inc *Incident, fields map[string]interface{}) {
	for key, val := range fields {
		switch key {
		case "notifier_name":
			inc.NotifierName = asString(val)
		case "notifier_role":
			inc.NotifierRole = asString(val)
		case "notifier_phone":
			inc.NotifierPhone = asString(val)
		case "notifier_email":
			inc.NotifierEmail = asString(val)
		case "notifier_relationship":
			inc.NotifierRelationship = asString(val)
		case "worker_id":
			inc.WorkerID = asString(val)
		case "worker_name":
			inc.WorkerName = asString(val)
		case "occupation":
			inc.Occupation = asString(val)
		case "employer_id":
			inc.EmployerID = asString(val)
		case "site_id":
			inc.SiteID = asString(val)
		case "site_name":
			inc.SiteName = asString(val)
		case "site_location":
			inc.SiteLocation = asString(val)
		case "date_of_injury":
			inc.DateOfInjury = asString(val)
		case "time_of_injury":
			inc.TimeOfInjury = asString(val)
		case "date_reported":
			inc.DateReported = asString(val)
		case "injury_type":
			inc.InjuryType = asString(val)
		case "severity":
			inc.Severity = asString(val)
		case "classification":
			inc.Classification = asString(val)
		case "body_part":
			inc.BodyPart = asString(val)
		case "body_side":
			inc.BodySide = asString(val)
		case "description":
			inc.Description = asString(val)
		case "mechanism":
			inc.Mechanism = asString(val)
		case "witness_name":
			inc.WitnessName = asString(val)
		case "treatment_type":
			inc.TreatmentType = asString(val)
		case "treatment_provider":
			inc.TreatmentProvider = asString(val)
		case "treatment_details":
			inc.TreatmentDetails = asString(val)
		case "referred_to":
			inc.ReferredTo = asString(val)
		case "actions":
			inc.Actions = asStringList(val)
		case "case_notes":
			inc.CaseNotes = asString(val)
		case "call_transcript":
			inc.CallTranscript = asString(val)
		case "document_refs":
			inc.DocumentRefs = asStringList(val)
		case "cost_estimate":
			inc.CostEstimate = asString(val)
		}
	}
}

// AuditSnapshot flattens the audit-relevant fields into display strings.
// Only tracked fields are frozen; bookkeeping fields like ids never show up
// in the change feed.
func AuditSnapshot(fields map[string]interface{}) activity.Snapshot {
	tracked := activity.TrackedFields()
	snap := make(activity.Snapshot, len(tracked))
	for _, key := range tracked {
		if val, ok := fields[key]; ok {
			snap[key] = RenderField(val)
		}
	}
	return snap
}

// RenderField turns a wizard field value into its display string. Lists
// join with "; " so multi-valued fields diff as one line.
func RenderField(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, "; ")
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, RenderField(item))
		}
		return strings.Join(parts, "; ")
	default:
		return fmt.Sprintf("%v", t)
	}
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func asStringList(v interface{}) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []string:
		return t
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, asString(item))
		}
		return out
	case string:
		if t == "" {
			return nil
		}
		return []string{t}
	}
	return nil
}
