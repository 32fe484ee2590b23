package incident

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError carries the first failing tab and every field-level
// message, so callers can render inline errors instead of one string.
type ValidationError struct {
	Tab    string            `json:"tab"`
	Fields map[string]string `json:"fields"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s tab: %d invalid field(s)", e.Tab, len(e.Fields))
}

// Wizard tabs in their fixed order. Edit sessions insert cost-estimate
// before documents; documents is always last and never required.
const (
	TabNotifier     = "notifier"
	TabWorker       = "worker"
	TabIncident     = "incident"
	TabInjury       = "injury"
	TabTreatment    = "treatment"
	TabActions      = "actions"
	TabCostEstimate = "cost-estimate"
	TabDocuments    = "documents"
)

// TabOrder returns the tab sequence for a session.
func TabOrder(edit bool) []string {
	tabs := []string{TabNotifier, TabWorker, TabIncident, TabInjury, TabTreatment, TabActions}
	if edit {
		tabs = append(tabs, TabCostEstimate)
	}
	return append(tabs, TabDocuments)
}

// rule is one declarative validation constraint on a wizard field.
type rule struct {
	field    string
	label    string
	required bool
	check    func(string) string // non-empty values only; returns a message or ""
}

var (
	dateRE  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	timeRE  = regexp.MustCompile(`^\d{2}:\d{2}$`)
	moneyRE = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
)

func checkEmail(v string) string {
	if !strings.Contains(v, "@") {
		return "must be a valid email address"
	}
	return ""
}

func checkDate(v string) string {
	if !dateRE.MatchString(v) {
		return "must be a date in YYYY-MM-DD format"
	}
	return ""
}

func checkTime(v string) string {
	if !timeRE.MatchString(v) {
		return "must be a time in HH:MM format"
	}
	return ""
}

func checkMoney(v string) string {
	if !moneyRE.MatchString(v) {
		return "must be an amount like 1250 or 1250.00"
	}
	return ""
}

// tabRules is the validation schema: per tab, which fields are required and
// what shape their values must have. Documents carries no rules on purpose.
var tabRules = map[string][]rule{
	TabNotifier: {
		{field: "notifier_name", label: "Notifier Name", required: true},
		{field: "notifier_email", label: "Notifier Email", check: checkEmail},
	},
	TabWorker: {
		{field: "worker_name", label: "Worker Name", required: true},
		{field: "employer_id", label: "Employer", required: true},
	},
	TabIncident: {
		{field: "site_name", label: "Site", required: true},
		{field: "date_of_injury", label: "Date of Injury", required: true, check: checkDate},
		{field: "time_of_injury", label: "Time of Injury", check: checkTime},
		{field: "description", label: "Description", required: true},
	},
	TabInjury: {
		{field: "injury_type", label: "Injury Type", required: true},
		{field: "severity", label: "Severity", required: true},
		{field: "body_part", label: "Body Part", required: true},
	},
	TabTreatment: {
		{field: "treatment_type", label: "Treatment Type", required: true},
	},
	TabActions:      {},
	TabCostEstimate: {{field: "cost_estimate", label: "Cost Estimate", check: checkMoney}},
	TabDocuments:    {},
}

// ValidateTab evaluates one tab's rules against the working fields and
// returns field -> message for everything that fails. An empty map means the
// tab is valid.
func ValidateTab(tab string, fields map[string]interface{}) map[string]string {
	errs := make(map[string]string)
	for _, r := range tabRules[tab] {
		v := strings.TrimSpace(RenderField(fields[r.field]))
		if v == "" {
			if r.required {
				errs[r.field] = r.label + " is required"
			}
			continue
		}
		if r.check != nil {
			if msg := r.check(v); msg != "" {
				errs[r.field] = r.label + " " + msg
			}
		}
	}
	return errs
}

// ValidateAll runs every tab in order and returns the first failing tab plus
// the union of all field errors. A "" tab means the document is valid.
func ValidateAll(fields map[string]interface{}, edit bool) (string, map[string]string) {
	firstFailing := ""
	all := make(map[string]string)
	for _, tab := range TabOrder(edit) {
		errs := ValidateTab(tab, fields)
		if len(errs) == 0 {
			continue
		}
		if firstFailing == "" {
			firstFailing = tab
		}
		for f, msg := range errs {
			all[f] = msg
		}
	}
	return firstFailing, all
}
