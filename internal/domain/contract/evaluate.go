package contract

import (
	"regexp"
	"strings"
	"time"
)

// Evaluation is the outcome of checking one response against a contract
// stack. Status "fail" marks the response ineligible for rank aggregation;
// warnings never flip eligibility.
type Evaluation struct {
	ContractID   string          `json:"contract_id"`
	Stage        string          `json:"stage"`
	Status       string          `json:"status"` // pass | warn | fail
	Eligible     bool            `json:"eligible"`
	HardFailures []string        `json:"hard_fail_reasons,omitempty"`
	Warnings     []string        `json:"warnings,omitempty"`
	Checks       map[string]bool `json:"checks,omitempty"`
	EvaluatedAt  time.Time       `json:"evaluated_at"`
}

const (
	StatusPass = "pass"
	StatusWarn = "warn"
	StatusFail = "fail"
)

// Hard-fail categories. Heuristic and deliberately narrow: a false FAIL
// disqualifies a council member, so every pattern targets unambiguous
// violations only.
var hardFailChecks = []struct {
	category string
	re       *regexp.Regexp
}{
	{"guarantee", regexp.MustCompile(`(?i)\b(guarantee|100%|always works|cannot fail|will prevent|prevents all)\b`)},
	{"accessibility_automation", regexp.MustCompile(`(?i)\b(accessibility (service|api)|android accessibility)\b`)},
	{"background_monitoring", regexp.MustCompile(`(?i)\b(background monitoring|always listening|listen 24/7|constant monitoring|monitor in the background)\b`)},
	{"medical_dosing", regexp.MustCompile(`(?i)\b(take|dose|dosing|administer)\b.{0,80}\b\d+(\.\d+)?\s*(mg|mcg|g|ml)\b`)},
}

var (
	reEvidenceTag    = regexp.MustCompile(`\[(Observed|Assumed|Inferred)\]`)
	reTableSeparator = regexp.MustCompile(`\|\s*:?-{3,}:?\s*\|`)
	reDiagnostic     = regexp.MustCompile(`(?i)(diagnos(e|is)|you have|this means you have)`)
	reRubricRequest  = regexp.MustCompile(`(?i)start with the rubric table`)
)

var rubricSections = []string{"B", "C", "D", "E", "F"}

// Evaluate scores a response against the resolved contract stack. The base
// contract rules always apply; per-contract rules (eldercare) apply only when
// that contract is in the stack.
func (r *Registry) Evaluate(userPrompt, response string, stack []string, stage string) *Evaluation {
	eval := &Evaluation{
		ContractID:  strings.Join(stack, ","),
		Stage:       stage,
		Checks:      make(map[string]bool),
		EvaluatedAt: time.Now().UTC(),
	}

	// Hard fails
	for _, check := range hardFailChecks {
		hit := check.re.MatchString(response)
		eval.Checks[check.category] = !hit
		if hit {
			eval.HardFailures = append(eval.HardFailures, check.category)
		}
	}

	// Rubric-table-first: only enforced when the user demanded it.
	if reRubricRequest.MatchString(userPrompt) {
		ok := hasEarlyMarkdownTable(response, 30)
		eval.Checks["rubric_table_first"] = ok
		if !ok {
			eval.HardFailures = append(eval.HardFailures, "rubric_table_first")
		}

		// Rubric protocol also expects the lettered section headings.
		var missing []string
		for _, sec := range rubricSections {
			if !hasSectionHeading(response, sec) {
				missing = append(missing, sec)
			}
		}
		if len(missing) > 0 {
			eval.Warnings = append(eval.Warnings, "missing_sections:"+strings.Join(missing, ","))
		}
	}

	// Soft warnings
	if !reEvidenceTag.MatchString(response) {
		eval.Warnings = append(eval.Warnings, "no_evidence_tags")
	}
	if stackContains(stack, "eldercare_safety_v1") && reDiagnostic.MatchString(response) {
		eval.Warnings = append(eval.Warnings, "diagnostic_phrasing")
	}

	switch {
	case len(eval.HardFailures) > 0:
		eval.Status = StatusFail
	case len(eval.Warnings) > 0:
		eval.Status = StatusWarn
	default:
		eval.Status = StatusPass
	}
	eval.Eligible = eval.Status != StatusFail
	return eval
}

// hasEarlyMarkdownTable reports whether a markdown table (a pipe row plus a
// header-separator row) appears within the first n non-blank lines.
func hasEarlyMarkdownTable(text string, n int) bool {
	var pipeRow, separator bool
	count := 0
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		count++
		if count > n {
			break
		}
		if strings.Count(trimmed, "|") >= 2 {
			if reTableSeparator.MatchString(trimmed) {
				separator = true
			} else {
				pipeRow = true
			}
		}
		if pipeRow && separator {
			return true
		}
	}
	return false
}

// hasSectionHeading looks for a heading line introducing section letter sec,
// e.g. "## B." or "B)" or "**B:**".
func hasSectionHeading(text, sec string) bool {
	re := regexp.MustCompile(`(?m)^\s*(?:#+\s*)?(?:\*\*)?` + sec + `[.):]\s*`)
	return re.MatchString(text)
}

func stackContains(stack []string, id string) bool {
	for _, s := range stack {
		if s == id {
			return true
		}
	}
	return false
}
