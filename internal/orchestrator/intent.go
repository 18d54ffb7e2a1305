// Package orchestrator implements the Kaya Orchestrator (§4.4): intent
// parsing over raw operator text, and the two pipelines — Full Pipeline
// (create_test) and Iterative Fix Pipeline (iterative_fix) — that turn a
// parsed intent into a sequence of Router decisions and specialist
// invocations, enforcing the session budget and the rewrite/fix retry
// ceilings as they go.
package orchestrator

import (
	"regexp"
	"strings"
)

// Kind is the classified shape of an operator's request (§4.4.3).
type Kind string

const (
	KindIterativeFix Kind = "iterative_fix"
	KindRunTest      Kind = "run_test"
	KindCreateTest   Kind = "create_test"
	KindValidate     Kind = "validate"
	KindStatus       Kind = "status"
	KindBrainstorm   Kind = "brainstorm"
)

// BrainstormConfidence is what an unmatched utterance is scored at —
// below ConfidenceThreshold — while every pattern hit scores
// MatchConfidence, since matches here are binary (a pattern hits or it
// doesn't; there is no partial-match score).
const (
	MatchConfidence      = 1.0
	BrainstormConfidence = 0.0
	ConfidenceThreshold  = 0.5
)

// Intent is the classifier's output: a kind plus whatever slots that
// kind's pattern captured.
type Intent struct {
	Kind       Kind
	Slots      map[string]string
	Critical   bool
	Confidence float64
	RawText    string
}

// patternDef pairs a detection regex (run against lowercased text, for
// keyword matching) with the same pattern compiled case-insensitively
// and run against the original text, so captured slots such as file
// paths keep their original case (§4.4.3).
type patternDef struct {
	kind    Kind
	detect  *regexp.Regexp
	extract *regexp.Regexp
	build   func(m []string) (slots map[string]string, critical bool)
}

func mustPair(kind Kind, pattern string, build func(m []string) (map[string]string, bool)) patternDef {
	return patternDef{
		kind:    kind,
		detect:  regexp.MustCompile(pattern),
		extract: regexp.MustCompile("(?i)" + pattern),
		build:   build,
	}
}

func slotOrEmpty(m []string, i int) string {
	if i < 0 || i >= len(m) {
		return ""
	}
	return strings.TrimSpace(m[i])
}

var patterns = []patternDef{
	mustPair(KindIterativeFix, `fix all (test )?failures( in (.+))?`, func(m []string) (map[string]string, bool) {
		return map[string]string{"path": slotOrEmpty(m, 3)}, false
	}),
	mustPair(KindRunTest, `run tests?( in (.+))?`, func(m []string) (map[string]string, bool) {
		return map[string]string{"path": slotOrEmpty(m, 2)}, false
	}),
	mustPair(KindCreateTest, `write (a )?test for (.+)`, func(m []string) (map[string]string, bool) {
		feature := slotOrEmpty(m, 2)
		return map[string]string{"feature": feature, "description": feature}, false
	}),
	mustPair(KindValidate, `validate (.+?)(\s*-\s*critical)?$`, func(m []string) (map[string]string, bool) {
		feature := slotOrEmpty(m, 1)
		critical := slotOrEmpty(m, 2) != ""
		return map[string]string{"feature": feature}, critical
	}),
	mustPair(KindStatus, `what'?s the status( of (.+))?`, func(m []string) (map[string]string, bool) {
		return map[string]string{"task_id": slotOrEmpty(m, 2)}, false
	}),
}

// ParseIntent classifies raw operator text into an Intent (§4.4.3). Text
// is lowercased for keyword detection; once a pattern hits, slots are
// re-extracted from the original-case text so captured paths and feature
// names are not mangled. No match at or above ConfidenceThreshold falls
// back to brainstorm — a text-only response via the cheap model, handled
// entirely outside the two pipelines below.
func ParseIntent(text string) Intent {
	lower := strings.ToLower(text)
	for _, p := range patterns {
		if !p.detect.MatchString(lower) {
			continue
		}
		m := p.extract.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		slots, critical := p.build(m)
		return Intent{
			Kind:       p.kind,
			Slots:      slots,
			Critical:   critical,
			Confidence: MatchConfidence,
			RawText:    text,
		}
	}
	return Intent{
		Kind:       KindBrainstorm,
		Slots:      map[string]string{},
		Confidence: BrainstormConfidence,
		RawText:    text,
	}
}
