package scribe

import (
	"context"
	"regexp"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// Validation is Scribe's self-validation report (§4.3), produced by
// running the generated test source through the same static rubric a
// retry attempt is judged against.
type Validation struct {
	AssertionCount  int      `json:"assertion_count"`
	ScreenshotCount int      `json:"screenshot_count"`
	UsesTestID      bool     `json:"uses_testid"`
	SyntaxValid     bool     `json:"syntax_valid"`
	Issues          []string `json:"issues"`
}

// Passes reports whether source clears the static rubric: at least one
// assertion, attribute-based selectors, at least one screenshot capture,
// and none of the forbidden patterns (§4.3).
func (v Validation) Passes() bool {
	return v.SyntaxValid && v.AssertionCount > 0 && v.ScreenshotCount > 0 && v.UsesTestID && len(v.Issues) == 0
}

const (
	IssueNoAssertions       = "no_assertions"
	IssueNoScreenshot       = "no_screenshot_capture"
	IssueNoTestID           = "no_attribute_selector"
	IssueSyntaxInvalid      = "syntax_invalid"
	IssueIndexSelector      = "index_based_selector"
	IssueGeneratedClass     = "generated_looking_css_class"
	IssueFixedWait          = "fixed_duration_wait"
	IssueHardcodedCredential = "hardcoded_credential_or_url"
)

var (
	indexSelectorPattern  = regexp.MustCompile(`nth-child\(|nth-of-type\(|\.eq\(\s*\d+\s*\)|\[\s*\d+\s*\]`)
	generatedClassPattern = regexp.MustCompile(`css-[a-z0-9]{5,}|sc-[a-zA-Z0-9]{5,}|jsx-\d+`)
	credentialURLPattern  = regexp.MustCompile(`(?i)(password|apikey|api_key|secret|token)\s*[:=]\s*["'][^"']+["']|https?://(?:[a-z0-9.-]+\.)?(?:localhost|127\.0\.0\.1|[a-z0-9.-]+\.(?:com|io|net|dev))`)
	fixedWaitPattern      = regexp.MustCompile(`\b(?:setTimeout|sleep|waitForTimeout|delay)\s*\(\s*[^,)]*,?\s*\d{2,}\s*\)`)
	testIDPattern         = regexp.MustCompile(`data-testid|getByTestId|\[data-test`)
)

// Validate parses source with the JavaScript grammar (Scribe emits
// Playwright/Cypress-style browser tests by default) and checks it against
// the static rubric; TypeScript-only syntax such as type annotations is
// reported as syntax_invalid. A parse with syntax errors is
// still scanned textually for the remaining checks so the issue list is
// as complete as possible on the first try.
func Validate(source string) Validation {
	v := Validation{SyntaxValid: true}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(source))
	if err != nil || tree == nil || tree.RootNode().HasError() {
		v.SyntaxValid = false
		v.Issues = append(v.Issues, IssueSyntaxInvalid)
	}
	if tree != nil {
		defer tree.Close()
		walkCalls(tree.RootNode(), source, &v)
	}

	if v.AssertionCount == 0 {
		v.Issues = append(v.Issues, IssueNoAssertions)
	}
	if v.ScreenshotCount == 0 {
		v.Issues = append(v.Issues, IssueNoScreenshot)
	}
	if testIDPattern.MatchString(source) {
		v.UsesTestID = true
	} else {
		v.Issues = append(v.Issues, IssueNoTestID)
	}
	if indexSelectorPattern.MatchString(source) {
		v.Issues = append(v.Issues, IssueIndexSelector)
	}
	if generatedClassPattern.MatchString(source) {
		v.Issues = append(v.Issues, IssueGeneratedClass)
	}
	if fixedWaitPattern.MatchString(source) {
		v.Issues = append(v.Issues, IssueFixedWait)
	}
	if credentialURLPattern.MatchString(source) {
		v.Issues = append(v.Issues, IssueHardcodedCredential)
	}

	return v
}

// walkCalls recurses the AST counting assertion (`expect(...)`,
// `expect.soft(...)`) and screenshot-capture call expressions. A matcher
// chained on an expect call (`expect(x).toBe(y)`) is not counted again.
func walkCalls(n *sitter.Node, source string, v *Validation) {
	if n == nil {
		return
	}
	if n.Type() == "call_expression" {
		callee := n.Child(0)
		if callee != nil {
			text := callee.Content([]byte(source))
			switch {
			case text == "expect" || (strings.HasPrefix(text, "expect.") && !strings.Contains(text, "(")):
				v.AssertionCount++
			case strings.Contains(text, "screenshot"):
				v.ScreenshotCount++
			}
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walkCalls(n.Child(i), source, v)
	}
}
