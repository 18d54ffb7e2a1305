package complexity

import "testing"

func TestEstimateExamples(t *testing.T) {
	cases := []struct {
		name  string
		desc  string
		steps int
		want  Verdict
	}{
		{"simple description, few steps", "write a test for the home page", 2, Easy},
		{"auth keyword group alone stays below threshold", "write a test for oauth login with 2fa", 3, Easy},
		{"file + payment keywords stack", "upload a file and validate checkout with stripe", 1, Hard},
		{"websocket + mock keywords stack", "simple websocket realtime sync with mock data", 0, Hard},
		{"step count alone does not cross threshold", "click a button", 10, Easy},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, got := Estimate(c.desc, c.steps)
			if got != c.want {
				t.Errorf("Estimate(%q, %d) = %v, want %v", c.desc, c.steps, got, c.want)
			}
		})
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	a := Score("payment checkout with stripe and mock", 5)
	b := Score("payment checkout with stripe and mock", 5)
	if a != b {
		t.Fatalf("expected deterministic score, got %d and %d", a, b)
	}
	if a != 2+4+2 {
		t.Fatalf("expected steps(2)+payment(4)+mock(2)=8, got %d", a)
	}
}
