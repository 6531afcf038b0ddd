package decision

import (
	"net/http"
	"testing"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/breaker"
)

func TestThresholds_Classify(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		score float64
		want  Verdict
	}{
		{0.0, Allow},
		{0.79, Allow},
		{0.8, Pending},  // boundary: exactly on approval threshold is the stricter verdict
		{0.99, Pending},
		{1.0, Deny},     // boundary: exactly on block threshold is the stricter verdict
		{1.5, Deny},
	}

	for _, tt := range tests {
		if got := th.Classify(tt.score); got != tt.want {
			t.Errorf("Classify(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		score float64
		want  RiskLevel
	}{
		{0.0, RiskLow},
		{0.29, RiskLow},
		{0.3, RiskMedium},
		{0.79, RiskMedium},
		{0.8, RiskHigh},
		{1.0, RiskHigh},
	}

	for _, tt := range tests {
		if got := Level(tt.score); got != tt.want {
			t.Errorf("Level(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		verdict Verdict
		want    int
	}{
		{Allow, http.StatusOK},
		{Deny, http.StatusForbidden},
		{Pending, http.StatusAccepted},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.verdict); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %v, want %v", tt.verdict, got, tt.want)
		}
	}
}

func TestDecide_EnforceMode(t *testing.T) {
	th := DefaultThresholds()
	out := Decide(1.0, th, breaker.Enforce)

	if out.Emitted != Deny {
		t.Errorf("Emitted = %v, want Deny", out.Emitted)
	}
	if out.Observed != "" {
		t.Errorf("Observed = %v, want empty in ENFORCE mode", out.Observed)
	}
}

func TestDecide_ObserveMode_RewritesToAllow(t *testing.T) {
	th := DefaultThresholds()
	out := Decide(1.0, th, breaker.Observe)

	if out.Emitted != Allow {
		t.Errorf("Emitted = %v, want Allow in OBSERVE mode", out.Emitted)
	}
	if out.True != Deny {
		t.Errorf("True = %v, want Deny", out.True)
	}
	if out.Observed != Deny {
		t.Errorf("Observed = %v, want Deny", out.Observed)
	}
}

func TestDecide_ObserveMode_AllowUnaffected(t *testing.T) {
	th := DefaultThresholds()
	out := Decide(0.1, th, breaker.Observe)

	if out.Emitted != Allow {
		t.Errorf("Emitted = %v, want Allow", out.Emitted)
	}
	if out.Observed != "" {
		t.Errorf("Observed = %v, want empty when the true verdict was already Allow", out.Observed)
	}
}

func TestOutcome_Status(t *testing.T) {
	th := DefaultThresholds()
	observed := Decide(1.0, th, breaker.Observe)
	if got := observed.Status("blocked by rule X"); got != "blocked by rule X (observed; would have been deny under ENFORCE)" {
		t.Errorf("Status() = %q", got)
	}

	enforced := Decide(1.0, th, breaker.Enforce)
	if got := enforced.Status("blocked by rule X"); got != "blocked by rule X" {
		t.Errorf("Status() = %q, want unwrapped reason in ENFORCE mode", got)
	}
}
