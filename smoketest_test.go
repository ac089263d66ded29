package warden

import (
	"strings"
	"testing"
)

func TestClassifyNetProbe(t *testing.T) {
	cases := []struct {
		name       string
		res        *ExecResult
		wantPassed bool
		wantDetail string
	}{
		{
			name:       "connection succeeded",
			res:        &ExecResult{ExitCode: 0},
			wantPassed: false,
			wantDetail: "not binding",
		},
		{
			name:       "dial blocked",
			res:        &ExecResult{ExitCode: ProbeNetBlockedExit},
			wantPassed: true,
			wantDetail: "blocked",
		},
		{
			name:       "binary not executable under the policy",
			res:        &ExecResult{ExitCode: 126, Stderr: "sh: permission denied\n"},
			wantPassed: false,
			wantDetail: "did not run",
		},
		{
			name:       "binary not found",
			res:        &ExecResult{ExitCode: 127},
			wantPassed: false,
			wantDetail: "did not run",
		},
		{
			name:       "generic error exit",
			res:        &ExecResult{ExitCode: 1},
			wantPassed: false,
			wantDetail: "did not run",
		},
	}

	for _, c := range cases {
		passed, detail := classifyNetProbe(c.res)
		if passed != c.wantPassed {
			t.Errorf("%s: passed = %v, want %v", c.name, passed, c.wantPassed)
		}
		if !strings.Contains(detail, c.wantDetail) {
			t.Errorf("%s: detail = %q, want substring %q", c.name, detail, c.wantDetail)
		}
	}
}
