// Package score derives the quality score of a finished repair run.
package score

import (
	"strings"
	"time"

	"github.com/lucasnoah/fixfactory/internal/pipeline"
)

const (
	BaseScore          = 100
	FailedPenalty      = 50
	NoTestsPenalty     = 80
	SpeedBonus         = 10
	SpeedThreshold     = 300 * time.Second
	FixAllowance       = 20
	PenaltyPerExtraFix = 2
)

// NoTestsFound reports whether the analyzer concluded the repository has no
// usable test suite.
func NoTestsFound(st pipeline.RunState) bool {
	cmd := strings.ToLower(st.TestCmd)
	return strings.Contains(cmd, "no test") || strings.Contains(cmd, "none") || st.TestScore == 0
}

// Calculate scores a terminal state. The result is clamped at 0 but not
// capped above, so a fast clean run scores 110.
func Calculate(st pipeline.RunState, duration time.Duration) pipeline.ScoreBreakdown {
	base := BaseScore
	if st.FinalStatus == pipeline.StatusFailed {
		base -= FailedPenalty
	}
	if NoTestsFound(st) {
		base -= NoTestsPenalty
	}

	speed := 0
	if duration < SpeedThreshold {
		speed = SpeedBonus
	}

	penalty := 0
	if extra := len(st.Fixes) - FixAllowance; extra > 0 {
		penalty = extra * PenaltyPerExtraFix
	}

	return pipeline.ScoreBreakdown{
		Base:              base,
		SpeedBonus:        speed,
		EfficiencyPenalty: penalty,
		Final:             max(0, base+speed-penalty),
	}
}

// Status is the status reported to callers: NO_TESTS overrides the test verdict.
func Status(st pipeline.RunState) string {
	if NoTestsFound(st) {
		return pipeline.StatusNoTests
	}
	if st.FinalStatus == "" {
		return string(pipeline.StatusFailed)
	}
	return string(st.FinalStatus)
}
