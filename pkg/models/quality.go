package models

// QualityCheckResult is the outcome of one named quality check.
// Results are produced fresh each gate run and never mutated.
type QualityCheckResult struct {
	// Check is the name of the check that ran.
	Check string `json:"check"`
	// Passed indicates whether the check succeeded.
	Passed bool `json:"passed"`
	// Score is the check's score from 0 to 100.
	Score int `json:"score"`
	// Findings lists the problems the check found, if any.
	Findings []string `json:"findings,omitempty"`
}

// GateResult is the verdict of one quality gate run.
type GateResult struct {
	// Passed is true only if every required check passed.
	Passed bool `json:"passed"`
	// Score is the arithmetic mean of per-check scores (0-100).
	Score int `json:"score"`
	// Checks holds the individual check results.
	Checks []QualityCheckResult `json:"checks"`
	// Recommendations summarizes unmet checks for the fix iteration.
	Recommendations []string `json:"recommendations,omitempty"`
}

// GateRequirements configures a quality gate run.
type GateRequirements struct {
	// Checks lists the check kinds to run. Unknown kinds are rejected at
	// load time, not mid-run.
	Checks []string `json:"checks" yaml:"checks"`
	// RequiredChecks is the subset of Checks that must pass for the gate
	// to pass, regardless of overall score.
	RequiredChecks []string `json:"required_checks" yaml:"required_checks"`
	// RequiredFiles lists artifact IDs that must be present.
	RequiredFiles []string `json:"required_files,omitempty" yaml:"required_files"`
	// RequiredSteps lists workflow steps that must each have produced at
	// least one artifact.
	RequiredSteps []string `json:"required_steps,omitempty" yaml:"required_steps"`
}
