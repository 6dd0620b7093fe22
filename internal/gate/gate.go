// Package gate implements the quality gate engine: a configured set of
// independent checks run against the artifacts of a workflow pass,
// producing a score, a pass/fail verdict and remediation recommendations.
package gate

import (
	"context"
	"fmt"
	"sync"

	"github.com/forgeworks/squadron/pkg/models"
)

// Engine runs quality gates. It holds no mutable state; a single engine
// is safe for concurrent use by all tasks.
type Engine struct{}

// NewEngine creates a quality gate engine.
func NewEngine() *Engine {
	return &Engine{}
}

// RunGate evaluates the requirements against the artifact set. Checks
// are independent and run concurrently; results are reported in declared
// check order so that identical input yields identical output. The gate
// passes only if every check named in RequiredChecks passed; a high
// mean score cannot offset a failed required check.
//
// Superseded artifacts (same ID appended on a fix iteration) are
// collapsed to the most recent version before evaluation.
func (e *Engine) RunGate(ctx context.Context, artifacts []models.Artifact, req models.GateRequirements) (models.GateResult, error) {
	kinds, err := ResolveChecks(req)
	if err != nil {
		return models.GateResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return models.GateResult{}, err
	}

	latest := models.LatestArtifacts(artifacts)

	results := make([]models.QualityCheckResult, len(kinds))
	var wg sync.WaitGroup
	for i, kind := range kinds {
		wg.Add(1)
		go func(idx int, k CheckKind) {
			defer wg.Done()
			results[idx] = checkFuncs[k](latest, req)
		}(i, kind)
	}
	wg.Wait()

	res := models.GateResult{Checks: results}

	sum := 0
	for _, c := range results {
		sum += c.Score
	}
	res.Score = sum / len(results)

	required := make(map[string]bool, len(req.RequiredChecks))
	for _, name := range req.RequiredChecks {
		required[name] = true
	}
	res.Passed = true
	for _, c := range results {
		if required[c.Check] && !c.Passed {
			res.Passed = false
		}
	}

	if !res.Passed {
		res.Recommendations = buildRecommendations(results, required)
	}
	return res, nil
}

// buildRecommendations summarizes unmet checks. The orchestrator uses
// this list as the context payload for the next fix iteration.
func buildRecommendations(results []models.QualityCheckResult, required map[string]bool) []string {
	var recs []string
	for _, c := range results {
		if c.Passed {
			continue
		}
		priority := "advisory"
		if required[c.Check] {
			priority = "required"
		}
		if len(c.Findings) == 0 {
			recs = append(recs, fmt.Sprintf("%s check %s failed (score %d)", priority, c.Check, c.Score))
			continue
		}
		for _, f := range c.Findings {
			recs = append(recs, fmt.Sprintf("%s check %s: %s", priority, c.Check, f))
		}
	}
	return recs
}
