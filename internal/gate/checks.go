package gate

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/forgeworks/squadron/pkg/models"
)

// CheckKind identifies a quality check implementation. Kinds are
// resolved when gate requirements are loaded, so an unknown kind fails
// at startup rather than mid-run.
type CheckKind string

const (
	// CheckArtifactPresence verifies every required step produced at
	// least one artifact.
	CheckArtifactPresence CheckKind = "artifact_presence"
	// CheckRequiredFiles verifies every required artifact ID is present.
	CheckRequiredFiles CheckKind = "required_files"
	// CheckStructure verifies artifacts are structurally complete
	// (identifier, type, non-empty content).
	CheckStructure CheckKind = "structure"
	// CheckSecurity scans artifact content for credential-looking material.
	CheckSecurity CheckKind = "security"
	// CheckLint applies content hygiene heuristics.
	CheckLint CheckKind = "lint"
)

// checkFunc evaluates one check over the artifact set. Implementations
// must be deterministic: identical input yields identical results.
type checkFunc func(artifacts []models.Artifact, req models.GateRequirements) models.QualityCheckResult

// checkFuncs maps each known kind to its implementation.
var checkFuncs = map[CheckKind]checkFunc{
	CheckArtifactPresence: checkArtifactPresence,
	CheckRequiredFiles:    checkRequiredFiles,
	CheckStructure:        checkStructure,
	CheckSecurity:         checkSecurity,
	CheckLint:             checkLint,
}

// ResolveChecks validates requirement check names and returns the kinds
// to run, in declared order.
func ResolveChecks(req models.GateRequirements) ([]CheckKind, error) {
	if len(req.Checks) == 0 {
		return nil, fmt.Errorf("gate requirements name no checks")
	}
	kinds := make([]CheckKind, 0, len(req.Checks))
	declared := make(map[string]bool, len(req.Checks))
	for _, name := range req.Checks {
		kind := CheckKind(name)
		if _, ok := checkFuncs[kind]; !ok {
			return nil, fmt.Errorf("unknown quality check %q", name)
		}
		kinds = append(kinds, kind)
		declared[name] = true
	}
	for _, name := range req.RequiredChecks {
		if !declared[name] {
			return nil, fmt.Errorf("required check %q is not in the check list", name)
		}
	}
	return kinds, nil
}

func checkArtifactPresence(artifacts []models.Artifact, req models.GateRequirements) models.QualityCheckResult {
	res := models.QualityCheckResult{Check: string(CheckArtifactPresence)}
	if len(req.RequiredSteps) == 0 {
		res.Passed = len(artifacts) > 0
		if res.Passed {
			res.Score = 100
		} else {
			res.Findings = []string{"workflow produced no artifacts"}
		}
		return res
	}

	byStep := make(map[string]int)
	for _, a := range artifacts {
		byStep[a.Step]++
	}
	present := 0
	for _, step := range req.RequiredSteps {
		if byStep[step] > 0 {
			present++
		} else {
			res.Findings = append(res.Findings, fmt.Sprintf("required step %s produced no artifacts", step))
		}
	}
	res.Score = present * 100 / len(req.RequiredSteps)
	res.Passed = present == len(req.RequiredSteps)
	return res
}

func checkRequiredFiles(artifacts []models.Artifact, req models.GateRequirements) models.QualityCheckResult {
	res := models.QualityCheckResult{Check: string(CheckRequiredFiles)}
	if len(req.RequiredFiles) == 0 {
		res.Passed = true
		res.Score = 100
		return res
	}

	ids := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		ids[a.ID] = true
	}
	present := 0
	for _, want := range req.RequiredFiles {
		if ids[want] {
			present++
		} else {
			res.Findings = append(res.Findings, fmt.Sprintf("required file %s is missing", want))
		}
	}
	res.Score = present * 100 / len(req.RequiredFiles)
	res.Passed = present == len(req.RequiredFiles)
	return res
}

func checkStructure(artifacts []models.Artifact, req models.GateRequirements) models.QualityCheckResult {
	res := models.QualityCheckResult{Check: string(CheckStructure)}
	if len(artifacts) == 0 {
		res.Findings = []string{"no artifacts to validate"}
		return res
	}

	valid := 0
	for _, a := range artifacts {
		switch {
		case a.ID == "":
			res.Findings = append(res.Findings, "artifact with empty identifier")
		case a.Type == "":
			res.Findings = append(res.Findings, fmt.Sprintf("artifact %s has no type", a.ID))
		case strings.TrimSpace(a.Content) == "":
			res.Findings = append(res.Findings, fmt.Sprintf("artifact %s has empty content", a.ID))
		default:
			valid++
		}
	}
	res.Score = valid * 100 / len(artifacts)
	res.Passed = valid == len(artifacts)
	return res
}

// secretPatterns flags credential-looking content. Grounded on the same
// classes of material the protected-area detector guards: keys, tokens,
// cloud credentials.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`),
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),
	regexp.MustCompile(`(?i)\b(?:api[_-]?key|secret|password|token)\s*[:=]\s*["'][^"']{8,}["']`),
}

func checkSecurity(artifacts []models.Artifact, req models.GateRequirements) models.QualityCheckResult {
	res := models.QualityCheckResult{Check: string(CheckSecurity)}
	for _, a := range artifacts {
		for _, p := range secretPatterns {
			if p.MatchString(a.Content) {
				res.Findings = append(res.Findings, fmt.Sprintf("artifact %s contains credential-looking content", a.ID))
				break
			}
		}
	}
	sort.Strings(res.Findings)
	res.Score = max(0, 100-25*len(res.Findings))
	res.Passed = len(res.Findings) == 0
	return res
}

func checkLint(artifacts []models.Artifact, req models.GateRequirements) models.QualityCheckResult {
	res := models.QualityCheckResult{Check: string(CheckLint)}
	issues := 0
	for _, a := range artifacts {
		for _, marker := range []string{"TODO", "FIXME", "XXX", "HACK"} {
			if n := strings.Count(a.Content, marker); n > 0 {
				issues += n
				res.Findings = append(res.Findings, fmt.Sprintf("artifact %s contains %d %s marker(s)", a.ID, n, marker))
			}
		}
	}
	sort.Strings(res.Findings)
	res.Score = max(0, 100-10*issues)
	// Lint is advisory: a handful of markers is tolerated.
	res.Passed = res.Score >= 70
	return res
}
