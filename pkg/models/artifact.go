package models

import "time"

// Artifact is one concrete work product generated during a workflow run.
// Artifacts are never mutated in place; a fix iteration supersedes an
// artifact by appending a new one with the same ID.
type Artifact struct {
	// Type classifies the artifact (e.g. "file", "report").
	Type string `json:"type"`
	// ID is the artifact identifier, typically a path.
	ID string `json:"id"`
	// Content is the produced content.
	Content string `json:"content,omitempty"`
	// Step is the workflow step that produced the artifact.
	Step string `json:"step"`
	// Squad is the squad whose agent produced the artifact.
	Squad string `json:"squad,omitempty"`
	// Agent is the agent that produced the artifact.
	Agent string `json:"agent,omitempty"`
	// Metadata carries opaque invoker metadata (token counts, cost)
	// surfaced for downstream tracking. The core never interprets it.
	Metadata map[string]string `json:"metadata,omitempty"`
	// CreatedAt is when the artifact was produced.
	CreatedAt time.Time `json:"created_at"`
}

// LatestArtifacts collapses an artifact history to the most recent
// artifact per ID, preserving first-seen ID order. Fix iterations append
// superseding artifacts, so "most recent" is "last in the list".
func LatestArtifacts(artifacts []Artifact) []Artifact {
	index := make(map[string]int)
	var out []Artifact
	for _, a := range artifacts {
		if i, ok := index[a.ID]; ok {
			out[i] = a
			continue
		}
		index[a.ID] = len(out)
		out = append(out, a)
	}
	return out
}
