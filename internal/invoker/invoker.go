// Package invoker defines the boundary to the external agent execution
// layer. The core hands an agent descriptor and a work item across this
// boundary and receives an artifact back; prompt content, model choice,
// retries and cost live on the far side.
package invoker

import (
	"context"

	"github.com/forgeworks/squadron/pkg/models"
)

// Invoker executes one unit of work for one agent.
// Implementations must honor ctx cancellation and deadlines; the squad
// manager applies the per-agent timeout through ctx.
type Invoker interface {
	Invoke(ctx context.Context, agent models.AgentDescriptor, item models.WorkItem) (models.Artifact, error)
}

// Func adapts a function to the Invoker interface. Used heavily in tests.
type Func func(ctx context.Context, agent models.AgentDescriptor, item models.WorkItem) (models.Artifact, error)

// Invoke calls f.
func (f Func) Invoke(ctx context.Context, agent models.AgentDescriptor, item models.WorkItem) (models.Artifact, error) {
	return f(ctx, agent, item)
}
