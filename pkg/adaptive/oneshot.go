package adaptive

import (
	"context"

	"github.com/aspexa/automa/pkg/events"
	"github.com/aspexa/automa/pkg/models"
)

// RunOnce executes a single articulate → convert → execute → score pass
// with no analysis or adaptation, then terminates. Used by the one-shot
// endpoint for quick target probes; semantics are identical to an adaptive
// run capped at one iteration.
func (l *Loop) RunOnce(ctx context.Context, req Request, stream *events.Stream) (*models.ExploitResult, error) {
	req.MaxIterations = 1
	return l.Run(ctx, req, stream)
}
