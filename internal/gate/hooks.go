package gate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sprite-ai/impactgate/internal/model"
)

// StatusChange describes one gate transition.
type StatusChange struct {
	AnalysisID string                   `json:"analysis_id"`
	Previous   model.GateStatus         `json:"previous"`
	Current    model.GateStatus         `json:"current"`
	Gate       model.ImplementationGate `json:"gate"`
}

// Hook is notified of status changes.
type Hook func(ctx context.Context, change StatusChange) error

// OnStatusChange registers h. Hooks run in registration order.
func (c *Controller) OnStatusChange(h Hook) {
	if h == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
}

// NotifyStatusChange runs every hook when the status actually changed. A
// failing hook is logged and the rest still run; nothing is returned.
func (c *Controller) NotifyStatusChange(ctx context.Context, change StatusChange) {
	if change.Previous == change.Current {
		return
	}
	c.mu.RLock()
	hooks := append([]Hook(nil), c.hooks...)
	c.mu.RUnlock()

	for i, h := range hooks {
		if err := runHook(ctx, h, change); err != nil {
			hookFailuresTotal.Inc()
			c.logger.Error("gate status hook failed",
				slog.Int("hook", i),
				slog.String("analysis_id", change.AnalysisID),
				slog.Any("error", err),
			)
		}
	}
}

func runHook(ctx context.Context, h Hook, change StatusChange) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("hook panicked: %v", p)
		}
	}()
	return h(ctx, change)
}
