package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"

	"bgtask/internal/lifecycle"
)

// DemoJobName is the body registered by RegisterBuiltins.
const DemoJobName = "demo.steps"

// DemoPayload configures DemoBody.
type DemoPayload struct {
	Steps     int `json:"steps"`
	FailEvery int `json:"fail_every,omitempty"`
	DelayMS   int `json:"delay_ms,omitempty"`
}

// DemoBody walks through Steps steps, failing every FailEvery-th one. It is
// used to exercise the pipeline end to end from the CLI.
func DemoBody(ctx context.Context, h *lifecycle.Handle, payload []byte) error {
	if _, err := h.Start(ctx); err != nil {
		return err
	}
	var p DemoPayload
	if len(payload) > 0 {
		if err := sonic.Unmarshal(payload, &p); err != nil {
			_, ferr := h.Fail(ctx, fmt.Errorf("decode demo payload: %w", err))
			return ferr
		}
	}
	if p.Steps <= 0 {
		return h.Finishes(ctx, func(context.Context) error { return nil })
	}
	if _, err := h.SetStepsToComplete(ctx, p.Steps); err != nil {
		return err
	}
	delay := time.Duration(p.DelayMS) * time.Millisecond
	for i := 1; i <= p.Steps; i++ {
		step := i
		err := h.RunsSingleStep(ctx, func(ctx context.Context) error {
			if delay > 0 {
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if p.FailEvery > 0 && step%p.FailEvery == 0 {
				return fmt.Errorf("step %d failed", step)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// RegisterBuiltins registers the bodies shipped with bgtask.
func RegisterBuiltins(r *Registry) error {
	return r.Register(DemoJobName, DemoBody)
}
