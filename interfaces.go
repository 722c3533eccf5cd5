package convergent

import "context"

// PublishHook receives a notification after an intent is appended to the graph.
// Hooks run in their own goroutines and must not block indefinitely.
// Failures are logged but do not fail the publish.
type PublishHook interface {
	OnIntentPublished(ctx context.Context, intent Intent, computedStability float64) error
}

// PublishHookFunc adapts a function to PublishHook.
type PublishHookFunc func(ctx context.Context, intent Intent, computedStability float64) error

// OnIntentPublished calls f.
func (f PublishHookFunc) OnIntentPublished(ctx context.Context, intent Intent, computedStability float64) error {
	return f(ctx, intent, computedStability)
}
