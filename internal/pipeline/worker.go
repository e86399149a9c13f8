package pipeline

import "context"

type workerKey struct{}

// Worker identities assigned at startup.
const (
	WorkerHTTP       = "HTTPServer"
	WorkerSubscriber = "SubscriberProcess"
)

// WithWorker returns a context carrying the worker identity name.
func WithWorker(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, workerKey{}, name)
}

// WorkerFrom returns the worker identity stored in ctx, or "unknown".
func WorkerFrom(ctx context.Context) string {
	if name, ok := ctx.Value(workerKey{}).(string); ok && name != "" {
		return name
	}
	return "unknown"
}
