package workflow

import "github.com/cgov/workflow/workflow/emit"

// Option configures a BaseWorkflow (and, by embedding, any executor built
// on top of it) at construction time.
type Option func(*config)

type config struct {
	overallTimeoutSeconds int
	failOpen              bool
	emitter               emit.Emitter
	metrics               *PrometheusMetrics
	parallelism           int
	retryPolicy           RetryPolicy
}

func newConfig() *config {
	return &config{
		emitter:     emit.NewNullEmitter(),
		parallelism: 4,
		retryPolicy: ConstantRetryPolicy(3, 0),
	}
}

// WithOverallTimeout sets the whole-workflow deadline in seconds.
func WithOverallTimeout(seconds int) Option {
	return func(c *config) { c.overallTimeoutSeconds = seconds }
}

// WithFailOpen allows a workflow to proceed past a governance hash mismatch
// instead of aborting. Off by default: the engine fails closed.
func WithFailOpen(failOpen bool) Option {
	return func(c *config) { c.failOpen = failOpen }
}

// WithEmitter installs an observability sink. Defaults to a no-op emitter.
func WithEmitter(e emit.Emitter) Option {
	return func(c *config) {
		if e != nil {
			c.emitter = e
		}
	}
}

// WithMetrics installs a Prometheus metrics recorder. Metrics are optional;
// a nil recorder disables metrics emission entirely.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(c *config) { c.metrics = m }
}

// WithParallelism bounds concurrent node execution for executors that
// schedule more than one unit of work at a time (DAGExecutor).
func WithParallelism(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithRetryPolicy stores rp in the construction config. No executor in this
// package reads it: RunStep takes its attempt budget and delay from each
// Step's MaxAttempts and RetryDelay.
func WithRetryPolicy(rp RetryPolicy) Option {
	return func(c *config) { c.retryPolicy = rp }
}
