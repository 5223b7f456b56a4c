package llm

import "context"

// ProviderAdapter is implemented by provider backends. Adapters translate a
// Request into the provider's wire format and classify failures into the
// error taxonomy; they never retry.
type ProviderAdapter interface {
	// Name returns the provider identifier (e.g. "openai", "openrouter").
	Name() string

	// Complete sends a blocking request and returns the full response.
	Complete(ctx context.Context, req Request) (*Response, error)
}

// CompletionFunc adapts a plain function into a ProviderAdapter. Used in
// tests to script the model.
type CompletionFunc func(ctx context.Context, req Request) (*Response, error)

func (f CompletionFunc) Name() string { return "func" }

func (f CompletionFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// Client wraps a ProviderAdapter with a retry policy.
type Client struct {
	adapter ProviderAdapter
	policy  RetryPolicy
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(policy RetryPolicy) ClientOption {
	return func(c *Client) {
		c.policy = policy
	}
}

// NewClient creates a Client over the given adapter.
func NewClient(adapter ProviderAdapter, opts ...ClientOption) *Client {
	c := &Client{
		adapter: adapter,
		policy:  DefaultRetryPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Provider returns the underlying adapter's name.
func (c *Client) Provider() string {
	return c.adapter.Name()
}

// Complete sends a blocking completion request, retrying retryable failures
// per the client's policy.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	return Retry(ctx, c.policy, func(ctx context.Context) (*Response, error) {
		return c.adapter.Complete(ctx, req)
	})
}
