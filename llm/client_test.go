package llm

import (
	"context"
	"testing"
)

func TestClientCompleteRoundTrip(t *testing.T) {
	adapter := CompletionFunc(func(ctx context.Context, req Request) (*Response, error) {
		if len(req.Messages) != 2 {
			t.Errorf("expected 2 messages, got %d", len(req.Messages))
		}
		if req.Messages[0].Role != RoleSystem {
			t.Errorf("expected system message first, got %s", req.Messages[0].Role)
		}
		return &Response{ID: "resp_1", Model: req.Model, Text: `{"step":"output","content":"hi"}`}, nil
	})
	client := NewClient(adapter)

	resp, err := client.Complete(context.Background(), Request{
		Model: "gpt-4o-mini",
		Messages: []Message{
			{Role: RoleSystem, Content: "be terse"},
			{Role: RoleUser, Content: "hello"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != `{"step":"output","content":"hi"}` || resp.Model != "gpt-4o-mini" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestClientRetriesThroughPolicy(t *testing.T) {
	calls := 0
	adapter := CompletionFunc(func(ctx context.Context, req Request) (*Response, error) {
		calls++
		if calls == 1 {
			return nil, &ServerError{ProviderError: ProviderError{
				SDKError: SDKError{Message: "flaky"}, StatusCode: 500, Retryable: true,
			}}
		}
		return &Response{Text: "ok"}, nil
	})
	client := NewClient(adapter, WithRetryPolicy(RetryPolicy{
		MaxRetries: 2, BaseDelay: 0.001, MaxDelay: 0.01, BackoffMultiplier: 2.0,
	}))

	resp, err := client.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "ok" || calls != 2 {
		t.Errorf("expected recovery on second call, got text=%q calls=%d", resp.Text, calls)
	}
}

func TestClientSurfacesNonRetryableImmediately(t *testing.T) {
	calls := 0
	adapter := CompletionFunc(func(ctx context.Context, req Request) (*Response, error) {
		calls++
		return nil, &AuthenticationError{ProviderError: ProviderError{
			SDKError: SDKError{Message: "bad key"}, StatusCode: 401,
		}}
	})
	client := NewClient(adapter, WithRetryPolicy(RetryPolicy{
		MaxRetries: 3, BaseDelay: 0.001, MaxDelay: 0.01, BackoffMultiplier: 2.0,
	}))

	if _, err := client.Complete(context.Background(), Request{}); err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("expected a single call, got %d", calls)
	}
}
