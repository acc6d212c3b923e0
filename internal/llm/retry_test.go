package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("status %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

type scriptedClient struct {
	errs  []error
	calls int
}

func (s *scriptedClient) Complete(ctx context.Context, req Request) (Response, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return Response{}, s.errs[i]
	}
	return Response{Text: "ok"}, nil
}

func TestRetryOnceOnTransientError(t *testing.T) {
	base := &scriptedClient{errs: []error{statusErr(529)}}
	c := retrying{base: base, delay: time.Millisecond}

	resp, err := c.Complete(context.Background(), Request{Prompt: "p"})
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if resp.Text != "ok" || base.calls != 2 {
		t.Fatalf("unexpected resp=%+v calls=%d", resp, base.calls)
	}
}

func TestRetryGivesUpAfterSecondFailure(t *testing.T) {
	base := &scriptedClient{errs: []error{statusErr(500), statusErr(502), nil}}
	c := retrying{base: base, delay: time.Millisecond}

	if _, err := c.Complete(context.Background(), Request{}); err == nil {
		t.Fatalf("expected error")
	}
	if base.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", base.calls)
	}
}

func TestNoRetryOnClientError(t *testing.T) {
	base := &scriptedClient{errs: []error{statusErr(400)}}
	c := retrying{base: base, delay: time.Millisecond}

	if _, err := c.Complete(context.Background(), Request{}); err == nil {
		t.Fatalf("expected error")
	}
	if base.calls != 1 {
		t.Fatalf("expected 1 call, got %d", base.calls)
	}
}

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{fmt.Errorf("claude: %w", context.DeadlineExceeded), true},
		{statusErr(429), true},
		{statusErr(404), false},
		{errors.New("read tcp: connection reset by peer"), true},
		{errors.New("invalid json"), false},
	}
	for _, tc := range cases {
		if got := ShouldRetry(tc.err); got != tc.want {
			t.Fatalf("ShouldRetry(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestHashPromptStable(t *testing.T) {
	a := HashPrompt(Request{System: "s", Prompt: "p"})
	if a != HashPrompt(Request{System: "s", Prompt: "p"}) {
		t.Fatalf("expected deterministic hash")
	}
	if a == HashPrompt(Request{System: "s", Prompt: "q"}) {
		t.Fatalf("expected hash to change with prompt")
	}
}
