package middleware

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, 50*time.Millisecond)
	ctx := context.Background()
	boom := errors.New("boom")

	fail := func() error { return boom }
	ok := func() error { return nil }

	if err := cb.Call(ctx, fail); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err := cb.Call(ctx, fail); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open after threshold, got %v", cb.GetState())
	}

	// 熔断中直接拒绝，不触发下游调用
	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected ErrBreakerOpen, got %v", err)
	}
	if called {
		t.Fatalf("downstream must not be called while open")
	}

	// 等待 reset 窗口后半开试探，成功即恢复
	time.Sleep(60 * time.Millisecond)
	if err := cb.Call(ctx, ok); err != nil {
		t.Fatalf("expected half-open probe to pass: %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %v", cb.GetState())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("test", 1, 10*time.Millisecond)
	ctx := context.Background()
	boom := errors.New("boom")

	_ = cb.Call(ctx, func() error { return boom })
	if cb.GetState() != StateOpen {
		t.Fatalf("expected open, got %v", cb.GetState())
	}

	time.Sleep(20 * time.Millisecond)
	_ = cb.Call(ctx, func() error { return boom })
	if cb.GetState() != StateOpen {
		t.Fatalf("expected reopen after failed probe, got %v", cb.GetState())
	}
}
