package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalculateDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffStrategy: BackoffExponential}

	assert.Equal(t, time.Duration(0), p.CalculateDelay(0))
	assert.Equal(t, 100*time.Millisecond, p.CalculateDelay(1))
	assert.Equal(t, 200*time.Millisecond, p.CalculateDelay(2))
	assert.Equal(t, 400*time.Millisecond, p.CalculateDelay(3))
	assert.Equal(t, time.Second, p.CalculateDelay(10))

	p.BackoffStrategy = BackoffLinear
	assert.Equal(t, 300*time.Millisecond, p.CalculateDelay(3))

	p.BackoffStrategy = BackoffFixed
	assert.Equal(t, 100*time.Millisecond, p.CalculateDelay(5))
}

func TestCalculateDelayJitterStaysInRange(t *testing.T) {
	p := RetryPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffStrategy: BackoffFixed, JitterFactor: 0.5}
	for i := 0; i < 100; i++ {
		d := p.CalculateDelay(1)
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.LessOrEqual(t, d, 150*time.Millisecond)
	}
}

func TestRetrySucceedsAfterFailures(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, BackoffStrategy: BackoffFixed}
	calls := 0
	attempts, err := p.Retry(context.Background(), nil, func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return errors.New("transient")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestRetryExhausts(t *testing.T) {
	p := RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffStrategy: BackoffFixed}
	boom := errors.New("boom")
	attempts, err := p.Retry(context.Background(), nil, func(ctx context.Context, attempt int) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsOnTerminalError(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, InitialDelay: time.Millisecond, BackoffStrategy: BackoffFixed}
	terminal := errors.New("terminal")
	attempts, err := p.Retry(context.Background(), func(err error) bool { return !errors.Is(err, terminal) },
		func(ctx context.Context, attempt int) error { return terminal })
	assert.ErrorIs(t, err, terminal)
	assert.Equal(t, 1, attempts)
}

func TestRetryHonorsCancellation(t *testing.T) {
	p := RetryPolicy{MaxRetries: 5, InitialDelay: time.Hour, BackoffStrategy: BackoffFixed}
	ctx, cancel := context.WithCancel(context.Background())
	boom := errors.New("boom")
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	attempts, err := p.Retry(ctx, nil, func(ctx context.Context, attempt int) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}
