package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(attempts uint64) Config {
	return Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestDo_SuccessFirstTry(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastConfig(3), func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessOnRetry(t *testing.T) {
	calls := 0
	v, err := Do(context.Background(), fastConfig(3), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestDo_AllFail(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	_, err := Do(context.Background(), fastConfig(4), func(context.Context) (int, error) {
		calls++
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, calls)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	notFound := errors.New("not found")

	calls := 0
	_, err := Do(context.Background(), fastConfig(5), func(context.Context) (int, error) {
		calls++
		return 0, notFound
	}, notFound)
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, 1, calls)

	calls = 0
	_, err = Do(context.Background(), fastConfig(5), func(context.Context) (int, error) {
		calls++
		return 0, Permanent(notFound)
	})
	assert.ErrorIs(t, err, notFound)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Do(ctx, Config{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond, MaxDelay: time.Second}, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("transient")
	})
	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 1)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Config{}, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("x")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
