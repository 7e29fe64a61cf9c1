package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestLocalIOStopsAfterAttempts(t *testing.T) {
	calls := 0
	notified := 0
	err := LocalIO(3, 0).Do(context.Background(), func() error {
		calls++
		return errFlaky
	}, func(err error, attempt int, wait time.Duration) {
		notified++
		assert.ErrorIs(t, err, errFlaky)
		assert.Equal(t, notified, attempt)
	})

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, notified)
}

func TestLocalIOSucceedsAfterRetry(t *testing.T) {
	calls := 0
	err := LocalIO(5, time.Millisecond).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestPermanentIsNotRetried(t *testing.T) {
	calls := 0
	err := Network(time.Millisecond, time.Millisecond, time.Second).Do(context.Background(), func() error {
		calls++
		return Permanent(errFlaky)
	}, nil)

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}

func TestNetworkIsDurationBounded(t *testing.T) {
	calls := 0
	start := time.Now()
	err := Network(5*time.Millisecond, 10*time.Millisecond, 60*time.Millisecond).Do(context.Background(), func() error {
		calls++
		return errFlaky
	}, nil)

	assert.ErrorIs(t, err, errFlaky)
	assert.Greater(t, calls, 1)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestContextCancelStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Network(time.Millisecond, time.Millisecond, time.Minute).Do(ctx, func() error {
		calls++
		if calls == 2 {
			cancel()
		}
		return errFlaky
	}, nil)

	assert.Error(t, err)
	assert.LessOrEqual(t, calls, 3)
}

func TestOnceAndZeroPolicy(t *testing.T) {
	calls := 0
	err := Once().Do(context.Background(), func() error {
		calls++
		return errFlaky
	}, nil)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)

	calls = 0
	err = Policy{}.Do(context.Background(), func() error {
		calls++
		return errFlaky
	}, nil)
	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 1, calls)
}
