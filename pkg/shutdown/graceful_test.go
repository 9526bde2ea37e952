package shutdown_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authkeeper/pkg/shutdown"
)

func TestWaitRunsHooksOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	hook := func(context.Context) error {
		calls.Add(1)
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- shutdown.Wait(ctx, time.Second, hook, hook)
	}()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return")
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestWaitJoinsHookErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	hookErr := errors.New("close failed")
	err := shutdown.Wait(ctx, time.Second, func(context.Context) error { return hookErr })
	assert.ErrorIs(t, err, hookErr)
}

func TestWaitRespectsTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	slow := func(hookCtx context.Context) error {
		<-hookCtx.Done()
		time.Sleep(50 * time.Millisecond)
		return nil
	}

	start := time.Now()
	err := shutdown.Wait(ctx, 50*time.Millisecond, slow)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
