package cmd

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nextlevelbuilder/chatrelay/internal/bus"
	"github.com/nextlevelbuilder/chatrelay/internal/dedupe"
	"github.com/nextlevelbuilder/chatrelay/internal/router"
)

type countingProcessor struct {
	calls atomic.Int32
}

func (p *countingProcessor) Process(context.Context, bus.MessageEvent) (*router.Response, error) {
	p.calls.Add(1)
	return &router.Response{Handler: router.HandledAgent, Reason: "test"}, nil
}

type brokenLocker struct{}

func (brokenLocker) Acquire(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}
func (brokenLocker) Release(context.Context, string) error { return nil }

func TestRouteConsumer_OneWinnerPerMessage(t *testing.T) {
	locker := dedupe.New(100)
	t.Cleanup(locker.Close)
	proc := &countingProcessor{}
	c := &routeConsumer{router: proc, locker: locker, lockTTL: time.Minute}

	ev := bus.MessageEvent{MessageID: "m-1", Identifier: "telegram:42", Channel: "telegram", RawText: "hi"}
	const consumers = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			assert.NoError(t, c.handle(context.Background(), ev))
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), proc.calls.Load())

	require.NoError(t, c.handle(context.Background(), bus.MessageEvent{MessageID: "m-2", Identifier: "telegram:42"}))
	assert.Equal(t, int32(2), proc.calls.Load(), "a different message id is processed")
}

func TestRouteConsumer_LockFailureStillProcesses(t *testing.T) {
	proc := &countingProcessor{}
	c := &routeConsumer{router: proc, locker: brokenLocker{}, lockTTL: time.Minute}

	require.NoError(t, c.handle(context.Background(), bus.MessageEvent{MessageID: "m-1", Identifier: "telegram:42"}))
	assert.Equal(t, int32(1), proc.calls.Load())
}
