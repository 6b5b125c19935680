package actorutil

import (
	"errors"
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackgroundTaskSuccess(t *testing.T) {
	var got int
	task := &SafeBackgroundTask[int]{fn: func() (*int, error) {
		v := 42
		return &v, nil
	}}
	task.OnSuccess(func(v int) { got = v }).Run()
	assert.Equal(t, 42, got)
}

func TestBackgroundTaskErrors(t *testing.T) {
	tests := []struct {
		name string
		fn   func() (*int, error)
	}{
		{"error", func() (*int, error) { return nil, errors.New("boom") }},
		{"nil result", func() (*int, error) { return nil, nil }},
		{"panic", func() (*int, error) { panic("unexpected") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotErr error
			success := false
			task := &SafeBackgroundTask[int]{fn: tt.fn}
			task.OnSuccess(func(int) { success = true }).OnError(func(err error) { gotErr = err }).Run()
			require.Error(t, gotErr)
			assert.False(t, success)
		})
	}
}

func TestBackgroundTaskRecover(t *testing.T) {
	var got int
	task := &SafeBackgroundTask[int]{fn: func() (*int, error) { panic("unexpected") }}
	task.Recover(func(error) int { return -1 }).OnSuccess(func(v int) { got = v }).Run()
	assert.Equal(t, -1, got)
}

func TestBackgroundTaskTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var gotErr error
	task := &SafeBackgroundTask[int]{fn: func() (*int, error) {
		<-release
		v := 1
		return &v, nil
	}}
	start := time.Now()
	task.WithTimeout(50 * time.Millisecond).OnError(func(err error) { gotErr = err }).Run()
	assert.Error(t, gotErr)
	assert.Less(t, time.Since(start), 2*time.Second)
}

type taskResult struct {
	value int
}

func TestBackgroundTaskPipeTo(t *testing.T) {
	as := actor.NewActorSystem()
	defer as.Shutdown()

	results := make(chan taskResult, 2)
	props := actor.PropsFromFunc(func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case *actor.Started:
			NewBackgroundTaskNoError(ctx, func() *taskResult {
				return &taskResult{value: 7}
			}).PipeTo(ctx.Self())
			NewBackgroundTaskNoError(ctx, func() *taskResult {
				panic("unexpected")
			}).Recover(func(error) taskResult {
				return taskResult{value: -1}
			}).PipeTo(ctx.Self())
		case taskResult:
			results <- msg
		}
	})
	pid := as.Root.Spawn(props)
	defer as.Root.Stop(pid)

	var got []int
	for len(got) < 2 {
		select {
		case r := <-results:
			got = append(got, r.value)
		case <-time.After(2 * time.Second):
			t.Fatalf("received %v", got)
		}
	}
	assert.ElementsMatch(t, []int{7, -1}, got)
}
