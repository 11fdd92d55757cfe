package vm

import (
	"context"
	"testing"

	"github.com/simon-1M/closurec/internal/fixtures"
	"github.com/simon-1M/closurec/lift"
	"github.com/stretchr/testify/require"
)

// TestObserver is a test observer that records events.
type TestObserver struct {
	NoOpObserver
	config  ObserverConfig
	Steps   []StepEvent
	Calls   []CallEvent
	Returns []ReturnEvent
	// stopAfter halts execution after that many steps when positive.
	stopAfter int
}

func (o *TestObserver) Config() ObserverConfig {
	return o.config
}

func (o *TestObserver) OnStep(event StepEvent) bool {
	o.Steps = append(o.Steps, event)
	return o.stopAfter == 0 || len(o.Steps) < o.stopAfter
}

func (o *TestObserver) OnCall(event CallEvent) bool {
	o.Calls = append(o.Calls, event)
	return true
}

func (o *TestObserver) OnReturn(event ReturnEvent) bool {
	o.Returns = append(o.Returns, event)
	return true
}

func observe(t *testing.T, observer *TestObserver) {
	t.Helper()
	m := compile(t, fixtures.MyListModule())
	machine, err := New(m, WithObserver(observer))
	require.Nil(t, err)
	_, err = machine.Call(context.Background(), "test", uint64(1))
	require.Nil(t, err)
}

func TestObserverCallsAndReturns(t *testing.T) {
	observer := &TestObserver{config: NewObserverConfig(StepAll)}
	observe(t, observer)

	var names []string
	for _, c := range observer.Calls {
		names = append(names, c.FunctionName)
	}
	lambda := lift.Name(1, "test")
	require.Equal(t, []string{"test", "foo", lambda, "len", "other_len"}, names)
	require.False(t, observer.Calls[1].Closure)
	require.True(t, observer.Calls[2].Closure)
	// Two explicit arguments follow the closure's empty capture list.
	require.Equal(t, 2, observer.Calls[2].ArgCount)
	require.Equal(t, 3, observer.Calls[2].FrameDepth)

	require.Len(t, observer.Returns, len(observer.Calls))
	last := observer.Returns[len(observer.Returns)-1]
	require.Equal(t, "test", last.FunctionName)
	require.Equal(t, 0, last.FrameDepth)

	require.NotEmpty(t, observer.Steps)
	require.Equal(t, "test", observer.Steps[0].Function)
	require.Equal(t, 0, observer.Steps[0].Offset)
	for _, step := range observer.Steps {
		require.NotEmpty(t, step.OpcodeName)
		require.GreaterOrEqual(t, step.FrameDepth, 1)
	}
}

func TestObserverStepModes(t *testing.T) {
	all := &TestObserver{config: NewObserverConfig(StepAll)}
	observe(t, all)

	blocks := &TestObserver{config: NewObserverConfig(StepOnBlock)}
	observe(t, blocks)
	require.NotEmpty(t, blocks.Steps)
	require.Less(t, len(blocks.Steps), len(all.Steps))

	sampled := &TestObserver{config: ObserverConfig{StepMode: StepSampled, SampleInterval: 5}}
	observe(t, sampled)
	require.Equal(t, len(all.Steps)/5, len(sampled.Steps))

	none := &TestObserver{config: ObserverConfig{StepMode: StepNone}}
	observe(t, none)
	require.Empty(t, none.Steps)
	require.Empty(t, none.Calls)
	require.Empty(t, none.Returns)
}

func TestObserverHalts(t *testing.T) {
	m := compile(t, fixtures.MyListModule())
	observer := &TestObserver{config: NewObserverConfig(StepAll), stopAfter: 3}
	machine, err := New(m, WithObserver(observer))
	require.Nil(t, err)
	_, err = machine.Call(context.Background(), "test", uint64(1))
	require.ErrorIs(t, err, ErrHalted)
	require.Len(t, observer.Steps, 3)
}
