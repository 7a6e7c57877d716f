package event_test

import (
	"testing"

	"github.com/dmorton63/qaiosplus-sub000/kernel/event"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
	"github.com/stretchr/testify/require"
)

func TestPostThenProcessDispatchesExactlyOnce(t *testing.T) {
	b := event.New(16, 4)

	var calls int
	_, s := b.AddListener(event.KeyDown, event.All, event.Low, func(e event.Event, _ any) bool {
		calls++
		return false
	}, nil)
	require.Equal(t, status.Success, s)

	require.Equal(t, status.Success, b.Post(event.Event{Type: event.KeyDown, Category: event.Input, Priority: event.Normal}))

	n := b.ProcessEvents(0)
	require.Equal(t, 1, n)
	require.Equal(t, 1, calls)

	// a second ProcessEvents with nothing queued does no work
	require.Equal(t, 0, b.ProcessEvents(0))
	require.Equal(t, 1, calls)
}

func TestHandledStopsPropagation(t *testing.T) {
	b := event.New(16, 4)

	var second bool
	_, _ = b.AddListener(event.None, event.All, event.Low, func(e event.Event, _ any) bool {
		return true
	}, nil)
	_, _ = b.AddListener(event.None, event.All, event.Low, func(e event.Event, _ any) bool {
		second = true
		return false
	}, nil)

	require.Equal(t, status.Success, b.Post(event.Event{Type: event.MouseMove, Category: event.Input}))
	b.ProcessEvents(0)

	require.False(t, second, "second listener must not see a consumed event")
}

func TestImmediatePrecedesMainQueueFIFO(t *testing.T) {
	b := event.New(200, 4)

	var order []string
	handler := func(tag string) event.Handler {
		return func(e event.Event, _ any) bool {
			if e.Priority == event.Immediate {
				order = append(order, "immediate")
			} else {
				order = append(order, tag)
			}
			return false
		}
	}

	_, _ = b.AddListener(event.None, event.All, event.Low, handler("any"), nil)

	for i := 0; i < 100; i++ {
		require.Equal(t, status.Success, b.Post(event.Event{Type: event.MouseMove, Category: event.Input, Priority: event.Normal}))
	}
	require.Equal(t, status.Success, b.Post(event.Event{Type: event.KeyDown, Category: event.Input, Priority: event.Immediate}))

	n := b.ProcessEvents(0)
	require.Equal(t, 101, n)
	require.Equal(t, 101, len(order))
	require.Equal(t, "immediate", order[0])
}

func TestQueueOverflowIncrementsDropCounter(t *testing.T) {
	b := event.New(2, 1)

	require.Equal(t, status.Success, b.Post(event.Event{Type: event.Timer, Category: event.System}))
	require.Equal(t, status.Success, b.Post(event.Event{Type: event.Timer, Category: event.System}))

	s := b.Post(event.Event{Type: event.Timer, Category: event.System})
	require.NotEqual(t, status.Success, s)

	_, dropped := b.Stats()
	require.Equal(t, uint64(1), dropped)
}

func TestReentrantProcessEventsReturnsZero(t *testing.T) {
	b := event.New(16, 4)

	var nested int
	_, _ = b.AddListener(event.None, event.All, event.Low, func(e event.Event, _ any) bool {
		nested = b.ProcessEvents(0)
		return false
	}, nil)

	b.Post(event.Event{Type: event.Timer, Category: event.System})
	b.ProcessEvents(0)

	require.Equal(t, 0, nested)
}

func TestListenerFilteringByTypeCategoryPriority(t *testing.T) {
	b := event.New(16, 4)

	var matched int
	_, _ = b.AddListener(event.KeyDown, event.Input, event.High, func(e event.Event, _ any) bool {
		matched++
		return false
	}, nil)

	// wrong type
	b.Post(event.Event{Type: event.MouseMove, Category: event.Input, Priority: event.High})
	// wrong category
	b.Post(event.Event{Type: event.KeyDown, Category: event.System, Priority: event.High})
	// priority too low
	b.Post(event.Event{Type: event.KeyDown, Category: event.Input, Priority: event.Low})
	// matches
	b.Post(event.Event{Type: event.KeyDown, Category: event.Input, Priority: event.High})

	b.ProcessEvents(0)

	require.Equal(t, 1, matched)
}

func TestRemoveListenerFreesSlot(t *testing.T) {
	b := event.New(16, 4)

	id, s := b.AddListener(event.None, event.All, event.Low, func(event.Event, any) bool { return false }, nil)
	require.Equal(t, status.Success, s)

	require.Equal(t, status.Success, b.RemoveListener(id))
	require.Equal(t, status.NotFound, b.RemoveListener(id))
}

type fakeReceiver struct {
	enabled bool
	mask    event.Category
	onEvent func(event.Event) bool
}

func (f *fakeReceiver) OnEvent(e event.Event) bool { return f.onEvent(e) }
func (f *fakeReceiver) Enabled() bool              { return f.enabled }
func (f *fakeReceiver) EventMask() event.Category  { return f.mask }

func TestReceiverDispatchAfterListeners(t *testing.T) {
	b := event.New(16, 4)

	var got bool
	var order []string
	_, _ = b.AddListener(event.None, event.All, event.Low, func(e event.Event, _ any) bool {
		order = append(order, "listener")
		return false
	}, nil)
	r := &fakeReceiver{enabled: true, mask: event.All, onEvent: func(e event.Event) bool {
		got = true
		order = append(order, "receiver")
		return true
	}}

	_, s := b.AddReceiver(r)
	require.Equal(t, status.Success, s)

	b.Post(event.Event{Type: event.WindowMoved, Category: event.Window})
	b.ProcessEvents(0)

	require.True(t, got)
	require.Equal(t, []string{"listener", "receiver"}, order)
}
