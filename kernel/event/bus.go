package event

import (
	"sync"

	"github.com/dmorton63/qaiosplus-sub000/kernel/klog"
	"github.com/dmorton63/qaiosplus-sub000/kernel/status"
)

// ListenerID names a registered listener or receiver. Zero is never valid.
type ListenerID uint32

const InvalidListenerID ListenerID = 0

// receiverBit marks a ListenerID as addressing the receiver table rather
// than the function-listener table, mirroring the original's use of the
// top bit of the id space as a tag.
const receiverBit ListenerID = 1 << 31

// Handler is called with a candidate event; returning true consumes the
// event and stops it from reaching any further listener or receiver.
type Handler func(e Event, userData any) bool

// Listener is a function-based subscriber: it matches on event type (or
// None to match any type), a category mask, and a minimum priority.
type Listener struct {
	id           ListenerID
	eventType    Type
	categoryMask Category
	minPriority  Priority
	handler      Handler
	userData     any
	enabled      bool
}

func (l *Listener) ID() ListenerID { return l.id }

func (l *Listener) SetEnabled(enabled bool) { l.enabled = enabled }

// Receiver is an object-based subscriber, matched only by category mask.
type Receiver interface {
	OnEvent(e Event) bool
	Enabled() bool
	EventMask() Category
}

const maxListeners = 64

// Bus is the cooperative, single-threaded event dispatcher. It is not
// designed for concurrent post/processEvents calls from multiple
// goroutines; the mutex only protects the registry and queues from
// concurrent access, not dispatch ordering.
type Bus struct {
	mu sync.Mutex

	mainQueue      *queue
	immediateQueue *queue

	listeners [maxListeners]Listener
	receivers [maxListeners]Receiver

	nextID ListenerID

	dispatching bool

	totalDispatched uint64
	totalDropped    uint64
	clock           uint64
}

// New creates a bus with the given main-queue and immediate-queue capacity.
func New(mainCapacity, immediateCapacity int) *Bus {
	b := &Bus{
		mainQueue:      newQueue(mainCapacity),
		immediateQueue: newQueue(immediateCapacity),
		nextID:         1,
	}

	for i := range b.listeners {
		b.listeners[i].id = InvalidListenerID
		b.listeners[i].categoryMask = All
		b.listeners[i].enabled = true
	}

	return b
}

func (b *Bus) timestamp() uint64 {
	b.clock++
	return b.clock
}

// Post enqueues e, stamping its Timestamp. Immediate-priority events go to
// the bypass queue; everything else goes to the main queue. Returns Busy if
// the target queue is full, incrementing the drop counter.
func (b *Bus) Post(e Event) status.Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	e.Timestamp = b.timestamp()

	q := b.mainQueue
	if e.Priority == Immediate {
		q = b.immediateQueue
	}

	if !q.push(e) {
		b.totalDropped++
		klog.Debugf("event: dropped, queue full (type=%d)", e.Type)
		return status.Busy
	}

	return status.Success
}

// ProcessEvents drains the Immediate queue in full, then up to max items
// (0 meaning unbounded) from the main queue, dispatching each to listeners
// and receivers in turn. A reentrancy guard makes a nested call (from
// within a handler) a no-op that returns zero, rather than corrupting
// dispatch state.
func (b *Bus) ProcessEvents(max int) int {
	b.mu.Lock()
	if b.dispatching {
		b.mu.Unlock()
		return 0
	}
	b.dispatching = true
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		b.dispatching = false
		b.mu.Unlock()
	}()

	processed := 0

	for {
		b.mu.Lock()
		e, ok := b.immediateQueue.pop()
		b.mu.Unlock()
		if !ok {
			break
		}

		b.dispatch(e)
		processed++
	}

	for {
		if max > 0 && processed >= max {
			break
		}

		b.mu.Lock()
		e, ok := b.mainQueue.pop()
		b.mu.Unlock()
		if !ok {
			break
		}

		b.dispatch(e)
		processed++
	}

	return processed
}

func (b *Bus) dispatch(e Event) {
	b.mu.Lock()
	b.totalDispatched++
	listeners := b.listeners
	receivers := b.receivers
	b.mu.Unlock()

	for i := range listeners {
		l := &listeners[i]

		if l.id == InvalidListenerID || !l.enabled {
			continue
		}

		if l.eventType != None && l.eventType != e.Type {
			continue
		}

		if !hasCategory(e.Category, l.categoryMask) {
			continue
		}

		if e.Priority < l.minPriority {
			continue
		}

		if l.handler != nil && l.handler(e, l.userData) {
			return
		}
	}

	for _, r := range receivers {
		if r == nil || !r.Enabled() {
			continue
		}

		if !hasCategory(e.Category, r.EventMask()) {
			continue
		}

		if r.OnEvent(e) {
			return
		}
	}
}

// AddListener registers a function handler. categoryMask of zero is
// rejected as InvalidParam; pass All to match every category. eventType
// may be None to match any type.
func (b *Bus) AddListener(eventType Type, categoryMask Category, minPriority Priority, handler Handler, userData any) (ListenerID, status.Status) {
	if handler == nil {
		return InvalidListenerID, status.InvalidParam
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.listeners {
		if b.listeners[i].id == InvalidListenerID {
			id := b.nextID
			b.nextID++

			b.listeners[i] = Listener{
				id:           id,
				eventType:    eventType,
				categoryMask: categoryMask,
				minPriority:  minPriority,
				handler:      handler,
				userData:     userData,
				enabled:      true,
			}

			return id, status.Success
		}
	}

	return InvalidListenerID, status.OutOfMemory
}

// AddReceiver registers an object-based subscriber, returning a pseudo-id
// tagged with receiverBit so RemoveListener can route a removal to the
// right table.
func (b *Bus) AddReceiver(r Receiver) (ListenerID, status.Status) {
	if r == nil {
		return InvalidListenerID, status.InvalidParam
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.receivers {
		if b.receivers[i] == nil {
			b.receivers[i] = r
			return receiverBit | ListenerID(i), status.Success
		}
	}

	return InvalidListenerID, status.OutOfMemory
}

// RemoveListener frees the slot held by id, whether it names a function
// listener or a receiver.
func (b *Bus) RemoveListener(id ListenerID) status.Status {
	if id == InvalidListenerID {
		return status.InvalidParam
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if id&receiverBit != 0 {
		idx := int(id &^ receiverBit)
		if idx < 0 || idx >= maxListeners || b.receivers[idx] == nil {
			return status.NotFound
		}

		b.receivers[idx] = nil
		return status.Success
	}

	for i := range b.listeners {
		if b.listeners[i].id == id {
			b.listeners[i] = Listener{id: InvalidListenerID, categoryMask: All, enabled: true}
			return status.Success
		}
	}

	return status.NotFound
}

// SetListenerEnabled toggles delivery to a function listener without
// removing its slot.
func (b *Bus) SetListenerEnabled(id ListenerID, enabled bool) status.Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.listeners {
		if b.listeners[i].id == id {
			b.listeners[i].enabled = enabled
			return status.Success
		}
	}

	return status.NotFound
}

// HasPendingEvents reports whether either queue holds unprocessed events.
func (b *Bus) HasPendingEvents() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return !b.mainQueue.isEmpty() || !b.immediateQueue.isEmpty()
}

// Clear drops every queued event without dispatching it.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.mainQueue.clear()
	b.immediateQueue.clear()
}

// Stats returns the running dispatch and drop counters.
func (b *Bus) Stats() (dispatched, dropped uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.totalDispatched, b.totalDropped
}
