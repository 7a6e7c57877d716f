package event

import "testing"

func TestQueuePushPopFIFO(t *testing.T) {
	q := newQueue(3)

	if !q.push(Event{Type: KeyDown}) {
		t.Fatal("push 1 failed")
	}
	if !q.push(Event{Type: KeyUp}) {
		t.Fatal("push 2 failed")
	}

	e, ok := q.pop()
	if !ok || e.Type != KeyDown {
		t.Fatalf("expected KeyDown first, got %+v ok=%v", e, ok)
	}

	e, ok = q.pop()
	if !ok || e.Type != KeyUp {
		t.Fatalf("expected KeyUp second, got %+v ok=%v", e, ok)
	}

	if _, ok := q.pop(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestQueueFullRejectsPush(t *testing.T) {
	q := newQueue(2)

	if !q.push(Event{}) || !q.push(Event{}) {
		t.Fatal("expected first two pushes to succeed")
	}

	if q.push(Event{}) {
		t.Fatal("expected push into full queue to fail")
	}
}

func TestQueueWrapsAroundRingCorrectly(t *testing.T) {
	q := newQueue(3)

	q.push(Event{Type: Type(1)})
	q.push(Event{Type: Type(2)})
	q.pop()
	q.push(Event{Type: Type(3)})
	q.push(Event{Type: Type(4)})

	var got []Type
	for !q.isEmpty() {
		e, _ := q.pop()
		got = append(got, e.Type)
	}

	want := []Type{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestQueueClearType(t *testing.T) {
	q := newQueue(4)

	q.push(Event{Type: KeyDown})
	q.push(Event{Type: MouseMove})
	q.push(Event{Type: KeyDown})

	q.clearType(KeyDown)

	e, ok := q.pop()
	if !ok || e.Type != MouseMove {
		t.Fatalf("expected only MouseMove to survive, got %+v ok=%v", e, ok)
	}

	if _, ok := q.pop(); ok {
		t.Fatal("expected queue drained after clearType")
	}
}
