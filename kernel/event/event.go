// Package event implements the kernel's cooperative, single-threaded event
// bus: a bounded priority queue that links input devices (keyboard, mouse,
// timer ticks) to higher layers (desktop, console) without blocking the
// caller that posts an event.
package event

// Type identifies the kind of event carried by an Event's payload.
type Type int

const (
	None Type = iota

	KeyDown
	KeyUp

	MouseMove
	MouseDown
	MouseUp
	MouseScroll

	Timer

	WindowMoved
	WindowResized
	WindowClosed

	CustomBase Type = 1000
)

// Category is a bitset so a listener or receiver can subscribe to more than
// one kind of event with a single mask.
type Category uint32

const (
	Input Category = 1 << iota
	System
	Window
	Custom

	All Category = Input | System | Window | Custom
)

// Priority orders delivery within processEvents: Immediate events bypass the
// main queue entirely, the rest are delivered in FIFO order within their own
// priority but otherwise dispatched in post order (priority is used only to
// pick Immediate vs. not, not to reorder the main queue).
type Priority int

const (
	Low Priority = iota
	Normal
	High
	Immediate
)

// Modifiers is a bitset of held modifier keys at the time of a key event.
type Modifiers uint8

const (
	ModShift Modifiers = 1 << iota
	ModCtrl
	ModAlt
	ModMeta
)

// MouseButton identifies which button a mouse event refers to.
type MouseButton uint8

const (
	ButtonLeft MouseButton = iota
	ButtonRight
	ButtonMiddle
)

// KeyData is the payload of KeyDown/KeyUp events.
type KeyData struct {
	Scancode  uint8
	Keycode   uint8
	Character byte
	Modifiers Modifiers
	IsRepeat  bool
}

// MouseData is the payload of Mouse* events. X/Y and DeltaX/DeltaY are both
// populated: absolute position (clamped to screen bounds by the producer)
// plus the relative delta since the previous report. IsAbsolute reports
// whether X/Y came from an absolute-position device (a tablet) rather than
// being accumulated from relative deltas (a PS/2 or boot-mouse device).
type MouseData struct {
	X, Y           int32
	DeltaX, DeltaY int32
	Button         MouseButton
	ScrollDelta    int32
	Modifiers      Modifiers
	IsAbsolute     bool
}

// TimerData is the payload of Timer events.
type TimerData struct {
	TimerID    uint32
	ElapsedMs  uint64
	IntervalMs uint64
}

// WindowData is the payload of Window* events.
type WindowData struct {
	WindowID uint32
	X, Y     int32
	W, H     uint32
}

// CustomData is the payload of events above CustomBase, opaque to the bus.
type CustomData struct {
	Param1   uint64
	Param2   uint64
	UserData any
}

// Event is a tagged union over the payload kinds above, sharing a common
// header of type/category/priority/timestamp.
type Event struct {
	Type      Type
	Category  Category
	Priority  Priority
	Timestamp uint64

	Key    KeyData
	Mouse  MouseData
	Timer  TimerData
	Window WindowData
	Custom CustomData
}

func hasCategory(event, mask Category) bool {
	return event&mask != 0
}
