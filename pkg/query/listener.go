package query

import "sync/atomic"

// Listener is anything that can be notified when a cache entry changes.
// The UI layer implements this to schedule re-renders; dialog adapters
// implement it to refresh derived state.
type Listener interface {
	// MarkDirty notifies the listener that the entry it subscribed to
	// has transitioned to a new snapshot.
	MarkDirty()

	// ID returns a unique identifier for this listener.
	// Used for deduplication on subscribe.
	ID() uint64
}

// globalIDCounter is the source of unique IDs for listeners created via
// NextListenerID. IDs are monotonically increasing and never reused.
var globalIDCounter uint64

// NextListenerID returns a process-unique listener ID.
func NextListenerID() uint64 {
	return atomic.AddUint64(&globalIDCounter, 1)
}

// FuncListener adapts a plain function to the Listener interface.
type FuncListener struct {
	id uint64
	fn func()
}

// NewFuncListener wraps fn as a Listener with a fresh unique ID.
func NewFuncListener(fn func()) *FuncListener {
	return &FuncListener{id: NextListenerID(), fn: fn}
}

// MarkDirty invokes the wrapped function.
func (l *FuncListener) MarkDirty() {
	if l.fn != nil {
		l.fn()
	}
}

// ID returns the listener's unique identifier.
func (l *FuncListener) ID() uint64 { return l.id }
