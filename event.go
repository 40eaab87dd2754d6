package sieve

// EventKind tells what happened to the buffer.
type EventKind int

const (
	// Inserted is emitted by Put after an item was appended.
	Inserted EventKind = iota + 1
	// Removed is emitted by TakeMatching after an item was claimed.
	Removed
	// Snapshotted is emitted by the observer on every tick.
	Snapshotted
	// Stalled is emitted by the observer when the buffer is full and no resident item matches
	// any running consumer. Nothing is done about it.
	Stalled
)

func (k EventKind) String() string {
	switch k {
	case Inserted:
		return "inserted"
	case Removed:
		return "removed"
	case Snapshotted:
		return "snapshot"
	case Stalled:
		return "stalled"
	default:
		return "unknown"
	}
}

// Event describes a single observable change or reading of the buffer.
type Event[Item any] struct {
	// Kind of the event.
	Kind EventKind
	// Value is the inserted or removed item. Zero for snapshots.
	Value Item
	// Index is the slot the value was inserted at or removed from, -1 for snapshots.
	Index int
	// Consumer is the name of the consumer that removed the value.
	Consumer string
	// Contents are the resident items after the change, in insertion order.
	Contents []Item
	// Occupancy is the resulting number of resident items.
	Occupancy int
	// Capacity of the buffer.
	Capacity int
}

// Sink receives buffer events.
//
// Observe is called while the buffer is locked, so events arrive in the exact order the
// mutations happened. Implementations must return quickly and must never block; see the sink
// package for an asynchronous wrapper around slow renderers.
type Sink[Item any] interface {
	Observe(event Event[Item])
}

// SinkFunc adapts a function to the [Sink] interface.
type SinkFunc[Item any] func(event Event[Item])

func (f SinkFunc[Item]) Observe(event Event[Item]) {
	f(event)
}
