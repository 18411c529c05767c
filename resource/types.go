package resource

// Handle is an opaque reference to a value in a table.
// Handle 0 is reserved and always invalid.
//
// The low bits hold the slot index plus one, the high bits the slot's
// generation, so a handle stays invalid after its slot is reused.
type Handle uint32

const (
	indexBits = 20
	indexMask = 1<<indexBits - 1
	genMask   = 1<<(32-indexBits) - 1

	// MaxEntries is the number of values a table holds at once.
	MaxEntries = indexMask
)

func makeHandle(index int, gen uint32) Handle {
	return Handle(gen&genMask)<<indexBits | Handle(index+1)
}

func (h Handle) index() int { return int(h&indexMask) - 1 }

func (h Handle) gen() uint32 { return uint32(h >> indexBits) }

// EventType names a lifecycle notification.
type EventType uint8

const (
	EventCreated EventType = iota
	EventDropped
)

func (t EventType) String() string {
	switch t {
	case EventCreated:
		return "created"
	case EventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Event represents a lifecycle event.
type Event struct {
	Value  any
	Handle Handle
	Type   EventType
}

// Observer receives notifications about lifecycle events.
type Observer interface {
	OnResourceEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnResourceEvent calls f(e).
func (f ObserverFunc) OnResourceEvent(e Event) { f(e) }

// Dropper is optionally implemented by values that need cleanup when the
// table closes with them still inside.
type Dropper interface {
	Drop()
}
