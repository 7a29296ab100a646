package netcore

// EventKind names one of the three events a Driver can announce for a
// descriptor, plus a synthetic "notifications" kind for completion signals
// that are not readable/writable/error. No backend in this module announces
// EventNotifications.
type EventKind int

const (
	EventReadable EventKind = iota
	EventWritable
	EventError
	EventNotifications
)

func (k EventKind) String() string {
	switch k {
	case EventReadable:
		return "readable"
	case EventWritable:
		return "writable"
	case EventError:
		return "error"
	case EventNotifications:
		return "notifications"
	default:
		return "unknown"
	}
}

// Interest is a bitmask over the four EventKinds a RegistryEntry may be
// subscribed to.
type Interest uint8

const (
	InterestReadable Interest = 1 << iota
	InterestWritable
	InterestError
	InterestNotifications
)

// Has reports whether bit is set in the interest mask.
func (i Interest) Has(bit Interest) bool { return i&bit != 0 }

// Set returns the interest mask with bit added.
func (i Interest) Set(bit Interest) Interest { return i | bit }

// Clear returns the interest mask with bit removed.
func (i Interest) Clear(bit Interest) Interest { return i &^ bit }

// Trigger selects level- vs edge-triggered delivery for one event kind.
type Trigger int

const (
	TriggerLevel Trigger = iota
	TriggerEdge
)

// EventOptions carries the two orthogonal policy bits every Show*/Hide* call
// accepts: trigger mode and one-shot auto-disarm.
type EventOptions struct {
	Trigger Trigger
	OneShot bool
}

// Event is a single announced occurrence: which descriptor, which kind, and
// which policy produced it (needed so the Registry can decide whether to
// clear the interest bit atomically with invocation).
type Event struct {
	Descriptor Descriptor
	Kind       EventKind
	Options    EventOptions
}
