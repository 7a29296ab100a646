package netcore

// Descriptor is the opaque, process-wide OS handle under which a Socket is
// known to a Driver and a Registry. It is never interpreted by this package
// beyond comparison and use as a map key; Driver backends are the only code
// that passes it to a syscall.
type Descriptor int

// InvalidDescriptor is the sentinel meaning "no descriptor yet". It is -1,
// not the zero value of Descriptor.
const InvalidDescriptor Descriptor = -1

// Semantics identifies what a Transport does: send discrete messages
// (datagram), accept connections (listener), or carry an ordered byte
// stream (stream).
type Semantics int

const (
	SemanticsDatagram Semantics = iota
	SemanticsListener
	SemanticsStream
)

func (s Semantics) String() string {
	switch s {
	case SemanticsDatagram:
		return "datagram"
	case SemanticsListener:
		return "listener"
	case SemanticsStream:
		return "stream"
	default:
		return "unknown"
	}
}

// Family identifies the address family of a Transport.
type Family int

const (
	FamilyIPv4 Family = iota
	FamilyIPv6
	FamilyLocal
)

func (f Family) String() string {
	switch f {
	case FamilyIPv4:
		return "ipv4"
	case FamilyIPv6:
		return "ipv6"
	case FamilyLocal:
		return "local"
	default:
		return "unknown"
	}
}

// Protocol identifies the wire protocol of a Transport (TCP, UDP, or a Unix
// domain socket, which has no separate protocol dimension).
type Protocol int

const (
	ProtocolTCP Protocol = iota
	ProtocolUDP
	ProtocolUnix
)

func (p Protocol) String() string {
	switch p {
	case ProtocolTCP:
		return "tcp"
	case ProtocolUDP:
		return "udp"
	case ProtocolUnix:
		return "unix"
	default:
		return "unknown"
	}
}

// Transport is the tuple selected at open time: address family, wire
// protocol, and socket semantics.
type Transport struct {
	Family    Family
	Protocol  Protocol
	Semantics Semantics
}

// Valid reports whether the combination of fields is one the engine knows
// how to open. It rejects, for example, a listener over UDP.
func (t Transport) Valid() bool {
	switch t.Semantics {
	case SemanticsListener:
		return t.Protocol == ProtocolTCP || t.Protocol == ProtocolUnix
	case SemanticsDatagram:
		return t.Protocol == ProtocolUDP
	case SemanticsStream:
		return t.Protocol == ProtocolTCP || t.Protocol == ProtocolUnix
	default:
		return false
	}
}
