package netcore

import "context"

// Resolver is consumed by bind/connect when a name is supplied in place of
// an endpoint. The DNS-resolver subsystem that implements it is explicitly
// out of scope for this module (§1); netcore only depends on the shape.
type Resolver interface {
	Resolve(ctx context.Context, name string, opts ResolveOptions, callback func([]Endpoint, error))
}

// ResolveOptions configures a Resolve call (address family preference,
// whether to stop at the first result, and so on). Left opaque to the core;
// the resolver subsystem owns the concrete fields.
type ResolveOptions struct {
	PreferFamily Family
	FirstOnly    bool
}

// Encryption is the opaque session object the TLS/handshake record-layer
// engine (out of scope, §1) plugs in as. The core treats an Encryption
// implementation purely as a byte pump between the raw socket and the
// user-visible Queues: it pushes ciphertext in, pops plaintext out (and the
// mirror for the outgoing direction), and otherwise never inspects what the
// implementation does. See the design note in §9: do not infer
// cryptographic behavior from any reference adapter built against this
// interface.
type Encryption interface {
	// PushIncomingCipherText feeds bytes read off the wire into the session.
	PushIncomingCipherText(data []byte) error
	// PopIncomingPlainText drains decrypted application bytes produced by a
	// prior PushIncomingCipherText call, up to len(buf).
	PopIncomingPlainText(buf []byte) (n int, err error)
	// PushOutgoingPlainText feeds application bytes into the session for
	// encryption.
	PushOutgoingPlainText(data []byte) error
	// PopOutgoingCipherText drains ciphertext produced by a prior
	// PushOutgoingPlainText call, up to len(buf).
	PopOutgoingCipherText(buf []byte) (n int, err error)
	// InitiateHandshake starts (or advances, if called again after more
	// ciphertext has been pushed) the handshake. Returns true once complete.
	InitiateHandshake() (complete bool, err error)
	// Shutdown tears down the session, discarding any buffered state.
	Shutdown() error
}

// Compression is an optional transform applied by user code above the core.
// The core is agnostic to it; it exists here only so callers can share one
// vocabulary for "thing that turns bytes into other bytes".
type Compression interface {
	Compress(dst, src []byte) ([]byte, error)
	Decompress(dst, src []byte) ([]byte, error)
}

// Serialization is an optional transform applied by user code above the
// core, symmetric to Compression.
type Serialization interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Monitor is the metrics/monitoring sink the core emits counters and gauges
// to. See Metrics in metrics.go for the counters netcore emits against this
// interface and the hooks that emit them.
type Monitor interface {
	Metrics
}
