package netcore

import "time"

// Default watermark values (§6): low = 1, high = implementation maximum.
const (
	DefaultLowWatermark  = 1
	DefaultHighWatermark = 1 << 20 // 1 MiB of buffered bytes, or 1M queued items
)

// Watermarks configures flow-control thresholds for one of a socket's three
// queues (§6).
type Watermarks struct {
	Low  int
	High int
}

// Validate rejects High < Low, per §6 ("High < low is rejected as invalid").
func (w Watermarks) Validate() error {
	if w.High < w.Low {
		return NewError(CodeInvalid, nil)
	}
	return nil
}

// DefaultWatermarks returns the library defaults.
func DefaultWatermarks() Watermarks {
	return Watermarks{Low: DefaultLowWatermark, High: DefaultHighWatermark}
}

// QueueWatermarks bundles the six watermark pairs a socket accepts (§6):
// read, write, accept.
type QueueWatermarks struct {
	Read   Watermarks
	Write  Watermarks
	Accept Watermarks
}

// DefaultQueueWatermarks returns library defaults for all three queues.
func DefaultQueueWatermarks() QueueWatermarks {
	d := DefaultWatermarks()
	return QueueWatermarks{Read: d, Write: d, Accept: d}
}

// LoadBalanceOptions records a socket's requested Driver assignment in an
// Interface's Driver pool (§6). iface.Interface.SelectDriver chooses by the
// Interface's Policy: ThreadHandle and Weight are not consulted, and
// ThreadIndex (with IndexSet) is used only under PolicyFixed, where an unset
// or out-of-range index selects Driver 0.
type LoadBalanceOptions struct {
	ThreadHandle any // opaque handle type owned by iface.Interface
	ThreadIndex  int
	IndexSet     bool
	Weight       int
}

// Config holds the functional-options-configurable settings shared by
// Socket and Interface construction. Zero value is invalid; always build
// through NewConfig. Modeled directly on Atsika-aznet's options.go.
type Config struct {
	QueueWatermarks QueueWatermarks
	LoadBalance     LoadBalanceOptions
	Metrics         Metrics

	// KeepAlive, KeepAlivePeriod, NoDelay, Linger, ReuseAddress and
	// ConnectTimeout are recorded here only: no socket code in this module
	// reads them, so they do not change the descriptors it opens.
	KeepAlive     bool
	KeepAlivePeriod time.Duration
	NoDelay       bool
	Linger        time.Duration // negative disables; zero is an immediate hard close
	ReuseAddress  bool
	Backlog       int

	ConnectTimeout time.Duration
	PollTimeout    time.Duration
}

// Option mutates a Config during construction.
type Option func(*Config)

// NewConfig builds a Config with library defaults, then applies opts.
func NewConfig(opts ...Option) *Config {
	cfg := &Config{
		QueueWatermarks: DefaultQueueWatermarks(),
		Metrics:         NewDefaultMetrics(),
		NoDelay:         true,
		Linger:          -1,
		Backlog:         128,
		ConnectTimeout:  30 * time.Second,
		PollTimeout:     250 * time.Millisecond,
	}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// Validate rejects an internally inconsistent Config.
func (c *Config) Validate() error {
	if err := c.QueueWatermarks.Read.Validate(); err != nil {
		return err
	}
	if err := c.QueueWatermarks.Write.Validate(); err != nil {
		return err
	}
	if err := c.QueueWatermarks.Accept.Validate(); err != nil {
		return err
	}
	if c.Backlog < 0 {
		return NewError(CodeInvalid, nil)
	}
	return nil
}

// WithReadWatermarks sets the read queue's low/high watermark.
func WithReadWatermarks(w Watermarks) Option {
	return func(c *Config) { c.QueueWatermarks.Read = w }
}

// WithWriteWatermarks sets the write queue's low/high watermark.
func WithWriteWatermarks(w Watermarks) Option {
	return func(c *Config) { c.QueueWatermarks.Write = w }
}

// WithAcceptWatermarks sets the accept queue's low/high watermark.
func WithAcceptWatermarks(w Watermarks) Option {
	return func(c *Config) { c.QueueWatermarks.Accept = w }
}

// WithLoadBalance pins or weights this socket's Driver assignment.
func WithLoadBalance(lb LoadBalanceOptions) Option {
	return func(c *Config) { c.LoadBalance = lb }
}

// WithMetrics overrides the default Metrics sink (an atomic-counter
// DefaultMetrics).
func WithMetrics(m Metrics) Option {
	return func(c *Config) {
		if m != nil {
			c.Metrics = m
		}
	}
}

// WithKeepAlive sets Config.KeepAlive with the given probe period. Sockets
// do not apply it.
func WithKeepAlive(period time.Duration) Option {
	return func(c *Config) {
		c.KeepAlive = true
		c.KeepAlivePeriod = period
	}
}

// WithNoDelay sets Config.NoDelay, which is true (Nagle's algorithm off) by
// default. Sockets do not apply it.
func WithNoDelay(enabled bool) Option {
	return func(c *Config) { c.NoDelay = enabled }
}

// WithLinger sets Config.Linger; negative (the default) means no SO_LINGER.
// Sockets do not apply it.
func WithLinger(d time.Duration) Option {
	return func(c *Config) { c.Linger = d }
}

// WithReuseAddress sets Config.ReuseAddress. Sockets do not apply it.
func WithReuseAddress(enabled bool) Option {
	return func(c *Config) { c.ReuseAddress = enabled }
}

// WithBacklog sets the listen backlog.
func WithBacklog(n int) Option {
	return func(c *Config) {
		if n >= 0 {
			c.Backlog = n
		}
	}
}

// WithConnectTimeout sets Config.ConnectTimeout. StreamSocket.Connect does
// not read it; a connect is bounded only by the deadline passed to Connect.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ConnectTimeout = d
		}
	}
}

// WithPollTimeout sets the timeout each Interface worker passes to
// Driver.Poll, capping worst-case shutdown latency. Chronology deadlines do
// not shorten it.
func WithPollTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PollTimeout = d
		}
	}
}
