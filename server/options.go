package server

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"scscp.dev/scscpd"
)

// options holds the resolved configuration of an Acceptor, built by applying
// a slice of Option values over sensible defaults, the way the teacher's
// server package assembles its options struct.
type options struct {
	addr string // TCP address to listen on; defaultAddr if empty.

	acceptGrace time.Duration // how long Shutdown waits for live sessions.

	serviceOpts []scscp.Option

	registerer prometheus.Registerer
}

// defaultAddr is the SCSCP 1.3 convention port, bound to loopback only: the
// Non-goals exclude transport security, so this package never listens on a
// non-loopback address unless the operator explicitly asks it to.
const defaultAddr = "127.0.0.1:26133"

func defaultOptions() options {
	return options{
		addr:        defaultAddr,
		acceptGrace: 5 * time.Second,
	}
}

func getOpts(o ...Option) options {
	res := defaultOptions()
	for _, f := range o {
		f(&res)
	}
	return res
}

// Option configures an Acceptor at construction time.
type Option func(*options)

// Addr sets the TCP address the acceptor listens on. An empty addr keeps
// defaultAddr.
func Addr(addr string) Option {
	return func(o *options) {
		if addr != "" {
			o.addr = addr
		}
	}
}

// AcceptGrace sets how long Shutdown waits for in-flight sessions to finish
// on their own before cancelling them.
func AcceptGrace(d time.Duration) Option {
	return func(o *options) { o.acceptGrace = d }
}

// SessionOptions passes through scscp.Option values applied to every
// accepted Session (service identity, logger, reaper tuning).
func SessionOptions(opt ...scscp.Option) Option {
	return func(o *options) { o.serviceOpts = append(o.serviceOpts, opt...) }
}

// MetricsRegisterer sets the prometheus.Registerer the acceptor's Metrics
// register themselves with. If unset, metrics are created but not
// registered (useful in tests), matching marmos91-dittofs's NewMetrics(nil)
// convention.
func MetricsRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}
