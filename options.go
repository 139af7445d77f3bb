package scscp

import "time"

// options holds the resolved configuration of a Session, built by applying
// a slice of Option values over sensible defaults, the way
// mellium.im/xmpp/server assembles its options struct.
type options struct {
	serviceName    string
	serviceVersion string
	serviceID      string
	log            Logger
	reapInterval   time.Duration
	reapMaxAge     time.Duration
	instrumentation Instrumentation
}

func defaultOptions() options {
	return options{
		serviceName:    "scscpd",
		serviceVersion: "0.0.0",
		serviceID:      "0",
		log:            DiscardLogger(),
		reapInterval:   30 * time.Second,
		reapMaxAge:     10 * time.Minute,
		instrumentation: noopInstrumentation{},
	}
}

// Option configures a Session at construction time.
type Option func(*options)

// ServiceName sets the service_name the session advertises during
// negotiation.
func ServiceName(name string) Option {
	return func(o *options) { o.serviceName = name }
}

// ServiceVersion sets the service_version the session advertises during
// negotiation.
func ServiceVersion(version string) Option {
	return func(o *options) { o.serviceVersion = version }
}

// ServiceID sets the service_id (conventionally a process id or instance
// identifier) the session advertises during negotiation.
func ServiceID(id string) Option {
	return func(o *options) { o.serviceID = id }
}

// WithLogger injects the logging capability used by the session. The
// default is DiscardLogger.
func WithLogger(log Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// ReapInterval sets how often the idle task reaper sweeps the registry for
// orphaned tasks.
func ReapInterval(d time.Duration) Option {
	return func(o *options) { o.reapInterval = d }
}

// ReapMaxAge sets how long a task may run before the reaper treats it as
// orphaned and cancels it.
func ReapMaxAge(d time.Duration) Option {
	return func(o *options) { o.reapMaxAge = d }
}

// WithInstrumentation injects a metrics/tracing sink driven by task and
// frame lifecycle events. The default discards everything.
func WithInstrumentation(i Instrumentation) Option {
	return func(o *options) {
		if i != nil {
			o.instrumentation = i
		}
	}
}
