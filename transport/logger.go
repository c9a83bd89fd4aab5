package transport

// Logger is an optional logging interface the driver uses to report the
// state machine's progress. This allows integration with any logging
// framework; cmd/citadel-updater wires a klog-backed implementation.
//
// Example:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
//
//	driver := transport.NewDriver(bus, transport.WithLogger(&StdLogger{}))
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// nopLogger discards everything. It is the default so Driver never has to
// nil-check before logging.
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger a Driver reports to. Unset, the driver logs
// nothing.
func WithLogger(logger Logger) Option {
	return func(d *Driver) {
		d.log = logger
	}
}
