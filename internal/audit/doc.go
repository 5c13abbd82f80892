// Package audit relays security-relevant lifecycle events to pluggable sinks
// off the request path.
//
// The [Dispatcher] owns buffering, ordering and drop accounting. It never
// decides which events exist; the Engine does. Sinks provided here write to a
// channel, JSON lines, a slog.Logger, or fan out to several sinks.
//
// This package must not import sessionguard or sibling internal packages.
package audit
