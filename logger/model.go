package logger

// DebugLogger is the logging surface every component in this module takes
// a reference to. It matches the shape the original DHT teacher exposed
// (Debugf/Infof/Errorf), widened with Warnf so callers can distinguish the
// WARNING-level traces the error taxonomy in the spec calls for (policy
// rejections, transient I/O) from plain informational events.
type DebugLogger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
