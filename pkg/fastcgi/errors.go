package fastcgi

import "fmt"

// ProtocolError is raised by the codec or the request state machine when
// the peer violates the FastCGI protocol. It is fatal: the engine does not
// attempt to recover from it, and the caller is expected to tear down the
// connection.
type ProtocolError struct {
	msg string
}

func newProtocolError(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{msg: fmt.Sprintf(format, args...)}
}

func (e *ProtocolError) Error() string {
	return "FastCGI protocol violation: " + e.msg
}
