package llama

import "fmt"

// streamProtocolError is raised when the server embeds an error object inside
// an otherwise healthy stream. It terminates the fragment sequence.
type streamProtocolError struct{ msg string }

func (e streamProtocolError) Error() string { return "stream protocol error: " + e.msg }

// ErrStreamProtocol constructs a streamProtocolError.
func ErrStreamProtocol(msg string) error { return streamProtocolError{msg: msg} }

// IsStreamProtocol reports whether err carries a server-embedded stream error.
func IsStreamProtocol(err error) bool {
	_, ok := err.(streamProtocolError)
	return ok
}

// httpStatusError carries a non-2xx completion response with its body text so
// callers see the server's own explanation.
type httpStatusError struct {
	status int
	body   string
}

func (e httpStatusError) Error() string {
	return fmt.Sprintf("inference server http %d: %s", e.status, e.body)
}

// IsHTTPStatus reports whether err is a non-2xx completion response, and if
// so returns the status code.
func IsHTTPStatus(err error) (int, bool) {
	if e, ok := err.(httpStatusError); ok {
		return e.status, true
	}
	return 0, false
}
