package entity

// ResponseEvent is one unit of intercepted network traffic, already delimited
// by the Driver. Type is the transport-level discriminator (an SSE event name,
// or a synthetic marker such as "response.end" for a fully-read body); Payload
// is the decoded body fragment, an arbitrarily nested composite of
// []any / map[string]any with string and nil leaves.
type ResponseEvent struct {
	Type    string
	Payload any
}

// Screenshot is a diagnostic page capture.
type Screenshot struct {
	Data   []byte
	Format string
	Width  int
	Height int
}
