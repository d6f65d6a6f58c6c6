package rod

import (
	"encoding/json"
	"strings"

	"media-agent/internal/domain/entity"
)

// EventEnd is the synthetic event appended once a captured response body has
// been fully read and delimited. Profiles list it as a terminal type for
// sites that answer with one complete body instead of an explicit
// completion event.
const EventEnd = "response.end"

// EventResponse is the type of a complete (non-streaming) JSON body.
const EventResponse = "response"

// defaultSSEType is the SSE event name when the block carries none.
const defaultSSEType = "message"

// delimitBody turns one captured response body into discrete events. SSE
// bodies are split per framed event; anything else that parses as JSON
// becomes a single content event. A trailing EventEnd always marks the body
// as fully read.
func delimitBody(mimeType, body string) []entity.ResponseEvent {
	var events []entity.ResponseEvent
	switch {
	case strings.Contains(mimeType, "text/event-stream"):
		events = parseSSE(body)
	default:
		var payload any
		if err := json.Unmarshal([]byte(body), &payload); err == nil {
			events = []entity.ResponseEvent{{Type: EventResponse, Payload: payload}}
		} else if strings.Contains(body, "data: ") {
			// Some sites stream SSE framing under a text/plain content type.
			events = parseSSE(body)
		} else {
			return nil
		}
	}
	return append(events, entity.ResponseEvent{Type: EventEnd})
}

// parseSSE splits server-sent-event framing into one event per block. Each
// block's "event:" field becomes the type ("message" when absent); its
// "data:" lines are joined and JSON-decoded when possible, kept as a raw
// string otherwise.
func parseSSE(body string) []entity.ResponseEvent {
	var events []entity.ResponseEvent
	for _, block := range strings.Split(body, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		typ := defaultSSEType
		var dataLines []string
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event:"):
				typ = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
			}
		}
		if len(dataLines) == 0 {
			continue
		}
		raw := strings.Join(dataLines, "\n")
		var payload any
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			payload = raw
		}
		events = append(events, entity.ResponseEvent{Type: typ, Payload: payload})
	}
	return events
}
