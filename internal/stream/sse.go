package stream

import (
	"encoding/json"
	"fmt"
)

// FormatMessage frames one server-sent event. The exact byte layout
// "event: <name>\ndata: <payload>\n\n" is part of the external contract;
// strings and pre-encoded payloads pass through verbatim, everything else
// is JSON-encoded.
func FormatMessage(event string, data any) []byte {
	var payload string
	switch v := data.(type) {
	case string:
		payload = v
	case json.RawMessage:
		payload = string(v)
	case []byte:
		payload = string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			b = []byte(`{"error":"event encoding failed"}`)
		}
		payload = string(b)
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event, payload)
}
