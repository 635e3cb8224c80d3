package observability

// WSEventsRoutingKey is where websocket lifecycle events land on the topic
// exchange.
const WSEventsRoutingKey = "ws_events.chats"

// EventEnvelope frames an operational event for the event bus. Payload is
// event-specific; consumers dispatch on EventType/EventName.
type EventEnvelope struct {
	EventType string      `json:"event_type"`
	EventName string      `json:"event_name"`
	Payload   interface{} `json:"payload"`
}

// BuildHeaders carries request correlation onto the published message.
// Empty values are left off rather than sent blank.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := make(map[string]string, 2)
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}
