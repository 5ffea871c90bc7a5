package websocket

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSubscribe Action = "subscribe"
	ActionPing      Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// SubscribeRequest narrows the stream to one tenant scope. Without it the
// client receives every catalog event.
type SubscribeRequest struct {
	Action Action `json:"action"`
	Scope  string `json:"scope"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError      Event = "error"
	EventSubscribed Event = "subscribed"
	EventChange     Event = "change"
	EventPong       Event = "pong"
)

// ChangeNotification relays one catalog mutation to the client.
type ChangeNotification struct {
	Event        Event  `json:"event"`
	Type         string `json:"type"`
	AssessmentID string `json:"assessmentId"`
	Scope        string `json:"scope"`
	At           string `json:"at"`
}

type SubscribedResponse struct {
	Event Event  `json:"event"`
	Scope string `json:"scope"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
