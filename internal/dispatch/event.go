package dispatch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
)

// SignatureHeader carries the hex HMAC-SHA256 of an inbound event body.
const SignatureHeader = "X-Outreach-Signature"

// EventType names an inbound provider event.
type EventType string

const (
	EventConnectionAccepted EventType = "connection_accepted"
	EventEmailOpened        EventType = "email_opened"
	EventEmailClicked       EventType = "email_clicked"
	EventResponse           EventType = "response"
	EventUnsubscribed       EventType = "unsubscribed"
)

// Event is one inbound callback from the sending provider.
type Event struct {
	Type      EventType       `json:"type"`
	LeadID    string          `json:"lead_id"`
	MessageID string          `json:"message_id,omitempty"`
	Channel   string          `json:"channel,omitempty"`
	Content   string          `json:"content,omitempty"`
	Sentiment model.Sentiment `json:"sentiment,omitempty"`
	At        time.Time       `json:"at"`
}

// Activity converts a non-response event into a lead activity.
func (e Event) Activity() (model.Activity, bool) {
	kinds := map[EventType]model.ActivityKind{
		EventConnectionAccepted: model.ActivityConnectionAccepted,
		EventEmailOpened:        model.ActivityEmailOpened,
		EventEmailClicked:       model.ActivityEmailClicked,
		EventUnsubscribed:       model.ActivityUnsubscribed,
	}
	k, ok := kinds[e.Type]
	if !ok {
		return model.Activity{}, false
	}
	return model.Activity{Kind: k, At: e.At, Channel: e.Channel}, true
}

// Sign returns the hex signature of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseEvent verifies the signature (when a secret is configured) and
// decodes the event. A zero At is filled with now.
func ParseEvent(secret, signature string, body []byte, now time.Time) (Event, error) {
	if secret != "" {
		want := Sign(secret, body)
		if !hmac.Equal([]byte(want), []byte(signature)) {
			return Event{}, model.Validationf("dispatch: bad event signature")
		}
	}
	var e Event
	if err := json.Unmarshal(body, &e); err != nil {
		return Event{}, eris.Wrap(model.ErrValidation, "dispatch: decode event: "+err.Error())
	}
	if e.LeadID == "" {
		return Event{}, model.Validationf("dispatch: event missing lead_id")
	}
	switch e.Type {
	case EventConnectionAccepted, EventEmailOpened, EventEmailClicked, EventResponse, EventUnsubscribed:
	default:
		return Event{}, model.Validationf("dispatch: unknown event type %q", e.Type)
	}
	if e.At.IsZero() {
		e.At = now
	}
	return e, nil
}
