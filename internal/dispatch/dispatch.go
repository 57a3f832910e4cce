// Package dispatch delivers rendered outreach to the sending provider and
// decodes the provider's inbound events.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sells-group/outreach-cli/internal/model"
)

// Kind distinguishes connection requests from messages.
type Kind string

const (
	KindConnection Kind = "connection"
	KindMessage    Kind = "message"
)

// Message is one outbound touch.
type Message struct {
	LeadID      string `json:"lead_id"`
	ExecutionID string `json:"execution_id"`
	CampaignID  string `json:"campaign_id,omitempty"`
	StepID      string `json:"step_id"`
	Variant     string `json:"variant,omitempty"`
	Channel     string `json:"channel"`
	Kind        Kind   `json:"kind"`
	To          string `json:"to"`
	Content     string `json:"content"`
}

// Dispatcher sends one message and returns the provider message id.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Recorder is an in-process Dispatcher that records what would have been
// sent. It backs dry runs and tests.
type Recorder struct {
	mu   sync.Mutex
	sent []Message
	fail error
	seq  int
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Send implements Dispatcher.
func (r *Recorder) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return "", r.fail
	}
	if msg.To == "" {
		return "", model.Validationf("dispatch: lead %s has no %s address", msg.LeadID, msg.Channel)
	}
	r.seq++
	r.sent = append(r.sent, msg)
	return fmt.Sprintf("dry-%d-%d", time.Now().UnixNano(), r.seq), nil
}

// FailWith makes every later Send return err. Pass nil to recover.
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}
