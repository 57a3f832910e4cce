package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

const serviceName = "dispatch"

// Webhook posts messages as JSON to the sending provider's endpoint.
type Webhook struct {
	url     string
	apiKey  string
	http    *http.Client
	limiter *rate.Limiter
	guard   *resilience.Guard
}

type sendResponse struct {
	MessageID string `json:"message_id"`
}

// NewWebhook builds a Webhook dispatcher. Calls are rate limited and run
// through the guard's retry and breaker policy.
func NewWebhook(cfg config.DispatchConfig, guard *resilience.Guard) *Webhook {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	burst := 1
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
		burst = int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
	}
	return &Webhook{
		url:     cfg.WebhookURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(limit, burst),
		guard:   guard,
	}
}

// Send implements Dispatcher.
func (w *Webhook) Send(ctx context.Context, msg Message) (string, error) {
	if msg.To == "" {
		return "", model.Validationf("dispatch: lead %s has no %s address", msg.LeadID, msg.Channel)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return "", eris.Wrap(err, "dispatch: marshal message")
	}

	id, err := resilience.GuardVal(ctx, w.guard, serviceName, "send", func(ctx context.Context) (string, error) {
		if err := w.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "dispatch: rate limiter")
		}
		return w.post(ctx, body)
	})
	if err != nil {
		return "", err
	}

	zap.L().Debug("dispatch: sent",
		zap.String("lead_id", msg.LeadID),
		zap.String("step_id", msg.StepID),
		zap.String("channel", msg.Channel),
		zap.String("message_id", id),
	)
	return id, nil
}

func (w *Webhook) post(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return "", eris.Wrap(err, "dispatch: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+w.apiKey)
	}

	resp, err := w.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "dispatch: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", eris.Wrap(err, "dispatch: read response")
	}

	if resp.StatusCode >= 300 {
		err := eris.Errorf("dispatch: unexpected status %d: %s", resp.StatusCode, string(respBody))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return "", resilience.NewTransientError(err, resp.StatusCode)
		}
		return "", err
	}

	var out sendResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", eris.Wrap(err, "dispatch: unmarshal response")
	}
	if out.MessageID == "" {
		return "", eris.New("dispatch: response missing message_id")
	}
	return out.MessageID, nil
}
