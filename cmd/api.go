package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/dispatch"
	"github.com/sells-group/outreach-cli/internal/engine"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/monitoring"
)

const maxBodyBytes = 1 << 20

// api serves the operator endpoints and the dispatcher event webhook.
type api struct {
	eng     *engine.Engine
	secret  string
	metrics http.Handler // nil disables /metrics
}

// buildRouter mounts every route on a chi router.
func buildRouter(a *api, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if a.metrics != nil {
		r.Handle("/metrics", a.metrics)
	}
	r.Post("/webhooks/events", a.handleEvent)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/campaigns", func(r chi.Router) {
			r.Get("/", a.listCampaigns)
			r.Post("/", a.createCampaign)
			r.Post("/{id}/activate", a.setCampaignStatus(model.CampaignActive))
			r.Post("/{id}/pause", a.setCampaignStatus(model.CampaignPaused))
			r.Post("/{id}/resume", a.setCampaignStatus(model.CampaignActive))
			r.Post("/{id}/complete", a.setCampaignStatus(model.CampaignCompleted))
		})
		r.Route("/leads", func(r chi.Router) {
			r.Post("/", a.createLead)
			r.Get("/priorities", a.priorities)
			r.Get("/{id}", a.getLead)
			r.Post("/{id}/process", a.processLead)
			r.Put("/{id}/qualification", a.overrideQualification)
			r.Delete("/{id}/qualification", a.clearOverride)
			r.Put("/{id}/opportunity", a.setOpportunityStatus)
			r.Post("/{id}/workflow", a.assignWorkflow)
		})
		r.Route("/executions", func(r chi.Router) {
			r.Post("/{id}/pause", a.controlExecution("pause"))
			r.Post("/{id}/resume", a.controlExecution("resume"))
			r.Post("/{id}/cancel", a.controlExecution("cancel"))
		})
		r.Get("/alerts", a.listAlerts)
		r.Post("/alerts/{id}/ack", a.ackAlert)
		r.Get("/analytics", a.analytics)
		r.Get("/templates", a.listTemplates)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case eris.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case eris.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case eris.Is(err, model.ErrAlreadyActive):
		return http.StatusConflict
	case eris.Is(err, model.ErrExternalUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the caller. Invariant violations also raise a
// critical alert.
func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	if eris.Is(err, model.ErrInvariantViolation) && a.eng.Alerter() != nil {
		_, _ = a.eng.Alerter().Raise(r.Context(), &model.Alert{
			Type:           model.AlertInvariantViolation,
			Severity:       model.SeverityCritical,
			Title:          "Invariant violation",
			Message:        err.Error(),
			ActionRequired: true,
			Details:        map[string]any{"path": r.URL.Path},
		})
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v); err != nil {
		return model.Validationf("invalid request body: %v", err)
	}
	return nil
}

func (a *api) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		a.writeError(w, r, model.Validationf("read body: %v", err))
		return
	}
	ev, err := dispatch.ParseEvent(a.secret, r.Header.Get(dispatch.SignatureHeader), body, a.eng.Orchestrator().Now())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.eng.HandleEvent(r.Context(), ev); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "lead_id": ev.LeadID})
}

func (a *api) listCampaigns(w http.ResponseWriter, r *http.Request) {
	cs, err := a.eng.Store().ListCampaigns(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (a *api) createCampaign(w http.ResponseWriter, r *http.Request) {
	var c model.Campaign
	if err := decode(r, &c); err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.eng.CreateCampaign(r.Context(), &c)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (a *api) setCampaignStatus(status model.CampaignStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := a.eng.SetCampaignStatus(r.Context(), chi.URLParam(r, "id"), status)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

type createLeadRequest struct {
	model.Identity
	Source     model.LeadSource `json:"source"`
	CampaignID string           `json:"campaign_id"`
}

func (a *api) createLead(w http.ResponseWriter, r *http.Request) {
	var req createLeadRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	l, err := a.eng.CreateLead(r.Context(), req.Identity, req.Source, req.CampaignID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (a *api) getLead(w http.ResponseWriter, r *http.Request) {
	l, err := a.eng.Store().GetLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (a *api) processLead(w http.ResponseWriter, r *http.Request) {
	res, err := a.eng.Process(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) overrideQualification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tier model.Tier `json:"tier"`
	}
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	l, err := a.eng.Override(r.Context(), chi.URLParam(r, "id"), req.Tier)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (a *api) clearOverride(w http.ResponseWriter, r *http.Request) {
	l, err := a.eng.ClearOverride(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// setOpportunityStatus records a proposal outcome. accepted converts the
// lead and declined closes it.
func (a *api) setOpportunityStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.OpportunityStatus `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	l, err := a.eng.SetOpportunityStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// assignWorkflow starts template_id when given, otherwise the template
// matching the lead's tier.
func (a *api) assignWorkflow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TemplateID string `json:"template_id"`
	}
	if r.ContentLength != 0 {
		if err := decode(r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}
	}
	id := chi.URLParam(r, "id")
	var (
		ex  *model.Execution
		err error
	)
	if req.TemplateID != "" {
		ex, err = a.eng.AssignTemplate(r.Context(), id, req.TemplateID)
	} else {
		ex, err = a.eng.AssignWorkflow(r.Context(), id)
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ex)
}

func (a *api) priorities(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	leads, err := a.eng.Store().ListLeads(r.Context(), model.LeadFilter{CampaignID: r.URL.Query().Get("campaign_id")})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	ranked := monitoring.Rank(leads, a.eng.Orchestrator().Now())
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	writeJSON(w, http.StatusOK, ranked)
}

func (a *api) controlExecution(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		o := a.eng.Orchestrator()
		id := chi.URLParam(r, "id")
		var (
			ex  *model.Execution
			err error
		)
		switch op {
		case "pause":
			ex, err = o.Pause(r.Context(), id)
		case "resume":
			ex, err = o.Resume(r.Context(), id)
		default:
			ex, err = o.Cancel(r.Context(), id)
		}
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ex)
	}
}

func (a *api) listAlerts(w http.ResponseWriter, r *http.Request) {
	if a.eng.Alerter() == nil {
		writeJSON(w, http.StatusOK, []*model.Alert{})
		return
	}
	q := r.URL.Query()
	alerts, err := a.eng.Alerter().Active(r.Context(), model.AlertFilter{
		CampaignID: q.Get("campaign_id"),
		LeadID:     q.Get("lead_id"),
		Type:       model.AlertType(q.Get("type")),
		Limit:      queryInt(r, "limit", 0),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (a *api) ackAlert(w http.ResponseWriter, r *http.Request) {
	if a.eng.Alerter() == nil {
		a.writeError(w, r, model.NotFoundf("alert %s", chi.URLParam(r, "id")))
		return
	}
	if err := a.eng.Alerter().Acknowledge(r.Context(), chi.URLParam(r, "id")); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) analytics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := a.eng.Orchestrator().Analytics(r.Context(), model.ExecutionFilter{
		CampaignID: q.Get("campaign_id"),
		TemplateID: q.Get("template_id"),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) listTemplates(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.eng.Orchestrator().Catalog().List())
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
