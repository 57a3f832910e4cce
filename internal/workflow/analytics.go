package workflow

import (
	"context"
	"sort"

	"github.com/sells-group/outreach-cli/internal/model"
)

// VariantStats aggregates one A/B variant of one step.
type VariantStats struct {
	TemplateID   string  `json:"template_id"`
	StepID       string  `json:"step_id"`
	Variant      string  `json:"variant"`
	Executions   int     `json:"executions"`
	Responses    int     `json:"responses"`
	Escalations  int     `json:"escalations"`
	ResponseRate float64 `json:"response_rate"`
}

// Analytics summarizes a set of executions.
type Analytics struct {
	Total              int                           `json:"total"`
	ByStatus           map[model.ExecutionStatus]int `json:"by_status"`
	ByType             map[model.WorkflowType]int    `json:"by_type"`
	Outcomes           map[string]int                `json:"outcomes"`
	CompletionRate     float64                       `json:"completion_rate"`
	AvgCompletionHours float64                       `json:"avg_completion_hours"`
	ResponseRate       float64                       `json:"response_rate"`
	EscalationRate     float64                       `json:"escalation_rate"`
	SuccessRate        float64                       `json:"success_rate"`
	Variants           []VariantStats                `json:"variants,omitempty"`
}

// Analytics loads executions matching f and summarizes them.
func (o *Orchestrator) Analytics(ctx context.Context, f model.ExecutionFilter) (Analytics, error) {
	execs, err := o.deps.Registry.ListExecutions(ctx, f)
	if err != nil {
		return Analytics{}, err
	}
	return Summarize(execs), nil
}

// Summarize computes rates over executions. Success counts executions that
// ended escalated or completed after the lead replied.
func Summarize(execs []*model.Execution) Analytics {
	a := Analytics{
		Total:    len(execs),
		ByStatus: map[model.ExecutionStatus]int{},
		ByType:   map[model.WorkflowType]int{},
		Outcomes: map[string]int{},
	}
	if len(execs) == 0 {
		return a
	}

	type key struct{ tmpl, step, variant string }
	variants := map[key]*VariantStats{}

	var completed, finished, responded, escalated, succeeded int
	var hours float64
	for _, e := range execs {
		a.ByStatus[e.Status]++
		a.ByType[e.WorkflowType]++
		if e.Outcome != "" {
			a.Outcomes[e.Outcome]++
		}
		replied := e.Context.LastResponse != nil
		if replied {
			responded++
		}
		if e.Outcome == model.OutcomeEscalated {
			escalated++
		}
		if !e.Status.Live() {
			finished++
			if e.Outcome == model.OutcomeEscalated || (e.Status == model.ExecutionCompleted && replied && e.Outcome != model.OutcomeNegative) {
				succeeded++
			}
		}
		if e.Status == model.ExecutionCompleted {
			completed++
			if e.FinishedAt != nil {
				hours += e.FinishedAt.Sub(e.StartedAt).Hours()
			}
		}
		for step, name := range e.Context.Variants {
			k := key{e.TemplateID, step, name}
			vs, ok := variants[k]
			if !ok {
				vs = &VariantStats{TemplateID: e.TemplateID, StepID: step, Variant: name}
				variants[k] = vs
			}
			vs.Executions++
			if replied {
				vs.Responses++
			}
			if e.Outcome == model.OutcomeEscalated {
				vs.Escalations++
			}
		}
	}

	total := float64(len(execs))
	a.CompletionRate = float64(completed) / total
	a.ResponseRate = float64(responded) / total
	a.EscalationRate = float64(escalated) / total
	if finished > 0 {
		a.SuccessRate = float64(succeeded) / float64(finished)
	}
	if completed > 0 {
		a.AvgCompletionHours = hours / float64(completed)
	}

	for _, vs := range variants {
		vs.ResponseRate = float64(vs.Responses) / float64(vs.Executions)
		a.Variants = append(a.Variants, *vs)
	}
	sort.Slice(a.Variants, func(i, j int) bool {
		x, y := a.Variants[i], a.Variants[j]
		if x.TemplateID != y.TemplateID {
			return x.TemplateID < y.TemplateID
		}
		if x.StepID != y.StepID {
			return x.StepID < y.StepID
		}
		return x.Variant < y.Variant
	})
	return a
}
