package model

import "time"

// ExecutionStatus is the lifecycle state of a workflow execution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionActive    ExecutionStatus = "active"
	ExecutionPaused    ExecutionStatus = "paused"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// LiveStatuses are the statuses that occupy a lead's single execution slot.
var LiveStatuses = []ExecutionStatus{ExecutionPending, ExecutionActive, ExecutionPaused}

// Live reports whether the execution still occupies the lead's slot.
func (s ExecutionStatus) Live() bool {
	return s == ExecutionPending || s == ExecutionActive || s == ExecutionPaused
}

// Execution outcomes recorded on completion.
const (
	OutcomeCompleted    = "completed"
	OutcomeEscalated    = "escalated_to_qualified"
	OutcomeConditionEnd = "condition_not_met"
	OutcomeNegative     = "negative_response"
	OutcomeUnsubscribed = "unsubscribed"
	OutcomeCancelled    = "cancelled"
	OutcomeStageClosed  = "pipeline_closed"
)

// Triggers that start executions.
const (
	TriggerManual               = "manual"
	TriggerCampaign             = "campaign"
	TriggerQualificationUpdated = "qualification_updated"
	TriggerResponseReceived     = "response_received"
)

// StepFailure is one failed attempt at a step.
type StepFailure struct {
	StepID string    `json:"step_id"`
	Error  string    `json:"error"`
	At     time.Time `json:"at"`
}

// InterestLevel is the inferred interest carried by a response.
type InterestLevel string

const (
	InterestHigh    InterestLevel = "high"
	InterestMedium  InterestLevel = "medium"
	InterestLow     InterestLevel = "low"
	InterestUnknown InterestLevel = "unknown"
)

// ResponseAction is what the orchestrator does with an analyzed response.
type ResponseAction string

const (
	ResponseEscalate ResponseAction = "escalate"
	ResponseComplete ResponseAction = "complete"
	ResponseContinue ResponseAction = "continue"
	ResponsePause    ResponseAction = "pause"
	ResponseStop     ResponseAction = "stop"
)

// ResponseAnalysis is the classification of an inbound reply.
type ResponseAnalysis struct {
	Sentiment   Sentiment      `json:"sentiment"`
	Interest    InterestLevel  `json:"interest"`
	Question    bool           `json:"question"`
	Unsubscribe bool           `json:"unsubscribe"`
	Conflicting bool           `json:"conflicting"`
	Keywords    []string       `json:"keywords,omitempty"`
	Action      ResponseAction `json:"action"`
	AnalyzedBy  string         `json:"analyzed_by,omitempty"`
}

// ExecutionContext is the mutable scratch state of an execution.
type ExecutionContext struct {
	Variants            map[string]string `json:"variants,omitempty"` // step id -> variant name
	Waiting             bool              `json:"waiting,omitempty"`
	ConsecutiveFailures int               `json:"consecutive_failures"`
	Failures            []StepFailure     `json:"failures,omitempty"`
	StepsCompleted      []string          `json:"steps_completed,omitempty"`
	LastResponse        *ResponseAnalysis `json:"last_response,omitempty"`
	Messages            []string          `json:"messages,omitempty"` // dispatcher message ids
}

// Execution is one run of a template against one lead.
type Execution struct {
	ID           string           `json:"id"`
	LeadID       string           `json:"lead_id"`
	CampaignID   string           `json:"campaign_id,omitempty"`
	TemplateID   string           `json:"template_id"`
	WorkflowType WorkflowType     `json:"workflow_type"`
	Trigger      string           `json:"trigger"`
	Status       ExecutionStatus  `json:"status"`
	StepIndex    int              `json:"step_index"`
	NextActionAt time.Time        `json:"next_action_at"`
	Context      ExecutionContext `json:"context"`
	Outcome      string           `json:"outcome,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	FinishedAt   *time.Time       `json:"finished_at,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Finish moves the execution to a terminal status.
func (e *Execution) Finish(status ExecutionStatus, outcome string, at time.Time) {
	e.Status = status
	e.Outcome = outcome
	e.FinishedAt = &at
	e.UpdatedAt = at
	e.Context.Waiting = false
}

// Clone returns a deep copy of the execution.
func (e *Execution) Clone() *Execution {
	if e == nil {
		return nil
	}
	c := *e
	if e.Context.Variants != nil {
		c.Context.Variants = make(map[string]string, len(e.Context.Variants))
		for k, v := range e.Context.Variants {
			c.Context.Variants[k] = v
		}
	}
	c.Context.Failures = append([]StepFailure(nil), e.Context.Failures...)
	c.Context.StepsCompleted = append([]string(nil), e.Context.StepsCompleted...)
	c.Context.Messages = append([]string(nil), e.Context.Messages...)
	if e.Context.LastResponse != nil {
		r := *e.Context.LastResponse
		r.Keywords = append([]string(nil), e.Context.LastResponse.Keywords...)
		c.Context.LastResponse = &r
	}
	if e.FinishedAt != nil {
		t := *e.FinishedAt
		c.FinishedAt = &t
	}
	return &c
}
