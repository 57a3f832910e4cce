package model

import "time"

// ActivityKind names a lead-facing event produced by outreach.
type ActivityKind string

const (
	ActivityConnectionSent     ActivityKind = "connection_sent"
	ActivityConnectionAccepted ActivityKind = "connection_accepted"
	ActivityMessageSent        ActivityKind = "message_sent"
	ActivityEmailOpened        ActivityKind = "email_opened"
	ActivityEmailClicked       ActivityKind = "email_clicked"
	ActivityResponseReceived   ActivityKind = "response_received"
	ActivityUnsubscribed       ActivityKind = "unsubscribed"
	ActivityNotInterested      ActivityKind = "not_interested"
	ActivityConverted          ActivityKind = "converted"
)

// Activity is a single outreach event applied to a lead. It is the only way
// workflow and dispatcher callbacks mutate a lead.
type Activity struct {
	Kind      ActivityKind `json:"kind"`
	At        time.Time    `json:"at"`
	Channel   string       `json:"channel,omitempty"`
	Content   string       `json:"content,omitempty"`
	Sentiment Sentiment    `json:"sentiment,omitempty"`
}

// Record applies an activity to the lead's milestones, status, and counters.
// Terminal statuses (unsubscribed, converted) are never downgraded.
func (l *Lead) Record(a Activity) {
	at := a.At
	l.LastActivityAt = &at
	l.UpdatedAt = at

	switch a.Kind {
	case ActivityConnectionSent:
		if l.ConnectionSentAt == nil {
			l.ConnectionSentAt = &at
		}
		l.promote(LeadStatusConnectionSent)
	case ActivityConnectionAccepted:
		if l.ConnectionAcceptedAt == nil {
			l.ConnectionAcceptedAt = &at
		}
		l.promote(LeadStatusConnectionAccepted)
	case ActivityMessageSent:
		if l.FirstMessageAt == nil {
			l.FirstMessageAt = &at
		}
		l.LastMessageAt = &at
		if a.Channel == "email" {
			l.Engagement.Sent++
		}
		l.promote(LeadStatusMessaged)
	case ActivityEmailOpened:
		l.Engagement.Opened++
	case ActivityEmailClicked:
		l.Engagement.Clicked++
	case ActivityResponseReceived:
		if l.FirstResponseAt == nil {
			l.FirstResponseAt = &at
		}
		l.LastResponseAt = &at
		if a.Sentiment != "" {
			l.LastResponseSentiment = a.Sentiment
		}
		if a.Channel == "email" {
			l.Engagement.Replied++
		}
		l.promote(LeadStatusReplied)
	case ActivityUnsubscribed:
		if l.UnsubscribedAt == nil {
			l.UnsubscribedAt = &at
		}
		l.Status = LeadStatusUnsubscribed
		l.SequenceStatus = SequenceStopped
	case ActivityNotInterested:
		if l.Status != LeadStatusUnsubscribed && l.Status != LeadStatusConverted {
			l.Status = LeadStatusNotInterested
		}
	case ActivityConverted:
		if l.Status != LeadStatusUnsubscribed {
			l.Status = LeadStatusConverted
		}
	}
}

var statusRank = map[LeadStatus]int{
	LeadStatusDiscovered:         0,
	LeadStatusConnectionSent:     1,
	LeadStatusConnectionAccepted: 2,
	LeadStatusMessaged:           3,
	LeadStatusReplied:            4,
}

// promote moves the status forward along the contact ladder only.
func (l *Lead) promote(s LeadStatus) {
	cur, ok := statusRank[l.Status]
	if l.Status == "" {
		cur, ok = -1, true
	}
	if !ok {
		return
	}
	if statusRank[s] > cur {
		l.Status = s
	}
}

// Closed reports whether the status ends all outreach.
func (s LeadStatus) Closed() bool {
	return s == LeadStatusUnsubscribed || s == LeadStatusNotInterested || s == LeadStatusConverted
}
