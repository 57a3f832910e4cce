package model

// Tier is a lead's qualification level.
type Tier string

const (
	TierUnqualified Tier = "unqualified"
	TierDeveloping  Tier = "developing"
	TierPotential   Tier = "potential"
	TierQualified   Tier = "qualified"
	TierHot         Tier = "hot_lead"
)

var tierRank = map[Tier]int{
	TierUnqualified: 1,
	TierDeveloping:  2,
	TierPotential:   3,
	TierQualified:   4,
	TierHot:         5,
}

// Rank orders tiers; an unset tier ranks 0.
func (t Tier) Rank() int { return tierRank[t] }

// AtLeast reports whether t ranks at or above o.
func (t Tier) AtLeast(o Tier) bool { return t.Rank() >= o.Rank() && t.Rank() > 0 }

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool { return tierRank[t] > 0 }

// ParseTier accepts the canonical names plus the "hot" shorthand.
func ParseTier(s string) (Tier, error) {
	if s == "hot" {
		return TierHot, nil
	}
	t := Tier(s)
	if !t.Valid() {
		return "", wrapValidation("model: unknown qualification tier %q", s)
	}
	return t, nil
}

// Stage is a position in the acquisition funnel.
type Stage string

const (
	StageDiscovery     Stage = "discovery"
	StageQualification Stage = "qualification"
	StageOutreach      Stage = "outreach"
	StageEngagement    Stage = "engagement"
	StageNurturing     Stage = "nurturing"
	StageQualified     Stage = "qualified"
	StageOpportunity   Stage = "opportunity"
	StageConverted     Stage = "converted"
	StageClosedLost    Stage = "closed_lost"
)

// Stages lists every stage in funnel order.
var Stages = []Stage{
	StageDiscovery, StageQualification, StageOutreach, StageEngagement,
	StageNurturing, StageQualified, StageOpportunity, StageConverted, StageClosedLost,
}

// Terminal reports whether no further transitions occur from s.
func (s Stage) Terminal() bool {
	return s == StageConverted || s == StageClosedLost
}

// Order returns the funnel position of s, or -1 if unknown.
func (s Stage) Order() int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}

// WorkflowType categorizes outreach templates.
type WorkflowType string

const (
	WorkflowColdOutreach    WorkflowType = "cold_outreach"
	WorkflowWarmFollowUp    WorkflowType = "warm_follow_up"
	WorkflowResponseNurture WorkflowType = "response_nurture"
	WorkflowVIPSequence     WorkflowType = "vip_sequence"
	WorkflowReEngagement    WorkflowType = "re_engagement"
)

// WorkflowForTier picks the default workflow type for a qualification tier.
func WorkflowForTier(t Tier) WorkflowType {
	switch t {
	case TierHot, TierQualified:
		return WorkflowVIPSequence
	case TierPotential:
		return WorkflowWarmFollowUp
	default:
		return WorkflowColdOutreach
	}
}
