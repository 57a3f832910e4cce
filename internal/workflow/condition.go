package workflow

import (
	"fmt"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/pipeline"
)

// Attribute names a typed lead attribute a condition can inspect.
type Attribute string

const (
	AttrStatus             Attribute = "status"
	AttrQualification      Attribute = "qualification"
	AttrStage              Attribute = "stage"
	AttrSource             Attribute = "source"
	AttrResponseReceived   Attribute = "response_received"
	AttrConnectionAccepted Attribute = "connection_accepted"
	AttrScore              Attribute = "score"
	AttrEngagementScore    Attribute = "engagement_score"
)

type attrKind int

const (
	kindString attrKind = iota + 1
	kindBool
	kindNumber
)

var attributes = map[Attribute]attrKind{
	AttrStatus:             kindString,
	AttrQualification:      kindString,
	AttrStage:              kindString,
	AttrSource:             kindString,
	AttrResponseReceived:   kindBool,
	AttrConnectionAccepted: kindBool,
	AttrScore:              kindNumber,
	AttrEngagementScore:    kindNumber,
}

func stringAttr(l *model.Lead, a Attribute) string {
	switch a {
	case AttrStatus:
		return string(l.Status)
	case AttrQualification:
		return string(l.Qualification)
	case AttrStage:
		return string(pipeline.Derive(l))
	case AttrSource:
		return string(l.Source)
	}
	return ""
}

func boolAttr(l *model.Lead, a Attribute) bool {
	switch a {
	case AttrResponseReceived:
		return l.HasResponded()
	case AttrConnectionAccepted:
		return l.Connected()
	}
	return false
}

func numberAttr(l *model.Lead, a Attribute) float64 {
	switch a {
	case AttrScore:
		return l.EffectiveScore()
	case AttrEngagementScore:
		return l.EngagementScore
	}
	return 0
}

// Comparison tests one attribute against a literal.
type Comparison struct {
	Attr  Attribute `yaml:"attr" json:"attr"`
	Value any       `yaml:"value" json:"value"`
}

// Membership tests a string attribute against a set.
type Membership struct {
	Attr   Attribute `yaml:"attr" json:"attr"`
	Values []string  `yaml:"values" json:"values"`
}

// Predicate is a tagged node of the condition tree. Exactly one field is set.
type Predicate struct {
	Eq  *Comparison `yaml:"eq,omitempty" json:"eq,omitempty"`
	In  *Membership `yaml:"in,omitempty" json:"in,omitempty"`
	Gt  *Comparison `yaml:"gt,omitempty" json:"gt,omitempty"`
	And []Predicate `yaml:"and,omitempty" json:"and,omitempty"`
	Or  []Predicate `yaml:"or,omitempty" json:"or,omitempty"`
	Not *Predicate  `yaml:"not,omitempty" json:"not,omitempty"`
}

// Eq builds an equality predicate.
func Eq(a Attribute, v any) Predicate { return Predicate{Eq: &Comparison{Attr: a, Value: v}} }

// In builds a set-membership predicate.
func In(a Attribute, values ...string) Predicate {
	return Predicate{In: &Membership{Attr: a, Values: values}}
}

// Gt builds a greater-than predicate.
func Gt(a Attribute, v float64) Predicate { return Predicate{Gt: &Comparison{Attr: a, Value: v}} }

// And builds a conjunction.
func And(ps ...Predicate) Predicate { return Predicate{And: ps} }

// Or builds a disjunction.
func Or(ps ...Predicate) Predicate { return Predicate{Or: ps} }

// Not negates p.
func Not(p Predicate) Predicate { return Predicate{Not: &p} }

func (p Predicate) variants() int {
	n := 0
	if p.Eq != nil {
		n++
	}
	if p.In != nil {
		n++
	}
	if p.Gt != nil {
		n++
	}
	if len(p.And) > 0 {
		n++
	}
	if len(p.Or) > 0 {
		n++
	}
	if p.Not != nil {
		n++
	}
	return n
}

// Validate checks the tree shape and that every literal matches the type of
// the attribute it is compared with.
func (p Predicate) Validate() error {
	if n := p.variants(); n != 1 {
		return model.Validationf("condition node must set exactly one operator, got %d", n)
	}
	switch {
	case p.Eq != nil:
		kind, ok := attributes[p.Eq.Attr]
		if !ok {
			return model.Validationf("unknown attribute %q", p.Eq.Attr)
		}
		if !literalFits(kind, p.Eq.Value) {
			return model.Validationf("eq %s: value %v has the wrong type", p.Eq.Attr, p.Eq.Value)
		}
	case p.Gt != nil:
		if attributes[p.Gt.Attr] != kindNumber {
			return model.Validationf("gt needs a numeric attribute, got %q", p.Gt.Attr)
		}
		if !literalFits(kindNumber, p.Gt.Value) {
			return model.Validationf("gt %s: value %v is not a number", p.Gt.Attr, p.Gt.Value)
		}
	case p.In != nil:
		if attributes[p.In.Attr] != kindString {
			return model.Validationf("in needs a string attribute, got %q", p.In.Attr)
		}
		if len(p.In.Values) == 0 {
			return model.Validationf("in %s: empty value set", p.In.Attr)
		}
	case p.Not != nil:
		return p.Not.Validate()
	default:
		for _, c := range append(append([]Predicate(nil), p.And...), p.Or...) {
			if err := c.Validate(); err != nil {
				return err
			}
		}
	}
	return nil
}

func literalFits(kind attrKind, v any) bool {
	switch kind {
	case kindString:
		_, ok := v.(string)
		return ok
	case kindBool:
		_, ok := v.(bool)
		return ok
	case kindNumber:
		_, ok := toFloat(v)
		return ok
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

// Eval evaluates the predicate against a lead. Invalid nodes are false.
func (p Predicate) Eval(l *model.Lead) bool {
	switch {
	case p.Eq != nil:
		switch attributes[p.Eq.Attr] {
		case kindString:
			s, _ := p.Eq.Value.(string)
			return strings.EqualFold(stringAttr(l, p.Eq.Attr), s)
		case kindBool:
			b, _ := p.Eq.Value.(bool)
			return boolAttr(l, p.Eq.Attr) == b
		case kindNumber:
			f, _ := toFloat(p.Eq.Value)
			return numberAttr(l, p.Eq.Attr) == f
		}
		return false
	case p.Gt != nil:
		f, ok := toFloat(p.Gt.Value)
		return ok && numberAttr(l, p.Gt.Attr) > f
	case p.In != nil:
		got := stringAttr(l, p.In.Attr)
		for _, v := range p.In.Values {
			if strings.EqualFold(got, v) {
				return true
			}
		}
		return false
	case p.Not != nil:
		return !p.Not.Eval(l)
	case len(p.And) > 0:
		for _, c := range p.And {
			if !c.Eval(l) {
				return false
			}
		}
		return true
	case len(p.Or) > 0:
		for _, c := range p.Or {
			if c.Eval(l) {
				return true
			}
		}
		return false
	}
	return false
}

// String renders the predicate in a compact prefix form for logs.
func (p Predicate) String() string {
	switch {
	case p.Eq != nil:
		return fmt.Sprintf("%s == %v", p.Eq.Attr, p.Eq.Value)
	case p.Gt != nil:
		return fmt.Sprintf("%s > %v", p.Gt.Attr, p.Gt.Value)
	case p.In != nil:
		return fmt.Sprintf("%s in [%s]", p.In.Attr, strings.Join(p.In.Values, ","))
	case p.Not != nil:
		return "not(" + p.Not.String() + ")"
	case len(p.And) > 0:
		return "and(" + joinPredicates(p.And) + ")"
	case len(p.Or) > 0:
		return "or(" + joinPredicates(p.Or) + ")"
	}
	return "<empty>"
}

func joinPredicates(ps []Predicate) string {
	parts := make([]string, len(ps))
	for i, c := range ps {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}
