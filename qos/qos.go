// Package qos turns the flat property list of a topic configuration into a quality-of-service policy.
package qos

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DefaultDepth is used whenever history.depth is not set.
const DefaultDepth = 2

// ErrInvalidQoS is returned when a property value cannot be coerced.
var ErrInvalidQoS = errors.New("invalid qos property")

// Property is one entry of the configured property list.
type Property struct {
	Path  string      `json:"p"`
	Value interface{} `json:"v"`
}

// HistoryKind is the history policy of a topic.
type HistoryKind int

// History kinds.
const (
	HistoryUnspecified HistoryKind = iota
	HistorySystemDefault
	HistoryKeepLast
	HistoryKeepAll
)

// Reliability is the reliability policy of a topic.
type Reliability int

// Reliability kinds.
const (
	ReliabilityUnspecified Reliability = iota
	ReliabilitySystemDefault
	ReliabilityReliable
	ReliabilityBestEffort
)

// Durability is the durability policy of a topic.
type Durability int

// Durability kinds.
const (
	DurabilityUnspecified Durability = iota
	DurabilitySystemDefault
	DurabilityTransientLocal
	DurabilityVolatile
)

var historyNames = map[string]HistoryKind{
	"SYSTEM_DEFAULT": HistorySystemDefault,
	"KEEP_LAST":      HistoryKeepLast,
	"KEEP_ALL":       HistoryKeepAll,
}

var reliabilityNames = map[string]Reliability{
	"SYSTEM_DEFAULT": ReliabilitySystemDefault,
	"RELIABLE":       ReliabilityReliable,
	"BEST_EFFORT":    ReliabilityBestEffort,
}

var durabilityNames = map[string]Durability{
	"SYSTEM_DEFAULT":  DurabilitySystemDefault,
	"TRANSIENT_LOCAL": DurabilityTransientLocal,
	"VOLATILE":        DurabilityVolatile,
}

func (h HistoryKind) String() string {
	for name, v := range historyNames {
		if v == h {
			return name
		}
	}
	return "UNSPECIFIED"
}

func (r Reliability) String() string {
	for name, v := range reliabilityNames {
		if v == r {
			return name
		}
	}
	return "UNSPECIFIED"
}

func (d Durability) String() string {
	for name, v := range durabilityNames {
		if v == d {
			return name
		}
	}
	return "UNSPECIFIED"
}

// Policy is a fully resolved quality-of-service policy.
type Policy struct {
	History     HistoryKind
	Depth       int
	Reliability Reliability
	Durability  Durability
}

// Default returns the policy produced by an empty property list.
func Default() Policy {
	return Policy{Depth: DefaultDepth}
}

func (p Policy) String() string {
	return fmt.Sprintf("history=%s depth=%d reliability=%s durability=%s",
		p.History, p.Depth, p.Reliability, p.Durability)
}

// Folded is the intermediate grouping of a property list. Values are either
// scalars (undotted paths) or map[string]interface{} groups.
type Folded map[string]interface{}

// Fold groups dotted property paths by their first segment.
//
// A path with more than one dot keeps only what follows the second dot as the
// field name: "history.policy.kind" lands on history/kind. Older editor
// schemas nested one extra level and flows saved with them must keep working.
func Fold(props []Property) Folded {
	folded := Folded{}
	for _, prop := range props {
		group, field, dotted := strings.Cut(prop.Path, ".")
		if !dotted {
			folded[prop.Path] = prop.Value
			continue
		}
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		fields, ok := folded[group].(map[string]interface{})
		if !ok {
			fields = map[string]interface{}{}
			folded[group] = fields
		}
		fields[field] = prop.Value
	}
	return folded
}

func (f Folded) Field(group, field string) (interface{}, bool) {
	fields, ok := f[group].(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, ok := fields[field]
	return v, ok
}

// Translate folds props and resolves them into a Policy. Groups other than
// history, reliability and durability are ignored.
func Translate(props []Property) (Policy, error) {
	folded := Fold(props)
	policy := Default()

	if kind, ok := folded.Field("history", "kind"); ok {
		policy.History = historyNames[enumName(kind)]
	}
	if v, ok := folded["reliability"]; ok {
		policy.Reliability = reliabilityNames[enumName(v)]
	}
	if v, ok := folded["durability"]; ok {
		policy.Durability = durabilityNames[enumName(v)]
	}
	if depth, ok := folded.Field("history", "depth"); ok {
		d, err := coerceDepth(depth)
		if err != nil {
			return Policy{}, err
		}
		policy.Depth = d
	}
	return policy, nil
}

func enumName(v interface{}) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

func coerceDepth(v interface{}) (int, error) {
	var f float64
	switch t := v.(type) {
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint:
		f = float64(t)
	case float32:
		f = float64(t)
	case float64:
		f = t
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			// an emptied editor field coerces to zero
			return 0, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.Wrapf(ErrInvalidQoS, "history.depth %q", t)
		}
		f = parsed
	default:
		return 0, errors.Wrapf(ErrInvalidQoS, "history.depth of type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f != math.Trunc(f) {
		return 0, errors.Wrapf(ErrInvalidQoS, "history.depth %v", v)
	}
	return int(f), nil
}
