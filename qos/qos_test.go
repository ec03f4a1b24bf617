package qos

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestTranslateScenario(t *testing.T) {
	policy, err := Translate([]Property{
		{Path: "history.kind", Value: "KEEP_LAST"},
		{Path: "history.depth", Value: "5"},
		{Path: "reliability", Value: "RELIABLE"},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, policy, test.ShouldResemble, Policy{
		History:     HistoryKeepLast,
		Depth:       5,
		Reliability: ReliabilityReliable,
		Durability:  DurabilityUnspecified,
	})
}

func TestTranslateDefaultDepth(t *testing.T) {
	cases := [][]Property{
		nil,
		{{Path: "history.kind", Value: "KEEP_ALL"}},
		{{Path: "history.kind", Value: "KEEP_LAST"}, {Path: "durability", Value: "TRANSIENT_LOCAL"}},
		{{Path: "reliability", Value: "BEST_EFFORT"}, {Path: "deadline.sec", Value: 3}},
		{{Path: "history.something.else", Value: 9}},
		{{Path: "history", Value: "KEEP_LAST"}},
	}
	for _, props := range cases {
		policy, err := Translate(props)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, policy.Depth, test.ShouldEqual, DefaultDepth)
	}
}

func TestTranslateUnsetHistory(t *testing.T) {
	policy, err := Translate([]Property{{Path: "durability", Value: "VOLATILE"}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, policy.History, test.ShouldEqual, HistoryUnspecified)
	test.That(t, policy.Durability, test.ShouldEqual, DurabilityVolatile)
}

func TestTranslateUnknownEnumName(t *testing.T) {
	policy, err := Translate([]Property{
		{Path: "history.kind", Value: "KEEP_SOME"},
		{Path: "reliability", Value: 7},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, policy.History, test.ShouldEqual, HistoryUnspecified)
	test.That(t, policy.Reliability, test.ShouldEqual, ReliabilityUnspecified)
}

func TestTranslateDepthCoercion(t *testing.T) {
	for _, v := range []interface{}{7, int64(7), 7.0, "7", " 7 "} {
		policy, err := Translate([]Property{{Path: "history.depth", Value: v}})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, policy.Depth, test.ShouldEqual, 7)
	}

	for _, v := range []interface{}{"seven", -1, 2.5, true} {
		_, err := Translate([]Property{{Path: "history.depth", Value: v}})
		test.That(t, errors.Is(err, ErrInvalidQoS), test.ShouldBeTrue)
	}
}

func TestFoldNestedPathQuirk(t *testing.T) {
	folded := Fold([]Property{
		{Path: "history.policy.kind", Value: "KEEP_ALL"},
		{Path: "history.a.b.c", Value: 1},
		{Path: "liveliness.kind", Value: "AUTOMATIC"},
		{Path: "reliability", Value: "RELIABLE"},
	})

	kind, ok := folded.Field("history", "kind")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, kind, test.ShouldEqual, "KEEP_ALL")

	deep, ok := folded.Field("history", "b.c")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, deep, test.ShouldEqual, 1)

	_, ok = folded.Field("liveliness", "kind")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, folded["reliability"], test.ShouldEqual, "RELIABLE")

	policy, err := Translate([]Property{{Path: "history.policy.kind", Value: "KEEP_ALL"}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, policy.History, test.ShouldEqual, HistoryKeepAll)
}

func TestFoldScalarReplacedByGroup(t *testing.T) {
	folded := Fold([]Property{
		{Path: "history", Value: "KEEP_LAST"},
		{Path: "history.depth", Value: 4},
	})
	depth, ok := folded.Field("history", "depth")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, depth, test.ShouldEqual, 4)
}

func TestPolicyString(t *testing.T) {
	test.That(t, Default().String(), test.ShouldEqual,
		"history=UNSPECIFIED depth=2 reliability=UNSPECIFIED durability=UNSPECIFIED")
}
