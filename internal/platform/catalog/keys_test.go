package catalog

import (
	"reflect"
	"testing"
)

func TestToSnake(t *testing.T) {
	cases := map[string]string{
		"mobilePhone":     "mobile_phone",
		"suicidalYesNo":   "suicidal_yes_no",
		"rateDistress0":   "rate_distress0",
		"already_snake":   "already_snake",
		"wishLive":        "wish_live",
		"x":               "x",
		"strategiesOther": "strategies_other",
	}
	for in, want := range cases {
		if got := ToSnake(in); got != want {
			t.Errorf("ToSnake(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToCamel(t *testing.T) {
	cases := map[string]string{
		"mobile_phone":    "mobilePhone",
		"suicidal_yes_no": "suicidalYesNo",
		"wish_live":       "wishLive",
		"plain":           "plain",
	}
	for in, want := range cases {
		if got := ToCamel(in); got != want {
			t.Errorf("ToCamel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestToSnakeToCamelRoundTrip(t *testing.T) {
	keys := []string{"mobile_phone", "wish_live", "rate_agitation", "most_painful"}
	for _, k := range keys {
		if got := ToSnake(ToCamel(k)); got != k {
			t.Errorf("round trip of %q gave %q", k, got)
		}
	}
}

func TestSplitCompound(t *testing.T) {
	if got := SplitCompound("wishLive|wishDie"); !reflect.DeepEqual(got, []string{"wishLive", "wishDie"}) {
		t.Errorf("unexpected split: %v", got)
	}
	if got := SplitCompound("plain"); !reflect.DeepEqual(got, []string{"plain"}) {
		t.Errorf("unexpected split: %v", got)
	}
}

func TestAnswerKeys_FlattensAndNormalizes(t *testing.T) {
	questions := []Question{
		{UID: "a", Actions: []Action{
			{Type: ActionScale, AnswerKey: "wishLive|wishDie"},
		}},
		{UID: "b", Actions: []Action{
			{Type: ActionList, Groups: []Group{
				{AnswerKey: "planSteps"},
				{AnswerKey: "meansAccess"},
			}},
			{Type: ActionVideo},
		}},
	}

	got := AnswerKeys(questions)
	want := []string{"wish_live", "wish_die", "plan_steps", "means_access"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AnswerKeys = %v, want %v", got, want)
	}
}

func TestAnswerKeys_Dedupes(t *testing.T) {
	questions := []Question{
		{UID: "a", Actions: []Action{{Type: ActionButtons, AnswerKey: "sharedKey"}}},
		{UID: "b", Actions: []Action{{Type: ActionButtons, AnswerKey: "sharedKey"}}},
	}
	if got := AnswerKeys(questions); len(got) != 1 {
		t.Errorf("expected deduped key set, got %v", got)
	}
}
