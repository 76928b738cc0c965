package placeholder

import (
	"reflect"
	"testing"

	domnorm "github.com/kailas-cloud/stepmatch/internal/domain/normalize"
)

func TestMap_FillsTypedSlots(t *testing.T) {
	phs := []domnorm.Placeholder{
		{Type: domnorm.Amount, Value: "$19.99"},
		{Type: domnorm.Number, Value: "3"},
	}

	m := Map("enter $19.99 for 3 items", phs, "enter <AMOUNT> for <NUMBER> items")

	if m.Score != 1 {
		t.Errorf("score = %g, want 1", m.Score)
	}
	want := map[string]string{"AMOUNT": "$19.99", "NUMBER": "3"}
	if !reflect.DeepEqual(m.Values, want) {
		t.Errorf("values = %v, want %v", m.Values, want)
	}
	if len(m.Missing) != 0 {
		t.Errorf("missing = %v, want none", m.Missing)
	}
}

func TestMap_PartialFill(t *testing.T) {
	phs := []domnorm.Placeholder{{Type: domnorm.URL, Value: "https://example.com"}}

	m := Map("navigate to https://example.com", phs, "navigate to <URL> as <EMAIL>")

	if m.Score != 0.5 {
		t.Errorf("score = %g, want 0.5", m.Score)
	}
	if !reflect.DeepEqual(m.Missing, []string{"EMAIL"}) {
		t.Errorf("missing = %v, want [EMAIL]", m.Missing)
	}
}

func TestMap_NoSlotsIsPerfect(t *testing.T) {
	m := Map("press Enter", nil, "press the enter key")
	if m.Score != 1 {
		t.Errorf("score = %g, want 1 for a slotless template", m.Score)
	}
}

func TestMap_ButtonFromQuotedString(t *testing.T) {
	m := Map(`click the "Place Order" button`, nil, "click the <BUTTON> button")
	if m.Values["BUTTON"] != "Place Order" {
		t.Errorf("button = %q", m.Values["BUTTON"])
	}
}

func TestMap_ButtonFromInteractionVerb(t *testing.T) {
	m := Map("press Total Due on the keypad", nil, "press the <BUTTON> button")
	if m.Values["BUTTON"] != "Total Due" {
		t.Errorf("button = %q", m.Values["BUTTON"])
	}
}

func TestMap_FirstValuePerTypeWins(t *testing.T) {
	phs := []domnorm.Placeholder{
		{Type: domnorm.Number, Value: "7"},
		{Type: domnorm.Number, Value: "9"},
	}
	m := Map("enter 7 then 9", phs, "enter <NUMBER>")
	if m.Values["NUMBER"] != "7" {
		t.Errorf("number = %q, want the first occurrence", m.Values["NUMBER"])
	}
}
