package bdd

import (
	"reflect"
	"testing"
)

const sampleScenario = `Feature: Checkout

Scenario: Complete a cash sale
  Given the register is open
  And a cashier is logged in
  When the cashier scans an item
  And the cashier presses Total
  # tender selection happens on the next screen
  Then the receipt is printed
  But no change is due
`

func TestParse(t *testing.T) {
	s := Parse(sampleScenario)

	if s.Name != "Complete a cash sale" {
		t.Errorf("name = %q, want scenario line to win over feature line", s.Name)
	}
	if want := []string{"the register is open", "a cashier is logged in"}; !reflect.DeepEqual(s.GivenSteps, want) {
		t.Errorf("given = %v, want %v", s.GivenSteps, want)
	}
	if want := []string{"the cashier scans an item", "the cashier presses Total"}; !reflect.DeepEqual(s.WhenSteps, want) {
		t.Errorf("when = %v, want %v", s.WhenSteps, want)
	}
	if want := []string{"the receipt is printed", "no change is due"}; !reflect.DeepEqual(s.ThenSteps, want) {
		t.Errorf("then = %v, want %v", s.ThenSteps, want)
	}
}

func TestParse_Empty(t *testing.T) {
	s := Parse("   \n  ")
	if s.Name != "" || s.FullText != "" || len(s.GivenSteps) != 0 {
		t.Errorf("want zero scenario, got %+v", s)
	}
}

func TestParse_FeatureNameFallback(t *testing.T) {
	s := Parse("Feature: Login\nGiven the app is installed")
	if s.Name != "Login" {
		t.Errorf("name = %q, want feature name when no scenario line exists", s.Name)
	}
}

func TestSteps(t *testing.T) {
	steps := Steps(sampleScenario)

	want := []Step{
		{Type: "Given", Text: "the register is open", Index: 0},
		{Type: "Given", Text: "a cashier is logged in", Index: 1},
		{Type: "When", Text: "the cashier scans an item", Index: 2},
		{Type: "When", Text: "the cashier presses Total", Index: 3},
		{Type: "Then", Text: "the receipt is printed", Index: 4},
		{Type: "Then", Text: "no change is due", Index: 5},
	}
	if !reflect.DeepEqual(steps, want) {
		t.Errorf("steps = %v, want %v", steps, want)
	}
}

func TestSteps_StopsAtExamples(t *testing.T) {
	text := `Scenario Outline: Tender amounts
When the cashier tenders <amount>
Examples:
  | amount |
  | 5.00   |
Then this is never reached`

	steps := Steps(text)
	if len(steps) != 1 {
		t.Fatalf("got %d steps, want parsing to stop at the examples table", len(steps))
	}
	if steps[0].Text != "the cashier tenders <amount>" {
		t.Errorf("step = %q", steps[0].Text)
	}
}

func TestSteps_OrphanContinuationDropped(t *testing.T) {
	steps := Steps("And this has no preceding keyword\nWhen something happens")
	if len(steps) != 1 || steps[0].Type != "When" {
		t.Errorf("steps = %v, want the orphan And line dropped", steps)
	}
}

func TestSteps_CaseInsensitiveKeywords(t *testing.T) {
	steps := Steps("given the door is closed\nWHEN the alarm rings")
	if len(steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(steps))
	}
	if steps[0].Type != "Given" || steps[1].Type != "When" {
		t.Errorf("types = %s, %s", steps[0].Type, steps[1].Type)
	}
}

func TestSearchableText(t *testing.T) {
	s := Parse(sampleScenario)
	got := s.SearchableText()
	want := "Complete a cash sale the register is open a cashier is logged in " +
		"the cashier scans an item the cashier presses Total the receipt is printed no change is due"
	if got != want {
		t.Errorf("searchable text = %q", got)
	}
}

func TestSearchableText_FallsBackToFullText(t *testing.T) {
	s := Parse("free-form step description with no keywords")
	if got := s.SearchableText(); got != "free-form step description with no keywords" {
		t.Errorf("searchable text = %q", got)
	}
}
