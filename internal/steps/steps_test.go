package steps

import (
	"errors"
	"testing"

	"intsync/internal/models"
)

func TestNextStepFollowsOrder(t *testing.T) {
	all := All()
	if len(all) != 9 {
		t.Fatalf("expected 9 steps, got %d", len(all))
	}
	for i := 0; i < len(all)-1; i++ {
		ticket := models.Ticket{CurrentStep: all[i].Key()}
		next, err := NextStep(ticket)
		if err != nil {
			t.Fatalf("NextStep(%q) returned error: %v", all[i].Key(), err)
		}
		if next != all[i+1] {
			t.Fatalf("NextStep(%q)=%s, want %s", all[i].Key(), next, all[i+1])
		}
	}
}

func TestNextStepAtFinalStep(t *testing.T) {
	_, err := NextStep(models.Ticket{CurrentStep: "Step 9"})
	if !errors.Is(err, ErrFinalStep) {
		t.Fatalf("expected ErrFinalStep, got %v", err)
	}
}

func TestParse(t *testing.T) {
	cases := []struct {
		key   string
		step  Step
		valid bool
	}{
		{"Step 1", StepCustomerMessage, true},
		{"Step 4", StepVendorSelection, true},
		{" Step 9 ", StepFinalDecision, true},
		{"7", StepDecodedVendorReplies, true},
		{"Step 0", 0, false},
		{"Step 10", 0, false},
		{"step one", 0, false},
		{"", 0, false},
	}

	for _, tt := range cases {
		got, err := Parse(tt.key)
		if tt.valid && (err != nil || got != tt.step) {
			t.Fatalf("Parse(%q)=%v,%v want %v", tt.key, got, err, tt.step)
		}
		if !tt.valid && !errors.Is(err, ErrUnknownStep) {
			t.Fatalf("Parse(%q) expected ErrUnknownStep, got %v", tt.key, err)
		}
	}
}

func TestLabels(t *testing.T) {
	want := []string{
		"Customer Message",
		"Decoded Message",
		"Vendor Message Template",
		"Vendor Selection",
		"Vendor Dispatch",
		"Vendor Replies",
		"Decoded Vendor Replies",
		"Customer Quotation",
		"Final Decision",
	}
	for i, step := range All() {
		if step.Label() != want[i] {
			t.Fatalf("label of %s = %q, want %q", step.Key(), step.Label(), want[i])
		}
		if step.Number() != i+1 {
			t.Fatalf("number of %s = %d", step.Key(), step.Number())
		}
	}
	if Step(12).Label() != "" {
		t.Fatalf("expected empty label for invalid step")
	}
}
