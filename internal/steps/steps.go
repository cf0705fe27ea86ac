// Package steps holds the nine-step ticket pipeline and the sequencer that
// moves a ticket through it against the backend.
package steps

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Step int

const (
	StepCustomerMessage Step = iota + 1
	StepDecodedMessage
	StepVendorMessageTemplate
	StepVendorSelection
	StepVendorDispatch
	StepVendorReplies
	StepDecodedVendorReplies
	StepCustomerQuotation
	StepFinalDecision
)

var (
	ErrUnknownStep = errors.New("unknown step")
	ErrFinalStep   = errors.New("ticket is already at the final step")
)

var labels = [...]string{
	StepCustomerMessage:       "Customer Message",
	StepDecodedMessage:        "Decoded Message",
	StepVendorMessageTemplate: "Vendor Message Template",
	StepVendorSelection:       "Vendor Selection",
	StepVendorDispatch:        "Vendor Dispatch",
	StepVendorReplies:         "Vendor Replies",
	StepDecodedVendorReplies:  "Decoded Vendor Replies",
	StepCustomerQuotation:     "Customer Quotation",
	StepFinalDecision:         "Final Decision",
}

const keyPrefix = "Step "

func (s Step) Valid() bool {
	return s >= StepCustomerMessage && s <= StepFinalDecision
}

// Key is the identifier the backend stores in current_step and in the
// steps map.
func (s Step) Key() string {
	return keyPrefix + strconv.Itoa(int(s))
}

func (s Step) Number() int {
	return int(s)
}

func (s Step) Label() string {
	if !s.Valid() {
		return ""
	}
	return labels[s]
}

func (s Step) String() string {
	if !s.Valid() {
		return fmt.Sprintf("Step(%d)", int(s))
	}
	return s.Key() + " (" + s.Label() + ")"
}

func All() []Step {
	all := make([]Step, 0, StepFinalDecision)
	for s := StepCustomerMessage; s <= StepFinalDecision; s++ {
		all = append(all, s)
	}
	return all
}

func First() Step {
	return StepCustomerMessage
}

// Parse accepts a step key ("Step 4") or a bare step number ("4").
func Parse(key string) (Step, error) {
	trimmed := strings.TrimSpace(key)
	trimmed = strings.TrimPrefix(trimmed, keyPrefix)
	n, err := strconv.Atoi(strings.TrimSpace(trimmed))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownStep, key)
	}
	step := Step(n)
	if !step.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownStep, key)
	}
	return step, nil
}

func Next(s Step) (Step, error) {
	if !s.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownStep, int(s))
	}
	if s == StepFinalDecision {
		return 0, ErrFinalStep
	}
	return s + 1, nil
}
