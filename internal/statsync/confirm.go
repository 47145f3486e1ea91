package statsync

import "context"

const (
	PromptRefreshStats = "Refresh send statistics for the selected tasks?"
	PromptCheckTasks   = "Check for added or removed tasks?"
	PromptTodayCreated = "Refresh statistics of tasks created today?"
)

// ConfirmFunc adapts a function to the confirmation gate.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// Answer is a fixed response, used when the caller confirmed up front.
type Answer bool

func (a Answer) Confirm(context.Context, string) (bool, error) {
	return bool(a), nil
}
