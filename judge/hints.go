package judge

import "context"

// HintInput is what a hint generator gets to see of a judged submission.
type HintInput struct {
	StudentSQL      string
	IsCorrect       bool
	Message         string
	IsSafetyBlocked bool
}

// HintGenerator produces learner-facing feedback for a verdict. It never
// influences the verdict itself.
type HintGenerator interface {
	Hint(ctx context.Context, in HintInput) (string, error)
}

// NopHints generates no hints.
type NopHints struct{}

func (NopHints) Hint(context.Context, HintInput) (string, error) {
	return "", nil
}
