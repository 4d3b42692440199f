package judge

// Submission status IDs as stored in the main database.
const (
	Unknown int = iota
	PendingReview
	OnReview
	Accepted
	ExecutionError
	SafetyBlocked
	IncorrectContent
	IncorrectOrder
	ReferenceError
)

func StatusName(status int) string {
	switch status {
	case PendingReview:
		return "pending_review"
	case OnReview:
		return "on_review"
	case Accepted:
		return "accepted"
	case ExecutionError:
		return "execution_error"
	case SafetyBlocked:
		return "safety_blocked"
	case IncorrectContent:
		return "incorrect_content"
	case IncorrectOrder:
		return "incorrect_order"
	case ReferenceError:
		return "reference_error"
	}
	return "unknown"
}

// Verdict is the outcome of one judging attempt. ReferenceError verdicts
// point at a broken question rather than a wrong answer.
type Verdict struct {
	IsCorrect       bool   `json:"isCorrect"`
	Message         string `json:"message"`
	IsSafetyBlocked bool   `json:"isSafetyBlocked"`
	Status          int    `json:"status"`
}

// Review is a verdict addressed to a stored submission.
type Review struct {
	SubmissionID       int    `db:"submission_id"`
	SubmissionStatusID int    `db:"submission_status_id"`
	ReviewerMessage    string `db:"reviewer_message"`
	ReviewerHint       string `db:"reviewer_hint"`
}
