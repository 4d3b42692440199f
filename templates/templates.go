// Package templates holds the statements the judging service runs against
// the main database. Placeholders are written as ? so the same text works
// on MySQL and SQLite.
package templates

// FetchPendingSubmissions joins pending submissions with their question.
// Arguments: pending status ID, batch size.
const FetchPendingSubmissions = `
SELECT
	s.id AS submission_id,
	s.solution AS solution,
	q.id AS question_id,
	q.reference_solution AS reference_solution,
	q.required_output_columns AS required_output_columns,
	q.schema_preview AS schema_preview
FROM submissions s
JOIN questions q ON q.id = s.question_id
WHERE s.submission_status_id = ?
ORDER BY s.id
LIMIT ?`

// ClaimSubmission moves a submission from one status to another only if it
// still has the first. Arguments: new status, submission ID, old status.
const ClaimSubmission = `
UPDATE submissions
SET submission_status_id = ?
WHERE id = ? AND submission_status_id = ?`

// UpdateSubmissionReviewInfo records a verdict. Named arguments match
// judge.Review.
const UpdateSubmissionReviewInfo = `
UPDATE submissions
SET submission_status_id = :submission_status_id,
	reviewer_message = :reviewer_message,
	reviewer_hint = :reviewer_hint
WHERE id = :submission_id`

// Schema creates the tables the service expects. It is used to set up
// local and test databases.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS questions (
	id INTEGER NOT NULL PRIMARY KEY,
	reference_solution TEXT NOT NULL,
	required_output_columns VARCHAR(1024) NULL,
	schema_preview TEXT NULL
)`,
	`CREATE TABLE IF NOT EXISTS submissions (
	id INTEGER NOT NULL PRIMARY KEY,
	question_id INTEGER NOT NULL,
	solution TEXT NOT NULL,
	submission_status_id INTEGER NOT NULL DEFAULT 1,
	reviewer_message TEXT NULL,
	reviewer_hint TEXT NULL
)`,
}
