package judge

import (
	"encoding/json"
	"strconv"
)

// Job is a pending submission together with the question it answers.
type Job struct {
	SubmissionID          int     `db:"submission_id"`
	Solution              string  `db:"solution"`
	QuestionID            int     `db:"question_id"`
	ReferenceSolution     string  `db:"reference_solution"`
	RequiredOutputColumns *string `db:"required_output_columns"`
	SchemaPreview         *string `db:"schema_preview"`
}

func (j Job) Request() Request {
	req := Request{
		StudentSQL:            j.Solution,
		ReferenceSQL:          j.ReferenceSolution,
		RequiredOutputColumns: j.RequiredOutputColumns,
		QuestionKey:           strconv.Itoa(j.QuestionID),
	}
	if j.SchemaPreview != nil {
		req.SchemaPreview = json.RawMessage(*j.SchemaPreview)
	}
	return req
}
