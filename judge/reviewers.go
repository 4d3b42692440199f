package judge

import (
	"context"

	"github.com/elmanelman/sql-judge/templates"
	"go.uber.org/zap"
)

// FetchJobs claims up to one batch of pending submissions and hands them to
// the reviewers. A submission is claimed by moving it to OnReview, so the
// next fetch never sees it again.
func (j *Judges) FetchJobs(ctx context.Context) error {
	var jobs []Job
	if err := j.mainDB.SelectContext(ctx, &jobs, templates.FetchPendingSubmissions, PendingReview, j.batchSize); err != nil {
		return err
	}
	for _, job := range jobs {
		claimed, err := j.setStatus(ctx, job.SubmissionID, PendingReview, OnReview)
		if err != nil {
			return err
		}
		if !claimed {
			continue
		}
		select {
		case j.jobs <- job:
		case <-j.stop:
			if _, err := j.setStatus(context.Background(), job.SubmissionID, OnReview, PendingReview); err != nil {
				j.logger.Error("failed to release submission",
					zap.Int("submission_id", job.SubmissionID),
					zap.Error(err),
				)
			}
			return nil
		}
	}
	return nil
}

func (j *Judges) setStatus(ctx context.Context, submissionID, from, to int) (bool, error) {
	res, err := j.mainDB.ExecContext(ctx, templates.ClaimSubmission, to, submissionID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (j *Judges) StartFetching() {
	defer func() {
		j.logger.Info("stopped fetching submissions")
		j.workers.Done()
	}()
	for {
		select {
		case <-j.stop:
			return
		case <-j.fetchTicker.C:
			if err := j.FetchJobs(j.ctx); err != nil && j.ctx.Err() == nil {
				j.logger.Error("failed fetching submissions", zap.Error(err))
			}
		}
	}
}

func (j *Judges) Reviewer(reviewerID int) {
	defer func() {
		j.logger.Info(
			"stopped reviewer",
			zap.Int("reviewer_id", reviewerID),
		)
		j.workers.Done()
	}()
	for {
		select {
		case <-j.stop:
			return
		case job := <-j.jobs:
			j.reviews <- j.review(job)
		}
	}
}

func (j *Judges) review(job Job) Review {
	v, err := j.judging.Judge(j.ctx, job.Request())
	if err != nil {
		// Nothing was judged; put the submission back in the queue.
		j.logger.Error(
			"error judging submission",
			zap.Int("submission_id", job.SubmissionID),
			zap.Error(err),
		)
		return Review{SubmissionID: job.SubmissionID, SubmissionStatusID: PendingReview}
	}
	if v.Status == ReferenceError {
		j.logger.Error(
			"reference solution is broken",
			zap.Int("submission_id", job.SubmissionID),
			zap.Int("question_id", job.QuestionID),
			zap.String("message", v.Message),
		)
	}

	hint, err := j.hints.Hint(j.ctx, HintInput{
		StudentSQL:      job.Solution,
		IsCorrect:       v.IsCorrect,
		Message:         v.Message,
		IsSafetyBlocked: v.IsSafetyBlocked,
	})
	if err != nil {
		j.logger.Warn(
			"hint generation failed",
			zap.Int("submission_id", job.SubmissionID),
			zap.Error(err),
		)
	}
	return Review{
		SubmissionID:       job.SubmissionID,
		SubmissionStatusID: v.Status,
		ReviewerMessage:    v.Message,
		ReviewerHint:       hint,
	}
}
