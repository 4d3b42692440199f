// Package judge runs the judging pipeline: gate the student query,
// provision the question's schema in an isolated session, execute both
// queries, normalize and compare. It also hosts the polling service that
// judges queued submissions.
package judge

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/elmanelman/sql-judge/compare"
	"github.com/elmanelman/sql-judge/execute"
	"github.com/elmanelman/sql-judge/normalize"
	"github.com/elmanelman/sql-judge/provision"
	"github.com/elmanelman/sql-judge/safety"
	"github.com/elmanelman/sql-judge/sqlscan"
	"go.uber.org/zap"
)

// Request is one judging invocation. QuestionKey identifies the question
// for session isolation and may be empty.
type Request struct {
	StudentSQL            string          `json:"studentSql"`
	ReferenceSQL          string          `json:"referenceSql"`
	RequiredOutputColumns *string         `json:"requiredOutputColumns"`
	SchemaPreview         json.RawMessage `json:"schemaPreview"`
	QuestionKey           string          `json:"questionKey"`
}

type Orchestrator struct {
	logger      *zap.Logger
	isolation   Isolation
	policy      string
	dialect     provision.Dialect
	provisioner *provision.Provisioner
	executor    *execute.Executor
}

func NewOrchestrator(
	logger *zap.Logger,
	isolation Isolation,
	policy string,
	dialect provision.Dialect,
	provisioner *provision.Provisioner,
	executor *execute.Executor,
) *Orchestrator {
	return &Orchestrator{
		logger:      logger,
		isolation:   isolation,
		policy:      policy,
		dialect:     dialect,
		provisioner: provisioner,
		executor:    executor,
	}
}

// Judge produces a verdict for req. The error is only set when the attempt
// could not be carried out at all (no session, cancelled context); every
// judging outcome, including broken reference queries, is a Verdict.
func (o *Orchestrator) Judge(ctx context.Context, req Request) (Verdict, error) {
	start := time.Now()
	defer func() { judgeDuration.Observe(time.Since(start).Seconds()) }()

	v, err := o.judge(ctx, req)
	if err != nil {
		infrastructureErrors.Inc()
		return Verdict{}, err
	}
	verdictsTotal.WithLabelValues(StatusName(v.Status)).Inc()
	return v, nil
}

func (o *Orchestrator) judge(ctx context.Context, req Request) (Verdict, error) {
	studentSQL := prepareQuery(req.StudentSQL)
	referenceSQL := prepareQuery(req.ReferenceSQL)

	if c := safety.Classify(studentSQL); !c.Permitted {
		o.logger.Info("student query blocked",
			zap.String("question_key", req.QuestionKey),
			zap.String("keyword", c.Keyword),
		)
		return Verdict{Message: c.Err().Error(), IsSafetyBlocked: true, Status: SafetyBlocked}, nil
	}

	plan := o.plan(req)

	waitStart := time.Now()
	sess, err := o.isolation.Acquire(ctx, req.QuestionKey, plan)
	if err != nil {
		return Verdict{}, errors.Wrapf(err, "error acquiring judging session")
	}
	sessionWait.WithLabelValues(o.policy).Observe(time.Since(waitStart).Seconds())
	defer func() {
		if err := sess.Release(context.Background()); err != nil {
			o.logger.Warn("error releasing judging session", zap.Error(err))
		}
	}()

	if _, err := o.provisioner.Apply(ctx, sess.Conn, plan); err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		return Verdict{Message: "schema provisioning failed: " + err.Error(), Status: ReferenceError}, nil
	}

	studentRes, err := o.executor.Execute(ctx, sess.Conn, studentSQL)
	if err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		return Verdict{Message: "student query failed: " + err.Error(), Status: ExecutionError}, nil
	}

	if c := safety.Classify(referenceSQL); !c.Permitted {
		o.logger.Error("reference query blocked",
			zap.String("question_key", req.QuestionKey),
			zap.String("keyword", c.Keyword),
		)
		return Verdict{Message: "reference query failed: " + c.Err().Error(), Status: ReferenceError}, nil
	}
	referenceRes, err := o.executor.Execute(ctx, sess.Conn, referenceSQL)
	if err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		o.logger.Error("reference query failed",
			zap.String("question_key", req.QuestionKey),
			zap.Error(err),
		)
		return Verdict{Message: "reference query failed: " + err.Error(), Status: ReferenceError}, nil
	}

	studentOrdered, studentSorted := normalize.Normalize(studentRes, true), normalize.Normalize(studentRes, false)
	referenceOrdered, referenceSorted := normalize.Normalize(referenceRes, true), normalize.Normalize(referenceRes, false)

	mode := compare.SelectMode(!isBlank(req.RequiredOutputColumns), sqlscan.HasOrderBy(referenceSQL))
	var out compare.Outcome
	if mode.Ordered() {
		out = compare.Compare(studentOrdered, referenceOrdered, mode)
	} else {
		out = compare.Compare(studentSorted, referenceSorted, mode)
	}

	status := Accepted
	if !out.Match {
		status = IncorrectContent
		if out.Mismatch.Kind == compare.RowDiffers &&
			compare.Compare(studentSorted, referenceSorted, mode.Unordered()).Match {
			status = IncorrectOrder
		}
	}
	o.logger.Debug("judged",
		zap.String("question_key", req.QuestionKey),
		zap.Stringer("mode", mode),
		zap.String("status", StatusName(status)),
	)
	return Verdict{IsCorrect: out.Match, Message: out.Message, Status: status}, nil
}

// plan builds the provisioning plan for the request's schema preview.
// Preview problems never fail the attempt; they only shrink the plan.
func (o *Orchestrator) plan(req Request) *provision.Plan {
	if isNullJSON(req.SchemaPreview) {
		return nil
	}
	doc := []byte(req.SchemaPreview)
	// Previews stored as text arrive as a JSON string holding the document.
	var text string
	if json.Unmarshal(req.SchemaPreview, &text) == nil {
		doc = []byte(text)
	}
	preview, rejections, err := provision.ParsePreview(doc)
	if err != nil {
		o.logger.Warn("ignoring schema preview",
			zap.String("question_key", req.QuestionKey),
			zap.Error(err),
		)
		return nil
	}
	for _, r := range rejections {
		o.logger.Warn("schema preview entry rejected",
			zap.String("question_key", req.QuestionKey),
			zap.Stringer("rejection", r),
		)
	}
	return provision.NewPlan(preview, o.dialect)
}
