package provision

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/elmanelman/sql-judge/safety"
	"github.com/elmanelman/sql-judge/sqlscan"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var statementOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "sqljudge",
	Subsystem: "provision",
	Name:      "statements",
	Help:      "Provisioning statements by outcome.",
}, []string{"outcome"})

// Report counts what happened to each statement of a plan.
type Report struct {
	Applied int
	Skipped int
	Failed  int
}

func (r Report) String() string {
	return fmt.Sprintf("applied: %d, skipped: %d, failed: %d", r.Applied, r.Skipped, r.Failed)
}

// Provisioner applies plans. By default it is best-effort: statements that do
// not match the provisioning grammar are skipped and statements failing at
// the backend are logged, and the rest of the plan still runs. With Strict
// set, the first backend failure aborts the plan.
type Provisioner struct {
	logger *zap.Logger
	strict bool
}

func NewProvisioner(logger *zap.Logger, strict bool) *Provisioner {
	return &Provisioner{logger: logger, strict: strict}
}

// Apply runs every statement of plan on exec. A nil plan is a no-op.
func (p *Provisioner) Apply(ctx context.Context, exec sqlx.ExecerContext, plan *Plan) (Report, error) {
	var r Report
	if plan == nil {
		return r, nil
	}
	for _, stmt := range plan.Statements {
		if err := p.applyOne(ctx, exec, stmt.SQL, &r); err != nil {
			return r, err
		}
	}
	p.logger.Debug("provisioning plan applied",
		zap.Strings("tables", plan.Tables()),
		zap.Int("applied", r.Applied),
		zap.Int("skipped", r.Skipped),
		zap.Int("failed", r.Failed),
	)
	return r, nil
}

// ApplyScript splits a semicolon separated script and applies each
// statement under the same rules as Apply.
func (p *Provisioner) ApplyScript(ctx context.Context, exec sqlx.ExecerContext, script string) (Report, error) {
	var r Report
	for _, stmt := range sqlscan.SplitStatements(script) {
		if err := p.applyOne(ctx, exec, stmt, &r); err != nil {
			return r, err
		}
	}
	return r, nil
}

func (p *Provisioner) applyOne(ctx context.Context, exec sqlx.ExecerContext, stmt string, r *Report) error {
	if err := safety.ValidateProvisioningStatement(stmt); err != nil {
		p.logger.Warn("skipping provisioning statement",
			zap.String("statement", abbreviate(stmt)),
			zap.Error(err),
		)
		statementOutcomes.WithLabelValues("skipped").Inc()
		r.Skipped++
		return nil
	}
	if _, err := exec.ExecContext(ctx, stmt); err != nil {
		statementOutcomes.WithLabelValues("failed").Inc()
		r.Failed++
		if p.strict {
			return errors.Wrapf(err, "error provisioning %q", abbreviate(stmt))
		}
		p.logger.Warn("provisioning statement failed",
			zap.String("statement", abbreviate(stmt)),
			zap.Error(err),
		)
		return nil
	}
	statementOutcomes.WithLabelValues("applied").Inc()
	r.Applied++
	return nil
}

func abbreviate(stmt string) string {
	const max = 100
	if len(stmt) <= max {
		return stmt
	}
	return stmt[:max] + "..."
}
