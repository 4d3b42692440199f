package judge

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/elmanelman/sql-judge/config"
	"github.com/elmanelman/sql-judge/dbconn"
	"github.com/elmanelman/sql-judge/templates"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Judges is the polling service: a fetcher claims pending submissions from
// the main database, reviewers judge them and a single updater writes the
// reviews back.
type Judges struct {
	logger *zap.Logger

	mainDB  *sqlx.DB
	conns   []dbconn.Conn
	judging *Orchestrator
	hints   HintGenerator

	waitGroup *sync.WaitGroup
	workers   sync.WaitGroup
	stop      chan struct{}
	stopOnce  sync.Once
	ctx       context.Context
	cancel    context.CancelFunc

	fetchTicker *time.Ticker
	batchSize   int
	jobs        chan Job
	reviews     chan Review
}

func NewJudges(
	logger *zap.Logger,
	mainDB *sqlx.DB,
	judging *Orchestrator,
	hints HintGenerator,
	waitGroup *sync.WaitGroup,
) *Judges {
	ctx, cancel := context.WithCancel(context.Background())
	if hints == nil {
		hints = NopHints{}
	}
	return &Judges{
		logger:    logger,
		mainDB:    mainDB,
		judging:   judging,
		hints:     hints,
		waitGroup: waitGroup,
		stop:      make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(chan Job),
		reviews:   make(chan Review),
	}
}

// Connect builds the service from configuration: it sets up the logger,
// connects both databases and wires the orchestrator.
func Connect(ctx context.Context, cfg config.JudgesConfig, waitGroup *sync.WaitGroup) (*Judges, error) {
	logger, err := cfg.LoggerConfig.Build()
	if err != nil {
		return nil, err
	}
	mainDB, err := connectDB(ctx, logger, "main", cfg, cfg.MainDBConfig)
	if err != nil {
		return nil, errors.Wrap(err, "error connecting to main database")
	}
	judgeDB, err := connectDB(ctx, logger, "judge", cfg, cfg.JudgeDBConfig)
	if err != nil {
		_ = mainDB.Close(ctx)
		return nil, errors.Wrap(err, "error connecting to judging database")
	}
	judging, err := NewOrchestratorFromConfig(logger, judgeDB, cfg)
	if err != nil {
		_ = mainDB.Close(ctx)
		_ = judgeDB.Close(ctx)
		return nil, err
	}
	j := NewJudges(logger, mainDB.DB(), judging, NopHints{}, waitGroup)
	j.conns = []dbconn.Conn{mainDB, judgeDB}
	return j, nil
}

func (j *Judges) Logger() *zap.Logger {
	return j.logger
}

func (j *Judges) Start(cfg config.ServiceConfig) error {
	if cfg.ReviewerCount < 1 {
		return errors.Newf("at least one reviewer is required, got %d", cfg.ReviewerCount)
	}
	j.batchSize = cfg.Batch()
	j.fetchTicker = time.NewTicker(cfg.FetchInterval())

	j.waitGroup.Add(1)
	go j.SubmissionUpdater()

	j.workers.Add(1 + cfg.ReviewerCount)
	go j.StartFetching()
	for id := 1; id <= cfg.ReviewerCount; id++ {
		go j.Reviewer(id)
	}
	go func() {
		j.workers.Wait()
		close(j.reviews)
	}()

	j.logger.Info(
		"judges started",
		zap.Int("reviewer_count", cfg.ReviewerCount),
		zap.Duration("fetch_period", cfg.FetchInterval()),
	)
	return nil
}

// Stop asks every goroutine to finish. Reviews already produced are still
// written back before the updater exits.
func (j *Judges) Stop() {
	j.stopOnce.Do(func() {
		if j.fetchTicker != nil {
			j.fetchTicker.Stop()
		}
		close(j.stop)
		j.cancel()
	})
}

// Close releases the database connections opened by Connect. Call it after
// the wait group is done.
func (j *Judges) Close(ctx context.Context) error {
	var err error
	for _, c := range j.conns {
		err = errors.CombineErrors(err, c.Close(ctx))
	}
	return err
}

func (j *Judges) UpdateSubmissionReviewInfo(ctx context.Context, r Review) error {
	_, err := j.mainDB.NamedExecContext(ctx, templates.UpdateSubmissionReviewInfo, r)
	return err
}

func (j *Judges) SubmissionUpdater() {
	defer func() {
		j.logger.Info("stopped submission updater")
		j.waitGroup.Done()
	}()
	for r := range j.reviews {
		if err := j.UpdateSubmissionReviewInfo(context.Background(), r); err != nil {
			j.logger.Error(
				"submission update failed",
				zap.Int("submission_id", r.SubmissionID),
				zap.Error(err),
			)
		}
	}
}
