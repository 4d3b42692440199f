package judge

import (
	"context"

	"github.com/elmanelman/sql-judge/config"
	"github.com/elmanelman/sql-judge/dbconn"
	"github.com/elmanelman/sql-judge/execute"
	"github.com/elmanelman/sql-judge/provision"
	"go.uber.org/zap"
)

func connectDB(ctx context.Context, logger *zap.Logger, id dbconn.ID, cfg config.JudgesConfig, dbCfg config.DBConfig) (dbconn.Conn, error) {
	conn, err := dbconn.ConnectWithRetry(ctx, id, dbCfg.ConnectionString(), cfg.ConnectRetryConfig.Settings())
	if err != nil {
		return nil, err
	}
	logger.Info(
		"database connected",
		zap.String("id", string(id)),
		zap.String("driver", conn.Dialect()),
		zap.String("host", dbCfg.Host),
		zap.String("database", dbCfg.Database),
	)
	return conn, nil
}

// NewOrchestratorFromConfig wires an orchestrator onto the judging database
// using the isolation, provisioning and executor sections of cfg.
func NewOrchestratorFromConfig(logger *zap.Logger, judgeDB dbconn.Conn, cfg config.JudgesConfig) (*Orchestrator, error) {
	dialect, err := provision.DialectByName(judgeDB.Dialect())
	if err != nil {
		return nil, err
	}
	isolation, err := NewIsolation(cfg.IsolationConfig.Policy, judgeDB, logger)
	if err != nil {
		return nil, err
	}
	return NewOrchestrator(
		logger,
		isolation,
		cfg.IsolationConfig.Policy,
		dialect,
		provision.NewProvisioner(logger, cfg.ProvisioningConfig.Strict),
		execute.New(cfg.ExecutorConfig.MaxRows),
	), nil
}
