package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/elmanelman/sql-judge/cmd/internal/cmdutil"
	"github.com/elmanelman/sql-judge/config"
	"github.com/elmanelman/sql-judge/judge"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func Command() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the submission judging service.",
		Long: `Serve polls the main database for pending submissions, judges them against
their question's reference query and writes the verdicts back.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.JudgesConfig{}
			if err := cfg.LoadFromFile(configPath); err != nil {
				return errors.Wrapf(err, "error loading %s", configPath)
			}

			ctx := context.Background()
			wg := new(sync.WaitGroup)
			j, err := judge.Connect(ctx, cfg, wg)
			if err != nil {
				return err
			}
			logger := j.Logger()
			defer func() { _ = logger.Sync() }()

			if cfg.MetricsConfig.Listen != "" {
				shutdown := cmdutil.RunMetricsServer(logger, cfg.MetricsConfig.Listen)
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := shutdown(ctx); err != nil {
						logger.Warn("error stopping metrics endpoint", zap.Error(err))
					}
				}()
			}

			setupSigtermHandler(j)
			if err := j.Start(cfg.ServiceConfig); err != nil {
				_ = j.Close(ctx)
				return err
			}
			wg.Wait()
			return j.Close(ctx)
		},
	}

	cmd.PersistentFlags().StringVar(
		&configPath,
		"config",
		config.DefaultConfigFile,
		"path to the JSON configuration file",
	)
	return cmd
}

func setupSigtermHandler(judges *judge.Judges) {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		fmt.Print("\n")
		judges.Stop()
	}()
}
