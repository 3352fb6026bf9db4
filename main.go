// SPDX-License-Identifier: GPL-3.0-or-later
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/CrawX/mailferry/config"
	"github.com/CrawX/mailferry/log"
	"github.com/CrawX/mailferry/metrics"
	"github.com/CrawX/mailferry/persistence"
	"github.com/CrawX/mailferry/scheduler"
	"github.com/CrawX/mailferry/transfer"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const (
	exitOk           = 0
	exitFatal        = 1
	exitSourceFailed = 2
)

// sourcesFailedError ends a --once run in which at least one source did not
// complete its cycle.
type sourcesFailedError struct {
	failed map[string]error
}

func (e *sourcesFailedError) Error() string {
	return fmt.Sprintf("%d source(s) failed", len(e.failed))
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args, os.Stdout)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout io.Writer) int {
	log.InitLogging("info")
	logger := log.Logger(log.LOG_MAIN)

	err := newApp(stdout).RunContext(ctx, args)

	var failed *sourcesFailedError
	switch {
	case err == nil:
		return exitOk
	case errors.As(err, &failed):
		for source, reason := range failed.failed {
			logger.WithFields(logrus.Fields{"source": source, "error": reason}).Error("Source did not complete")
		}
		return exitSourceFailed
	default:
		logger.WithField("error", err).Error("Stopping")
		return exitFatal
	}
}

func newApp(stdout io.Writer) *cli.App {
	return &cli.App{
		Name:      "mailferry",
		Usage:     "move mail from POP3 and IMAP mailboxes into an IMAP folder",
		Writer:    stdout,
		ErrWriter: stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "configuration file (.yaml, .toml or .json)",
				Value:   "config.yaml",
				EnvVars: []string{"MAILFERRY_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "run one cycle for every source and exit",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "overrides log_level from the configuration",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "file with environment variables referenced by the configuration",
			},
			&cli.BoolFlag{
				Name:  "init-ledger",
				Usage: "create the ledger when state_file does not exist",
			},
		},
		Before: func(c *cli.Context) error {
			if level := c.String("log-level"); level != "" {
				if !log.ValidLevel(level) {
					return fmt.Errorf("unknown log level %q", level)
				}
			}
			return loadEnvFile(c.String("env-file"))
		},
		Action: transferAction,
		Commands: []*cli.Command{
			{
				Name:   "init",
				Usage:  "create the ledger at state_file",
				Action: initAction,
			},
			{
				Name:   "status",
				Usage:  "print ledger counts per source",
				Action: statusAction,
			},
			{
				Name:  "forget",
				Usage: "remove every ledger entry of a source",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "source",
						Usage:    "source name as configured",
						Required: true,
					},
				},
				Action: forgetAction,
			},
		},
		// Exit codes are derived in run.
		ExitErrHandler: func(*cli.Context, error) {},
	}
}

// loadEnvFile loads an explicitly named file, failing when it is missing, or a
// .env in the working directory when it exists.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("could not load env file %s: %w", path, err)
		}
		return nil
	}

	err := godotenv.Load()
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not load .env: %w", err)
	}
	return nil
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	conf, err := config.ReadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}

	if conf.Loglevel != nil {
		log.SetLogLevel(*conf.Loglevel)
	}
	if level := c.String("log-level"); level != "" {
		log.SetLogLevel(level)
	}
	return conf, nil
}

func transferAction(c *cli.Context) error {
	logger := log.Logger(log.LOG_MAIN)

	conf, err := loadConfig(c)
	if err != nil {
		return err
	}

	sources, err := scheduler.SourcesFromConfig(conf)
	if err != nil {
		return err
	}

	openState := persistence.NewPersistence
	if c.Bool("init-ledger") {
		openState = persistence.InitPersistence
	}
	p, err := openState(conf.StateFile)
	if err != nil {
		if errors.Is(err, persistence.ErrLedgerMissing) {
			logger.WithField("file", conf.StateFile).Error("Ledger not found. Run init for a first start, restore the file otherwise")
		}
		return err
	}
	defer p.Close()

	m := metrics.NewMetrics()
	configs := []transfer.ConfigFunc{transfer.WithMetrics(m)}
	if conf.DryRun {
		configs = append(configs, transfer.DryRun())
	}
	if conf.MaxMessagesPerCycle > 0 {
		configs = append(configs, transfer.MaxMessagesPerCycle(conf.MaxMessagesPerCycle))
	}

	t, err := transfer.NewTransferrer(p, configs...)
	if err != nil {
		return err
	}

	s, err := scheduler.NewScheduler(t, sources, scheduler.Concurrency(conf.Concurrency), scheduler.WithMetrics(m))
	if err != nil {
		return err
	}

	if conf.MetricsListen != "" {
		go func() {
			err := m.Serve(c.Context, conf.MetricsListen)
			if err != nil {
				logger.WithField("error", err).Error("Metrics endpoint stopped")
			}
		}()
	}

	logger.WithFields(logrus.Fields{"sources": len(sources), "dryrun": conf.DryRun, "once": c.Bool("once")}).Info("Starting")
	if conf.DryRun {
		logger.Warn("Skipping append & delete due to dry-run")
	}

	if !c.Bool("once") {
		return s.Run(c.Context)
	}

	report, err := s.RunOnce(c.Context)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if len(report.Failed) > 0 {
		return &sourcesFailedError{failed: report.Failed}
	}
	return nil
}

func openLedger(c *cli.Context) (*persistence.Persistence, error) {
	conf, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	return persistence.NewPersistence(conf.StateFile)
}

func initAction(c *cli.Context) error {
	conf, err := loadConfig(c)
	if err != nil {
		return err
	}

	p, err := persistence.InitPersistence(conf.StateFile)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "ledger ready at %s\n", conf.StateFile)
	return p.Close()
}

func statusAction(c *cli.Context) error {
	p, err := openLedger(c)
	if err != nil {
		return err
	}
	defer p.Close()

	stats, err := p.Stats(c.Context)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tPENDING\tAPPENDED\tDELETED\tFAILED")
	for _, s := range stats {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", s.SourceId, s.Pending, s.Appended, s.Deleted, s.Failed)
	}
	return w.Flush()
}

func forgetAction(c *cli.Context) error {
	p, err := openLedger(c)
	if err != nil {
		return err
	}
	defer p.Close()

	source := c.String("source")
	removed, err := p.ForgetSource(c.Context, source)
	if err != nil {
		return err
	}

	log.Logger(log.LOG_MAIN).WithFields(logrus.Fields{"source": source, "entries": removed}).Info("Forgot source")
	fmt.Fprintf(c.App.Writer, "removed %d entries of %s\n", removed, source)
	return nil
}
