package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"partsmarket/db"
	"partsmarket/internal/mailintake"
	"partsmarket/internal/telemetry"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start the background worker",
	Long:  `Poll the order mailbox and push orders without a deal to the CRM on a schedule`,
	RunE:  runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbConn, err := connect(cfg.DB)
	if err != nil {
		return err
	}
	defer dbConn.Close()
	store := db.NewStorage(dbConn)
	metrics := telemetry.Global()

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}

	if cfg.Mail.Enabled {
		poller := mailintake.NewPoller(mailintake.IMAPDialer(cfg.Mail), store, cfg.Mail.SubjectPrefix, metrics)
		if err := addJob(ctx, scheduler, "mail", cfg.Worker.MailInterval, poller.Poll); err != nil {
			return err
		}
	}

	if syncer := newSyncer(cfg.CRM, store, metrics); syncer != nil {
		batch := cfg.Worker.CRMBatch
		if err := addJob(ctx, scheduler, "crm", cfg.Worker.CRMInterval, func(ctx context.Context) (int, error) {
			return syncer.Reconcile(ctx, batch)
		}); err != nil {
			return err
		}
	}

	if len(scheduler.Jobs()) == 0 {
		log.Warn().Msg("No jobs enabled, worker has nothing to do")
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		scheduler.Start()
		<-ctx.Done()
		return scheduler.Shutdown()
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
		return err
	}
	log.Info().Msg("Worker shutting down gracefully")
	return nil
}

// addJob регистрирует периодическую задачу; повторный запуск не стартует, пока идёт предыдущий
func addJob(ctx context.Context, s gocron.Scheduler, name string, every time.Duration, run func(context.Context) (int, error)) error {
	_, err := s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			n, err := run(ctx)
			if err != nil {
				log.Error().Err(err).Str("job", name).Msg("Job failed")
				return
			}
			if n > 0 {
				log.Info().Str("job", name).Int("processed", n).Msg("Job done")
			}
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	return err
}
