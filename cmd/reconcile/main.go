package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/splax/teamhub/internal/app/bootstrap"
	"github.com/splax/teamhub/internal/notify"
	"github.com/splax/teamhub/internal/service/team"
	"github.com/splax/teamhub/pkg/config"
	"github.com/splax/teamhub/pkg/logger"
)

func main() {
	teamID := flag.String("team", "", "team id to reconcile (default: every team)")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall timeout")
	flag.Parse()

	cfg, err := config.LoadAPIConfig()
	if err != nil {
		logger.New("reconcile", "development", "info").Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := logger.New("reconcile", cfg.Environment, cfg.LogLevel)
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, err := bootstrap.OpenStore(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer store.Close()

	svc := team.New(store, notify.Discard, log, nil)

	var reports []team.ReconcileReport
	if *teamID != "" {
		report, err := svc.Reconcile(ctx, *teamID)
		if err != nil {
			log.Error("reconcile failed", "team_id", *teamID, "error", err)
			os.Exit(1)
		}
		reports = append(reports, *report)
	} else {
		// Failed teams are reported in err; the rest still ran.
		reports, err = svc.ReconcileAll(ctx)
	}

	changed := 0
	for _, r := range reports {
		if !r.Changed() {
			continue
		}
		changed++
		log.Info("team reconciled", "team_id", r.TeamID, "restored", r.Restored, "pruned", r.Pruned, "missing", r.Missing)
	}
	if err != nil {
		log.Error("reconcile finished with errors", "teams", len(reports), "changed", changed, "error", err)
		os.Exit(1)
	}
	log.Info("reconcile completed", "teams", len(reports), "changed", changed)
}
