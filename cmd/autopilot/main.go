package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/danielpatrickdp/content-autopilot/internal/config"
	"github.com/danielpatrickdp/content-autopilot/internal/engine"
	"github.com/danielpatrickdp/content-autopilot/internal/record"
	"github.com/danielpatrickdp/content-autopilot/internal/report"
	"github.com/danielpatrickdp/content-autopilot/internal/weights"
)

// #region main

func main() {
	once := flag.Bool("once", false, "run a single update cycle and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := record.NewStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("open record store: %v", err)
	}
	defer store.Close()

	weightStore, err := weights.NewStore(store.DB())
	if err != nil {
		log.Fatalf("open weight store: %v", err)
	}

	eng := engine.New(store, weightStore, cfg)
	if err := eng.Seed(); err != nil {
		log.Fatalf("seed weights: %v", err)
	}

	if *once {
		if err := runCycle(eng); err != nil {
			log.Fatalf("cycle: %v", err)
		}
		return
	}

	// A cycle that overruns its slot is skipped rather than stacked: two
	// concurrent cycles would just fight over the version counter.
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))
	_, err = c.AddFunc(cfg.Schedule, func() {
		if err := runCycle(eng); err != nil {
			log.Printf("[AUTOPILOT] cycle failed: %v", err)
		}
	})
	if err != nil {
		log.Fatalf("bad schedule %q: %v", cfg.Schedule, err)
	}

	c.Start()
	log.Printf("[AUTOPILOT] scheduled update cycle (%s), db=%s", cfg.Schedule, cfg.DBPath)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Printf("[AUTOPILOT] shutting down")
	<-c.Stop().Done()
}

func runCycle(eng *engine.Engine) error {
	result, err := eng.RunCycle(time.Now().UTC())
	if err != nil {
		return err
	}
	report.RenderCycle(os.Stdout, result)
	return nil
}

// #endregion main
