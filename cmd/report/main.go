// report generates the calibration diagnostics over the current signal
// window and prints them as plain text.
package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/danielpatrickdp/content-autopilot/internal/config"
	"github.com/danielpatrickdp/content-autopilot/internal/engine"
	"github.com/danielpatrickdp/content-autopilot/internal/record"
	"github.com/danielpatrickdp/content-autopilot/internal/report"
	"github.com/danielpatrickdp/content-autopilot/internal/weights"
)

func main() {
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
	rep, err := eng.Calibrate(time.Now().UTC())
	if err != nil {
		log.Fatalf("calibrate: %v", err)
	}
	report.RenderCalibration(os.Stdout, rep)
}
