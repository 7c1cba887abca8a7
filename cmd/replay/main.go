// replay runs a recorded content history through the update pipeline
// against a throwaway database and compares the per-dimension actions to
// the fixture's expectations. Exit code 1 on divergence.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/danielpatrickdp/content-autopilot/internal/config"
	"github.com/danielpatrickdp/content-autopilot/internal/record"
	"github.com/danielpatrickdp/content-autopilot/internal/replay"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	verbose := flag.Bool("v", false, "print weights after every cycle")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [-v]")
		os.Exit(2)
	}

	f, err := replay.LoadFixture(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		os.Exit(2)
	}

	outcomes, summary, err := replay.Run(f, config.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(2)
	}

	if f.Description != "" {
		fmt.Println(f.Description)
	}
	for _, o := range outcomes {
		fmt.Printf("\ncycle %s (window %d, recent %d)\n",
			o.CycleID, o.Result.WindowSize, o.Result.RecentCount)
		for _, d := range record.Dimensions() {
			dr := o.Result.Dimensions[d]
			fmt.Printf("  %-14s %s\n", d, dr.Action)
		}
		if *verbose {
			printWeights(o.Weights)
		}
	}

	fmt.Printf("\nSummary: %d cycles, %d dimension updates, %d held",
		summary.TotalCycles, summary.Updated, summary.Held)
	if summary.RecoveryEntered > 0 {
		fmt.Printf(", recovery entered %dx", summary.RecoveryEntered)
	}
	fmt.Println()

	if len(summary.Mismatches) > 0 {
		fmt.Printf("\n%d divergences from expected actions:\n", len(summary.Mismatches))
		for _, m := range summary.Mismatches {
			fmt.Printf("  cycle %s %s: expected %s, got %s\n", m.CycleID, m.Dimension, m.Expected, m.Actual)
		}
		os.Exit(1)
	}
}

func printWeights(byDim map[record.Dimension]map[string]float64) {
	for _, d := range record.Dimensions() {
		w := byDim[d]
		arms := make([]string, 0, len(w))
		for arm := range w {
			arms = append(arms, arm)
		}
		sort.Strings(arms)
		fmt.Printf("    %s:", d)
		for _, arm := range arms {
			fmt.Printf(" %s=%.3f", arm, w[arm])
		}
		fmt.Println()
	}
}

// #endregion main
