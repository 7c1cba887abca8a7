// inspect prints the current selection weights, recovery state, update
// history, and record pipeline counts from an autopilot database.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"sort"

	"github.com/danielpatrickdp/content-autopilot/internal/config"
	"github.com/danielpatrickdp/content-autopilot/internal/record"
	"github.com/danielpatrickdp/content-autopilot/internal/weights"
)

// #region main

func main() {
	dimension := flag.String("dimension", "", "limit output to one dimension")
	history := flag.Int("history", 0, "show N most recent updates per dimension")
	recent := flag.Int("recent", 0, "show N most recent content records")
	jsonOut := flag.Bool("json", false, "output as JSON instead of text")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	store, err := record.NewStore(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open record store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()
	weightStore, err := weights.NewStore(store.DB())
	if err != nil {
		fmt.Fprintf(os.Stderr, "open weight store: %v\n", err)
		os.Exit(1)
	}

	if err := run(store, weightStore, *dimension, *history, *recent, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region output

type dimensionOutput struct {
	Dimension string                 `json:"dimension"`
	Version   int64                  `json:"version"`
	Weights   map[string]float64     `json:"weights"`
	History   []weights.HistoryEntry `json:"history,omitempty"`
}

type inspectOutput struct {
	Dimensions []dimensionOutput     `json:"dimensions"`
	Recovery   weights.RecoveryState `json:"recovery"`
	Records    map[string]int        `json:"records"`
	Recent     []recentRecord        `json:"recent,omitempty"`
}

type recentRecord struct {
	ID        string   `json:"id"`
	Status    string   `json:"status"`
	Mode      string   `json:"mode"`
	Category  string   `json:"category"`
	Published string   `json:"published_at,omitempty"`
	Retention *float64 `json:"actual_retention,omitempty"`
	Views     *int64   `json:"views,omitempty"`
}

func run(store *record.Store, weightStore *weights.Store, dimFilter string, historyN, recentN int, jsonOut bool) error {
	out := inspectOutput{Records: make(map[string]int)}

	for _, d := range record.Dimensions() {
		if dimFilter != "" && string(d) != dimFilter {
			continue
		}
		st, err := weightStore.GetDimension(d)
		if err != nil {
			return err
		}
		do := dimensionOutput{
			Dimension: string(d),
			Version:   st.Version,
			Weights:   st.Weights,
		}
		if historyN > 0 {
			entries, err := weightStore.History(d, historyN)
			if err != nil {
				return err
			}
			do.History = entries
		}
		out.Dimensions = append(out.Dimensions, do)
	}

	recovery, err := weightStore.GetRecovery()
	if err != nil {
		return err
	}
	out.Recovery = recovery

	counts, err := store.StatusCounts()
	if err != nil {
		return err
	}
	for st, n := range counts {
		out.Records[string(st)] = n
	}

	if recentN > 0 {
		recs, err := store.ListRecent(recentN)
		if err != nil {
			return err
		}
		for _, rec := range recs {
			rr := recentRecord{
				ID:        rec.ID,
				Status:    string(rec.Status),
				Mode:      rec.Mode,
				Category:  rec.Category,
				Retention: rec.ActualRetention,
				Views:     rec.Views,
			}
			if rec.PublishedAt != nil {
				rr.Published = rec.PublishedAt.Format("2006-01-02 15:04")
			}
			out.Recent = append(out.Recent, rr)
		}
	}

	if jsonOut {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}
	printText(out)
	return nil
}

func printText(out inspectOutput) {
	for _, do := range out.Dimensions {
		fmt.Printf("%s (v%d)\n", do.Dimension, do.Version)
		arms := make([]string, 0, len(do.Weights))
		for arm := range do.Weights {
			arms = append(arms, arm)
		}
		sort.Strings(arms)
		for _, arm := range arms {
			fmt.Printf("  %-14s %.3f\n", arm, do.Weights[arm])
		}
		for _, h := range do.History {
			fmt.Printf("  v%-4d %-20s %s  %s\n",
				h.Version, h.Action, h.CreatedAt.Format("2006-01-02 15:04"), h.Reason)
		}
		fmt.Println()
	}

	if out.Recovery.Active {
		fmt.Printf("recovery: ACTIVE (consecutive low: %d, since %s)\n",
			out.Recovery.ConsecutiveLow, out.Recovery.UpdatedAt.Format("2006-01-02"))
	} else {
		fmt.Printf("recovery: inactive (consecutive low: %d)\n", out.Recovery.ConsecutiveLow)
	}

	if len(out.Recent) > 0 {
		fmt.Println("recent:")
		for _, r := range out.Recent {
			line := fmt.Sprintf("  %-38s %-8s %-8s %-12s", r.ID, r.Status, r.Mode, r.Category)
			if r.Published != "" {
				line += "  " + r.Published
			}
			if r.Retention != nil {
				line += fmt.Sprintf("  ret=%.1f", *r.Retention)
			}
			if r.Views != nil {
				line += fmt.Sprintf(" views=%d", *r.Views)
			}
			fmt.Println(line)
		}
		fmt.Println()
	}

	statuses := make([]string, 0, len(out.Records))
	for st := range out.Records {
		statuses = append(statuses, st)
	}
	sort.Strings(statuses)
	fmt.Printf("records:")
	for _, st := range statuses {
		fmt.Printf(" %s=%d", st, out.Records[st])
	}
	fmt.Println()
}

// #endregion output
