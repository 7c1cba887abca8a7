// ingest records content lifecycle events: a new piece of content with
// its chosen parameters, the publish link, and the measured outcome once
// analytics arrive.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/content-autopilot/internal/config"
	"github.com/danielpatrickdp/content-autopilot/internal/record"
)

// #region main

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd := os.Args[1]
	args := os.Args[2:]

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

	switch cmd {
	case "new":
		err = runNew(store, args)
	case "link":
		err = runLink(store, args)
	case "complete":
		err = runComplete(store, args)
	case "fail":
		err = runFail(store, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ingest new --mode M --title T --hook H --category C --predicted P [flags]")
	fmt.Fprintln(os.Stderr, "       ingest link --id ID [--published RFC3339]")
	fmt.Fprintln(os.Stderr, "       ingest complete --id ID --retention R --views V --swipe-rate S")
	fmt.Fprintln(os.Stderr, "       ingest fail --id ID")
}

// #endregion main

// #region new

func runNew(store *record.Store, args []string) error {
	fs := flag.NewFlagSet("new", flag.ExitOnError)
	id := fs.String("id", "", "record id (generated when empty)")
	mode := fs.String("mode", "", "generation mode arm")
	title := fs.String("title", "", "title style arm")
	hook := fs.String("hook", "", "hook style arm")
	category := fs.String("category", "", "category arm")
	predicted := fs.Float64("predicted", 0, "predicted retention (pp)")
	firstScore := fs.Float64("first-score", -1, "score before refinement")
	finalScore := fs.Float64("final-score", -1, "score after refinement")
	refines := fs.Int("refines", 0, "refinement passes")
	test := fs.Bool("test", false, "mark as a test record, excluded from learning")
	fs.Parse(args)

	if *mode == "" || *title == "" || *hook == "" || *category == "" {
		return fmt.Errorf("mode, title, hook, and category are required")
	}

	rec := record.ContentRecord{
		ID:                 *id,
		CreatedAt:          time.Now().UTC(),
		Mode:               *mode,
		TitleStyle:         *title,
		HookStyle:          *hook,
		Category:           *category,
		RefineCount:        *refines,
		PredictedRetention: *predicted,
		Eligible:           !*test,
		Status:             record.StatusPending,
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if *test {
		rec.Status = record.StatusTest
	}
	if *firstScore >= 0 {
		rec.FirstScore = firstScore
	}
	if *finalScore >= 0 {
		rec.FinalScore = finalScore
	}

	if err := store.Insert(rec); err != nil {
		return err
	}
	fmt.Println(rec.ID)
	return nil
}

// #endregion new

// #region transitions

func runLink(store *record.Store, args []string) error {
	fs := flag.NewFlagSet("link", flag.ExitOnError)
	id := fs.String("id", "", "record id")
	published := fs.String("published", "", "publish time, RFC3339 (default now)")
	fs.Parse(args)
	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	at := time.Now().UTC()
	if *published != "" {
		t, err := time.Parse(time.RFC3339, *published)
		if err != nil {
			return fmt.Errorf("bad --published: %w", err)
		}
		at = t
	}
	return store.MarkLinked(*id, at)
}

func runComplete(store *record.Store, args []string) error {
	fs := flag.NewFlagSet("complete", flag.ExitOnError)
	id := fs.String("id", "", "record id")
	retention := fs.Float64("retention", -1, "measured retention (pp)")
	views := fs.Int64("views", -1, "view count")
	swipeRate := fs.Float64("swipe-rate", -1, "swipe-away rate in [0,1]")
	fs.Parse(args)
	if *id == "" || *retention < 0 || *views < 0 || *swipeRate < 0 {
		return fmt.Errorf("--id, --retention, --views, and --swipe-rate are required")
	}
	return store.MarkComplete(*id, *retention, *views, *swipeRate, time.Now().UTC())
}

func runFail(store *record.Store, args []string) error {
	fs := flag.NewFlagSet("fail", flag.ExitOnError)
	id := fs.String("id", "", "record id")
	fs.Parse(args)
	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	return store.MarkFailed(*id)
}

// #endregion transitions
