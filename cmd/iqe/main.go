// Package main provides the iqe CLI entry point: a thin driver over
// pkg/qe for explaining plans and running small demo queries against an
// in-memory KV store.
//
// Grounded on cmd/nornicdb/main.go's rootCmd/subcommand structure: a
// cobra root command, subcommands with RunE, flags read back inside the
// handler.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orneryd/iqe/pkg/catalogue"
	"github.com/orneryd/iqe/pkg/config"
	"github.com/orneryd/iqe/pkg/ftindex"
	"github.com/orneryd/iqe/pkg/kvt"
	"github.com/orneryd/iqe/pkg/qe"
	"github.com/orneryd/iqe/pkg/thing"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "iqe",
		Short: "Index-aware query executor demo CLI",
		Long: `iqe exercises the index-aware query executor standalone: load a
YAML index catalogue, run a canned query against an in-memory KV store, and
print either the resulting Things or the plan's structured explanation.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("iqe v%s\n", version)
		},
	})

	explainCmd := &cobra.Command{
		Use:   "explain",
		Short: "Load a catalogue and print the explain() output for a demo equality plan",
		RunE:  runExplain,
	}
	explainCmd.Flags().String("catalogue", "", "Path to a YAML catalogue file (defaults to a built-in demo catalogue)")
	rootCmd.AddCommand(explainCmd)

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the full-text Matches + score demo scenario end to end",
		RunE:  runDemo,
	}
	rootCmd.AddCommand(demoCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func demoCatalogue() *catalogue.Catalogue {
	return catalogue.New(
		catalogue.IndexDef{Name: "by_n", Table: "t", Fields: []string{"n"}, Kind: catalogue.KindIdx},
		catalogue.IndexDef{
			Name: "by_text", Table: "t", Fields: []string{"body"}, Kind: catalogue.KindSearch,
			Search: &catalogue.SearchParams{Analyzer: "default", BM25K1: 1.2, BM25B: 0.75},
		},
	)
}

func runExplain(cmd *cobra.Command, args []string) error {
	cataloguePath, _ := cmd.Flags().GetString("catalogue")

	var cat *catalogue.Catalogue
	if cataloguePath != "" {
		loaded, err := catalogue.LoadYAML(cataloguePath)
		if err != nil {
			return fmt.Errorf("iqe: load catalogue: %w", err)
		}
		cat = loaded
	} else {
		cat = demoCatalogue()
	}

	cfg := config.LoadFromEnv()
	store := kvt.NewMemoryStore()
	tx := store.Begin(true)
	defer tx.Cancel(context.Background())

	idx := qe.IndexesMap{
		Options: []qe.OptionEntry{
			{Expression: "n = 5", Option: catalogue.IndexOption{IxRef: 0, Op: catalogue.Equality(5)}},
		},
		Definitions: cat.Definitions,
	}
	executor, err := qe.New("t", idx, nil, cat, qe.Config{Namespace: cfg.Namespace, Database: cfg.Database, Tx: tx})
	if err != nil {
		return fmt.Errorf("iqe: build executor: %w", err)
	}
	ref := executor.AddIteratorEntry(qe.IteratorEntry{Single: true, Expression: "n = 5", Option: idx.Options[0].Option})
	executor.Freeze()

	explanation, ok := executor.Explain(ref)
	if !ok {
		return fmt.Errorf("iqe: no explanation for iterator %d", ref)
	}
	fmt.Printf("%+v\n", explanation)
	return nil
}

func runDemo(cmd *cobra.Command, args []string) error {
	cat := demoCatalogue()
	store := kvt.NewMemoryStore()
	tx := store.Begin(true)
	defer tx.Cancel(context.Background())

	ftRef := thing.IndexRef(1)
	idx := ftindex.New(ftindex.NewAnalyzer("default"), 1.2, 0.75)
	idx.IndexDocument(thing.New("t", "1"), "the quick brown fox")
	idx.IndexDocument(thing.New("t", "2"), "lazy dog")
	idx.IndexDocument(thing.New("t", "3"), "quick dog")

	matchRef := thing.MatchRef(1)
	opts := qe.IndexesMap{
		Options: []qe.OptionEntry{
			{Expression: "body @1@ matches 'quick dog'", Option: catalogue.IndexOption{IxRef: ftRef, Op: catalogue.Matches("quick dog", &matchRef)}},
		},
		Definitions: cat.Definitions,
	}

	executor, err := qe.New("t", opts, nil, cat, qe.Config{
		Namespace:  "demo",
		Database:   "demo",
		Tx:         tx,
		FTSessions: map[thing.IndexRef]*ftindex.Index{ftRef: idx},
	})
	if err != nil {
		return fmt.Errorf("iqe: build executor: %w", err)
	}

	ref := executor.AddIteratorEntry(qe.IteratorEntry{Single: true, Expression: opts.Options[0].Expression, Option: opts.Options[0].Option})
	executor.Freeze()

	it, ok, err := executor.NewIterator(ref)
	if err != nil {
		return fmt.Errorf("iqe: new_iterator: %w", err)
	}
	if !ok {
		fmt.Println("no iterator produced; falling back to table scan (not implemented in this demo)")
		return nil
	}

	ctx := context.Background()
	for {
		batch, err := it.Next(ctx, 16)
		if err != nil {
			return fmt.Errorf("iqe: iterator next: %w", err)
		}
		if len(batch) == 0 {
			break
		}
		for _, t := range batch {
			score, ok, err := executor.Score(matchRef, t, nil)
			if err != nil {
				return err
			}
			fmt.Printf("%s score=%v ok=%v\n", t, score, ok)
		}
	}
	return nil
}
