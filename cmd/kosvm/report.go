package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chazu/kosvm/statstore"
	"github.com/chazu/kosvm/vm/image"
	"github.com/chazu/kosvm/vm/ops"
)

func printListing(w io.Writer, path string) error {
	program, err := image.Load(path, ops.Builtins)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, ops.DisassembleWithName(program, path))
	return err
}

func printHistory(w io.Writer, dbPath string, limit int) error {
	if dbPath == "" {
		return errors.New("no run history configured (set [stats] database or KOSVM_STATS_DB)")
	}
	store, err := statstore.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	runs, err := store.Recent(ctx, limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		status := "ended"
		if r.Aborted {
			status = "aborted"
		}
		fmt.Fprintf(w, "%s  %s  ctx %-3d %8d instr  %10s  %s\n",
			r.Started.Local().Format("2006-01-02 15:04:05"), r.RunID, r.ContextID, r.Instructions, r.Duration, status)
	}

	sum, err := store.Summarize(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d runs, %d aborted, %d instructions, %s total\n", sum.Runs, sum.Aborted, sum.Instructions, sum.Duration)
	return nil
}
