package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/chunkcache/bench"
)

// op runs one harness operation and prints its result.
type op func(ctx context.Context, h *bench.Harness, out io.Writer) error

var ops = map[string]op{
	"set":     opStore,
	"get":     opFetch,
	"count":   opCount,
	"cleanup": opCleanup,
	"clear":   opClear,
}

// parseOps splits a comma separated list of operation names.
func parseOps(list string) ([]op, error) {
	var out []op
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		fn, ok := ops[name]
		if !ok {
			return nil, fmt.Errorf("unknown operation %q", name)
		}
		out = append(out, fn)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no operations given")
	}
	return out, nil
}

func opStore(ctx context.Context, h *bench.Harness, out io.Writer) error {
	res, err := h.Store(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "set   %s: %d item(s) of %s in %s chunk(s), generate %s, set %s, hash %s\n",
		res.Key, res.Items, humanize.IBytes(uint64(res.ItemSize)), humanize.Comma(int64(res.Chunks)),
		round(res.GenerateTime), round(res.SetTime), res.Hash)
	return nil
}

func opFetch(ctx context.Context, h *bench.Harness, out io.Writer) error {
	res, err := h.Fetch(ctx)
	if err != nil {
		return err
	}
	if res.Found == 0 {
		fmt.Fprintf(out, "get   %s: not found (%s)\n", res.Key, round(res.GetTime))
		return nil
	}
	fmt.Fprintf(out, "get   %s: %d item(s), %s in %s, hash %s\n",
		res.Key, res.Found, humanize.IBytes(uint64(res.Bytes)), round(res.GetTime), res.Hash)
	return nil
}

func opCount(ctx context.Context, h *bench.Harness, out io.Writer) error {
	res, err := h.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "count %s chunk(s) (%s)\n", humanize.Comma(int64(res.Count)), round(res.Time))
	return nil
}

func opCleanup(ctx context.Context, h *bench.Harness, out io.Writer) error {
	res, err := h.Cleanup(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "cleanup removed %s chunk(s) (%s)\n", humanize.Comma(int64(res.Removed)), round(res.Time))
	return nil
}

func opClear(ctx context.Context, h *bench.Harness, out io.Writer) error {
	res, err := h.Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "clear done (%s)\n", round(res.Time))
	return nil
}

func round(d time.Duration) time.Duration {
	switch {
	case d >= time.Second:
		return d.Round(time.Millisecond)
	case d >= time.Millisecond:
		return d.Round(10 * time.Microsecond)
	default:
		return d.Round(time.Microsecond)
	}
}
