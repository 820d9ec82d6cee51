package main

import (
	"fmt"

	"github.com/maruel/subcommands"

	"github.com/hupe1980/chunkcache/internal/session"
)

var cmdSession = &subcommands.Command{
	UsageLine: "session [flags]",
	ShortDesc: "prints or resets the persisted session",
	LongDesc: `Prints the session the benchmark runs under: cache key, cache buster, item
counter and the last chunk limit. -reset-buster hides every stored item,
-reset starts over with a new cache key.`,
	CommandRun: func() subcommands.CommandRun {
		c := &sessionRun{}
		c.initFlags()
		c.Flags.BoolVar(&c.resetBuster, "reset-buster", false, "mint a new cache buster")
		c.Flags.BoolVar(&c.resetCounter, "reset-counter", false, "reset the item counter")
		c.Flags.BoolVar(&c.reset, "reset", false, "replace the whole session")
		return c
	},
}

type sessionRun struct {
	commandBase

	resetBuster  bool
	resetCounter bool
	reset        bool
}

func (c *sessionRun) Run(a subcommands.Application, args []string, _ subcommands.Env) int {
	if len(args) != 0 {
		reportErr(a, fmt.Errorf("unexpected arguments: %v", args))
		return ecArgs
	}

	cfg, err := c.loadConfig()
	if err != nil {
		reportErr(a, err)
		return ecSetup
	}
	if cfg.Session == "" {
		reportErr(a, fmt.Errorf("no session file configured, use -session or the session setting"))
		return ecArgs
	}

	s, err := session.Open(cfg.Session)
	if err != nil {
		reportErr(a, err)
		return ecSetup
	}

	if err := c.apply(s); err != nil {
		reportErr(a, err)
		return ecFailed
	}

	st := s.State()
	out := a.GetOut()
	fmt.Fprintf(out, "file:       %s\n", s.Path())
	fmt.Fprintf(out, "cache key:  %s\n", st.CacheKey)
	fmt.Fprintf(out, "buster:     %s\n", st.CacheBuster)
	fmt.Fprintf(out, "counter:    %d\n", st.Counter)
	if n, ok := s.MaxTotalChunks(); ok {
		fmt.Fprintf(out, "max chunks: %d\n", n)
	}
	return ecOK
}

func (c *sessionRun) apply(s *session.Store) error {
	if c.reset {
		return s.Reset()
	}
	if c.resetBuster {
		if _, err := s.ResetCacheBuster(); err != nil {
			return err
		}
	}
	if c.resetCounter {
		return s.ResetCounter()
	}
	return nil
}
