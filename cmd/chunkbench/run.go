package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/maruel/subcommands"
)

var cmdRun = &subcommands.Command{
	UsageLine: "run [flags]",
	ShortDesc: "runs a fixed sequence of cache operations",
	LongDesc: `Runs a comma separated list of operations against a fresh cache and prints
their timings. Operations: set, get, count, cleanup, clear.`,
	CommandRun: func() subcommands.CommandRun {
		c := &runRun{}
		c.initFlags()
		c.Flags.StringVar(&c.ops, "ops", "set,get,count,cleanup", "comma separated `operations` to run")
		c.Flags.IntVar(&c.repeat, "repeat", 1, "number of times to run the operations")
		return c
	},
}

type runRun struct {
	commandBase

	ops    string
	repeat int
}

func (c *runRun) Run(a subcommands.Application, args []string, _ subcommands.Env) int {
	if len(args) != 0 || c.repeat < 1 {
		reportErr(a, fmt.Errorf("unexpected arguments or -repeat below 1"))
		return ecArgs
	}
	list, err := parseOps(c.ops)
	if err != nil {
		reportErr(a, err)
		return ecArgs
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := c.setup(ctx)
	if err != nil {
		reportErr(a, err)
		return ecSetup
	}
	defer func() {
		if err := env.close(context.Background()); err != nil {
			reportErr(a, err)
		}
	}()

	if err := env.harness.Wait(ctx); err != nil {
		reportErr(a, err)
		return ecSetup
	}

	if err := runOps(ctx, env, list, c.repeat, a.GetOut()); err != nil {
		reportErr(a, err)
		return ecFailed
	}
	return ecOK
}

func runOps(ctx context.Context, env *environment, list []op, repeat int, out io.Writer) error {
	for range repeat {
		for _, fn := range list {
			if err := fn(ctx, env.harness, out); err != nil {
				return err
			}
		}
	}
	return nil
}
