package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/dustin/go-humanize"
	"github.com/maruel/subcommands"

	"github.com/hupe1980/chunkcache/bench"
	"github.com/hupe1980/chunkcache/internal/config"
	"github.com/hupe1980/chunkcache/resource"
)

const prompt = "\033[32mchunkbench>\033[0m "

var cmdShell = &subcommands.Command{
	UsageLine: "shell [flags]",
	ShortDesc: "starts an interactive benchmark shell",
	LongDesc: `Starts an interactive shell to run cache operations and change the chunk
size, the chunk limit and the item size between runs. When -config is given,
edits to the file are applied while the shell runs. Type "help" for commands.`,
	CommandRun: func() subcommands.CommandRun {
		c := &shellRun{}
		c.initFlags()
		c.Flags.StringVar(&c.history, "history", "", "readline history `file`")
		return c
	},
}

type shellRun struct {
	commandBase

	history string
}

func (c *shellRun) Run(a subcommands.Application, args []string, _ subcommands.Env) int {
	if len(args) != 0 {
		reportErr(a, fmt.Errorf("unexpected arguments: %v", args))
		return ecArgs
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
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

	l, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       c.history,
		AutoComplete:      completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "quit",
		HistorySearchFold: true,
	})
	if err != nil {
		reportErr(a, err)
		return ecSetup
	}
	defer l.Close()

	sh := &shell{env: env, out: l.Stdout(), last: formFromConfig(env.cfg)}

	if c.configPath != "" {
		if err := config.Watch(ctx, c.configPath, sh.reload); err != nil {
			reportErr(a, err)
			return ecSetup
		}
	}

	fmt.Fprintln(sh.out, `chunkbench shell, type "help" for commands`)
	for {
		line, err := l.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return ecOK
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return ecOK
		}
		if err != nil {
			reportErr(a, err)
			return ecFailed
		}

		if quit := sh.exec(ctx, line); quit {
			return ecOK
		}
	}
}

func completer() *readline.PrefixCompleter {
	items := make([]readline.PrefixCompleterInterface, 0, len(shellCommands))
	for _, cmd := range shellCommands {
		items = append(items, readline.PcItem(cmd.name))
	}
	return readline.NewPrefixCompleter(items...)
}

// shell executes shell command lines against an environment.
type shell struct {
	env *environment
	out io.Writer

	mu   sync.Mutex
	last bench.Form // form of the last loaded config file
}

type shellCommand struct {
	name  string
	args  string
	usage string
	run   func(s *shell, ctx context.Context, args []string) error
}

var shellCommands []shellCommand

func init() {
	// Assigned in init because help refers to the table.
	shellCommands = []shellCommand{
		{name: "set", usage: "generate and store the next batch of items", run: runOp(opStore)},
		{name: "get", usage: "read the most recently stored batch", run: runOp(opFetch)},
		{name: "count", usage: "count stored chunks", run: runOp(opCount)},
		{name: "cleanup", usage: "evict expired and excess chunks", run: runOp(opCleanup)},
		{name: "clear", usage: "remove every chunk and reset the item counter", run: runOp(opClear)},
		{name: "item-size", args: "<size>", usage: "set the generated item size, e.g. 64KiB", run: (*shell).itemSize},
		{name: "items", args: "<n>", usage: "set the number of items per set", run: (*shell).numItems},
		{name: "chunk-size", args: "<size>", usage: "set the chunk size, rebuilds the cache", run: (*shell).chunkSize},
		{name: "max-chunks", args: "<n>", usage: "set the chunk limit, rebuilds the cache", run: (*shell).maxChunks},
		{name: "reset-buster", usage: "mint a new cache buster, hides every stored item", run: (*shell).resetBuster},
		{name: "status", usage: "show form values, cache state and session", run: (*shell).status},
		{name: "help", usage: "show this help", run: (*shell).help},
		{name: "quit", usage: "leave the shell"},
	}
}

func runOp(fn op) func(*shell, context.Context, []string) error {
	return func(s *shell, ctx context.Context, _ []string) error {
		return fn(ctx, s.env.harness, s.out)
	}
}

// exec runs one command line and reports whether the shell should exit.
func (s *shell) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := fields[0], fields[1:]
	if name == "quit" || name == "exit" {
		return true
	}

	for _, cmd := range shellCommands {
		if cmd.name != name {
			continue
		}
		if cmd.args != "" && len(args) != 1 {
			fmt.Fprintf(s.out, "usage: %s %s\n", cmd.name, cmd.args)
			return false
		}
		if err := cmd.run(s, ctx, args); err != nil {
			fmt.Fprintf(s.out, "error: %v\n", err)
		}
		return false
	}

	fmt.Fprintf(s.out, "unknown command %q, type \"help\"\n", name)
	return false
}

func (s *shell) itemSize(_ context.Context, args []string) error {
	n, err := config.ParseSize(args[0])
	if err != nil {
		return err
	}
	if err := s.env.harness.SetItemSize(n.Int()); err != nil {
		return err
	}
	s.printForm()
	return nil
}

func (s *shell) numItems(_ context.Context, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	if err := s.env.harness.SetNumItems(n); err != nil {
		return err
	}
	s.printForm()
	return nil
}

func (s *shell) chunkSize(_ context.Context, args []string) error {
	n, err := config.ParseSize(args[0])
	if err != nil {
		return err
	}
	changed, err := s.env.harness.SetChunkSize(n.Int())
	if err != nil {
		return err
	}
	s.printRebuild(changed)
	return nil
}

func (s *shell) maxChunks(_ context.Context, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return err
	}
	changed, err := s.env.harness.SetMaxTotalChunks(n)
	if err != nil {
		return err
	}
	s.printRebuild(changed)
	return nil
}

func (s *shell) resetBuster(_ context.Context, _ []string) error {
	changed, err := s.env.harness.ResetCacheBuster()
	if err != nil {
		return err
	}
	s.printRebuild(changed)
	return nil
}

func (s *shell) status(ctx context.Context, _ []string) error {
	h := s.env.harness
	form := h.Form()
	snap := h.Snapshot()
	st := s.env.session.State()

	fmt.Fprintf(s.out, "cache:       %s (epoch %d)", snap.State, snap.Epoch)
	if snap.Err != nil {
		fmt.Fprintf(s.out, ": %v", snap.Err)
	}
	fmt.Fprintln(s.out)
	if stats, err := h.Stats(ctx); err == nil {
		fmt.Fprintf(s.out, "stored:      %d item(s), %s chunk(s), %d orphan(s)\n",
			stats.Items, humanize.Comma(int64(stats.Chunks)), stats.Orphans)
	}
	fmt.Fprintf(s.out, "store:       %s\n", s.env.storeDescription())
	fmt.Fprintf(s.out, "item size:   %s x %d\n", humanize.IBytes(uint64(form.ItemSize)), form.NumItems)
	fmt.Fprintf(s.out, "chunk size:  %s (%d per item)\n", humanize.IBytes(uint64(form.ChunkSize)), form.ChunksPerItem())
	fmt.Fprintf(s.out, "max chunks:  %s\n", humanize.Comma(int64(form.MaxTotalChunks)))
	fmt.Fprintf(s.out, "counter:     %d\n", st.Counter)
	fmt.Fprintf(s.out, "buster:      %s\n", st.CacheBuster)
	fmt.Fprintf(s.out, "resources:   %s\n", formatUsage(s.env.resources.Usage()))
	if hits, misses, ok := s.env.stores.blockCacheStats(); ok {
		fmt.Fprintf(s.out, "block cache: %s hits, %s misses, %s evictions\n",
			humanize.Comma(hits), humanize.Comma(misses), humanize.Comma(s.env.stores.evictions()))
	}
	return nil
}

func formatUsage(u resource.Usage) string {
	limit := "unlimited"
	if u.MemoryLimit > 0 {
		limit = humanize.IBytes(uint64(u.MemoryLimit))
	}
	return fmt.Sprintf("%s of %s memory, %d/%d workers busy",
		humanize.IBytes(uint64(u.MemoryBytes)), limit, u.BusyWorkers, u.MaxWorkers)
}

func (s *shell) help(_ context.Context, _ []string) error {
	for _, cmd := range shellCommands {
		fmt.Fprintf(s.out, "  %-24s %s\n", strings.TrimSpace(cmd.name+" "+cmd.args), cmd.usage)
	}
	return nil
}

// reload applies the form fields that changed in the watched config file
// since it was last read.
func (s *shell) reload(cfg config.Config, err error) {
	if err != nil {
		fmt.Fprintf(s.out, "config reload failed: %v\n", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, next := s.last, formFromConfig(cfg)
	s.last = next

	h := s.env.harness
	var rebuilt bool
	apply := func(changed bool, err error) {
		if err != nil {
			fmt.Fprintf(s.out, "config reload: %v\n", err)
		}
		rebuilt = rebuilt || changed
	}
	if next.ItemSize != prev.ItemSize {
		apply(false, h.SetItemSize(next.ItemSize))
	}
	if next.NumItems != prev.NumItems {
		apply(false, h.SetNumItems(next.NumItems))
	}
	if next.ChunkSize != prev.ChunkSize {
		apply(h.SetChunkSize(next.ChunkSize))
	}
	if next.MaxTotalChunks != prev.MaxTotalChunks {
		apply(h.SetMaxTotalChunks(next.MaxTotalChunks))
	}

	fmt.Fprint(s.out, "config reloaded: ")
	s.printRebuild(rebuilt)
}

func (s *shell) printForm() {
	form := s.env.harness.Form()
	fmt.Fprintf(s.out, "items: %d x %s, %d chunk(s) each\n",
		form.NumItems, humanize.IBytes(uint64(form.ItemSize)), form.ChunksPerItem())
}

func (s *shell) printRebuild(changed bool) {
	if !changed {
		fmt.Fprintln(s.out, "configuration unchanged")
		return
	}
	fmt.Fprintf(s.out, "rebuilding cache (epoch %d)\n", s.env.harness.Snapshot().Epoch)
}
