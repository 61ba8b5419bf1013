package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/jobs"
)

// Options wires command output streams.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
}

const usage = `usage: ledgerctl <command> [flags]

commands:
  provision [--days N]          enqueue ledger:provision
  replay    [--date YYYY-MM-DD] enqueue ledger:close-replay (default today)
  queue     [--json]            show default queue counters
  scheduled [--size N]          list scheduled tasks
`

// Run executes one ledgerctl command and returns the process exit code.
func (c *JobsCLI) Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if len(args) == 0 {
		_, _ = fmt.Fprint(opts.Stderr, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]
	fs := flag.NewFlagSet("ledgerctl "+cmd, flag.ContinueOnError)
	fs.SetOutput(opts.Stderr)

	switch cmd {
	case "provision":
		days := fs.Int("days", 3, "lookahead days past today")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		return c.trigger(ctx, opts, jobs.TaskLedgerProvision, TriggerOptions{LookaheadDays: *days})
	case "replay":
		date := fs.String("date", "", "day whose closing cycle is replayed")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		var parsed time.Time
		if raw := strings.TrimSpace(*date); raw != "" {
			var err error
			parsed, err = time.Parse(time.DateOnly, raw)
			if err != nil {
				_, _ = fmt.Fprintf(opts.Stderr, "replay: invalid date %q (expected YYYY-MM-DD)\n", raw)
				return 2
			}
		}
		return c.trigger(ctx, opts, jobs.TaskLedgerCloseReplay, TriggerOptions{Date: parsed})
	case "queue":
		asJSON := fs.Bool("json", false, "print JSON")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "queue: %v\n", err)
			return 1
		}
		if *asJSON {
			if err := json.NewEncoder(opts.Stdout).Encode(stats); err != nil {
				_, _ = fmt.Fprintf(opts.Stderr, "queue: encode json: %v\n", err)
				return 1
			}
			return 0
		}
		_, _ = fmt.Fprintf(opts.Stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
		return 0
	case "scheduled":
		size := fs.Int("size", 10, "page size")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		tasks, err := c.ListScheduled(ctx, *size)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "scheduled: %v\n", err)
			return 1
		}
		for _, t := range tasks {
			_, _ = fmt.Fprintf(opts.Stdout, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
		}
		return 0
	default:
		_, _ = fmt.Fprintf(opts.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}

func (c *JobsCLI) trigger(ctx context.Context, opts Options, name string, topts TriggerOptions) int {
	info, err := c.Trigger(ctx, name, topts)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "%s: %v\n", name, err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s id=%s queue=%s\n", name, info.ID, info.Queue)
	return 0
}
