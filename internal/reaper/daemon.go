package reaper

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/gorm"
)

// DaemonOpts configures RunDaemon.
type DaemonOpts struct {
	Schedule string         // standard 5-field cron expression
	Location *time.Location // zone the schedule is evaluated in
	Reap     Opts
	Out      io.Writer
}

// RunDaemon sweeps on Schedule until ctx is cancelled. Each tick reaps
// expired leases and then removes abandoned uploads. Errors in a tick are
// logged; the daemon keeps running.
func RunDaemon(ctx context.Context, gdb *gorm.DB, opts DaemonOpts) error {
	if gdb == nil {
		return fmt.Errorf("reaper: db is required")
	}
	if opts.Schedule == "" {
		return fmt.Errorf("reaper: schedule is required")
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	c := cron.New(cron.WithLocation(opts.Location))
	if _, err := c.AddFunc(opts.Schedule, func() { tick(ctx, gdb, opts.Reap, out) }); err != nil {
		return fmt.Errorf("reaper: schedule %q: %w", opts.Schedule, err)
	}

	fmt.Fprintf(out, "Reaper starting (schedule %q, %s)...\n", opts.Schedule, opts.Location)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	fmt.Fprintf(out, "Reaper stopped.\n")
	return nil
}

func tick(ctx context.Context, gdb *gorm.DB, opts Opts, out io.Writer) {
	// Every tick sees its own clock.
	opts.Now = time.Time{}
	opts.Assign.Now = time.Time{}

	res, err := Reap(ctx, gdb, opts)
	if err != nil {
		log.Printf("reaper: sweep error: %v", err)
	} else if res.Expired > 0 || len(res.Failed) > 0 {
		fmt.Fprintf(out, "Reaped %d lease(s) on %d track(s), reassigned %d, %d failed\n",
			res.Expired, res.AffectedTracks, res.Reassigned, len(res.Failed))
	}

	n, err := Cleanup(ctx, gdb, opts)
	if err != nil {
		log.Printf("reaper: cleanup error: %v", err)
	} else if n > 0 {
		fmt.Fprintf(out, "Removed %d abandoned upload(s)\n", n)
	}
}
