package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/roasbeef/threadsync/internal/render"
	"github.com/roasbeef/threadsync/internal/thread"
	"github.com/roasbeef/threadsync/internal/threadsync"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var watchCmd = &cobra.Command{
	Use:   "watch <thread-id>...",
	Short: "Print new messages as they arrive",
	Long: `Poll one or more threads and print messages as they arrive, oldest
first. Each thread is followed until its polling window ends or the command
is interrupted. When several threads are watched each line is prefixed with
its thread id.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	addPageFlag(watchCmd)
	addPollFlags(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(
		cmd.Context(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	var ids []string
	for _, id := range args {
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}

	out := &lockedWriter{w: sess.out}
	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		prefix := ""
		if len(ids) > 1 {
			prefix = id
		}

		g.Go(func() error {
			return watchThread(ctx, id, out, prefix)
		})
	}

	return g.Wait()
}

// watchThread loads the newest page of threadID and follows it.
func watchThread(ctx context.Context, threadID string, w io.Writer,
	prefix string) error {

	ctrl, err := sess.newController(sess.stderrNotifications())
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctrl.LoadInitial(ctx, threadID)

	state := ctrl.State()
	if state.Error != "" {
		return fmt.Errorf("thread %s: %s", threadID, state.Error)
	}

	log.InfoS(ctx, "Watching thread", "thread_id", threadID,
		"loaded", len(state.Messages))

	ctrl.StartPolling(threadID)

	return follow(ctx, ctrl, w, prefix)
}

// follow prints messages that show up in ctrl, oldest first, until its
// polling window ends or ctx is done. Messages already loaded when follow
// starts are not printed.
func follow(ctx context.Context, ctrl *threadsync.Controller, w io.Writer,
	prefix string) error {

	seen := make(map[string]struct{})
	for _, m := range ctrl.State().Messages {
		seen[m.ID] = struct{}{}
	}

	flush := func() error {
		var fresh []thread.Message
		for _, m := range ctrl.State().Messages {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			fresh = append(fresh, m)
		}

		// State is newest first.
		slices.Reverse(fresh)
		for _, m := range fresh {
			if err := printMessage(w, m, prefix); err != nil {
				return err
			}
		}

		return nil
	}

	for ctrl.IsPolling() {
		select {
		case <-ctx.Done():
			return nil

		case _, ok := <-ctrl.Updates():
			if !ok {
				return nil
			}
		}

		if err := flush(); err != nil {
			return err
		}
	}

	// The last tick may land between an update and the idle check.
	return flush()
}

// printMessage renders m with an optional thread prefix in a single write
// so concurrent watchers never interleave within a message.
func printMessage(w io.Writer, m thread.Message, prefix string) error {
	var buf bytes.Buffer
	if prefix != "" && sess.format == render.FormatText {
		fmt.Fprintf(&buf, "[%s] ", prefix)
	}

	err := render.Message(&buf, m, sess.format, time.Now())
	if err != nil {
		return err
	}

	_, err = w.Write(buf.Bytes())

	return err
}
