package commands

import (
	"context"
	"errors"
	"time"

	"github.com/roasbeef/threadsync/internal/render"
	"github.com/roasbeef/threadsync/internal/threadsync"
	"github.com/spf13/cobra"
)

var messagesPages int

var messagesCmd = &cobra.Command{
	Use:   "messages <thread-id>",
	Short: "Print a thread's messages, newest first",
	Long: `Print a thread's messages, newest first.

The newest page is loaded first and older pages are fetched until --pages
pages are loaded or the history ends. Use --pages 0 to load everything.`,
	Args: cobra.ExactArgs(1),
	RunE: runMessages,
}

func init() {
	messagesCmd.Flags().IntVar(&messagesPages, "pages", 1,
		"Number of pages to load (0 = all)")
	addPageFlag(messagesCmd)
}

func runMessages(cmd *cobra.Command, args []string) error {
	if messagesPages < 0 {
		return errors.New("--pages must not be negative")
	}

	ctrl, err := sess.newController()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	state, err := loadPages(cmd.Context(), ctrl, args[0], messagesPages)
	if err != nil {
		return err
	}

	return render.Messages(
		sess.out, state.Messages, state.HasMore, sess.format,
		time.Now(),
	)
}

// loadPages loads the newest page of threadID and then older pages until
// maxPages are loaded (0 means no limit) or history ends. A failed load is
// returned as an error.
func loadPages(ctx context.Context, ctrl *threadsync.Controller,
	threadID string, maxPages int) (threadsync.State, error) {

	ctrl.LoadInitial(ctx, threadID)

	state := ctrl.State()
	if state.Error != "" {
		return state, errors.New(state.Error)
	}

	for state.HasMore && (maxPages == 0 || state.Page < maxPages) {
		ctrl.LoadOlder(ctx)

		next := ctrl.State()
		if next.Error != "" {
			return next, errors.New(next.Error)
		}
		if next.Page == state.Page {
			break
		}
		state = next

		log.DebugS(ctx, "Loaded older page", "thread_id", threadID,
			"page", state.Page, "total", len(state.Messages))
	}

	return state, nil
}
