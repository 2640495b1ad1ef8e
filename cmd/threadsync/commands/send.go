package commands

import (
	"errors"
	"time"

	"github.com/roasbeef/threadsync/internal/render"
	"github.com/roasbeef/threadsync/internal/thread"
	"github.com/spf13/cobra"
)

var (
	sendWatch     bool
	sendAs        string
	sendDirection string
)

var sendCmd = &cobra.Command{
	Use:   "send <thread-id> <text>",
	Short: "Send a message to a thread",
	Long: `Send a message to a thread and print the stored copy.

With --watch the command keeps polling the thread after sending and prints
replies until the polling window ends.`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().BoolVar(&sendWatch, "watch", false,
		"Follow the thread for replies after sending")
	sendCmd.Flags().StringVar(&sendAs, "as", "",
		"Author recorded on the message")
	sendCmd.Flags().StringVar(&sendDirection, "direction",
		string(thread.DirectionIncoming),
		"Message direction: incoming or outgoing")
	addPollFlags(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	threadID, text := args[0], args[1]

	direction, err := thread.ParseDirection(sendDirection)
	if err != nil {
		return err
	}

	ctrl, err := sess.newController()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctrl.LoadInitial(ctx, threadID)
	if state := ctrl.State(); state.Error != "" {
		return errors.New(state.Error)
	}

	msg, err := ctrl.Send(ctx, thread.SendPayload{
		Content:   text,
		Direction: direction,
		CreatedBy: sendAs,
	})
	if err != nil {
		return err
	}

	err = render.Message(sess.out, msg, sess.format, time.Now())
	if err != nil {
		return err
	}

	if !sendWatch {
		return nil
	}

	return follow(ctx, ctrl, &lockedWriter{w: sess.out}, "")
}
