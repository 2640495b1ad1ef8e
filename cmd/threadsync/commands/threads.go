package commands

import (
	"time"

	"github.com/roasbeef/threadsync/internal/render"
	"github.com/roasbeef/threadsync/internal/thread"
	"github.com/spf13/cobra"
)

var (
	createParticipant string
	createTitle       string
	createInternal    bool
)

var threadsCmd = &cobra.Command{
	Use:   "threads <workflow-id>",
	Short: "List the threads of a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runThreads,
}

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Create or inspect a single thread",
}

var threadCreateCmd = &cobra.Command{
	Use:   "create <workflow-id>",
	Short: "Create a thread in a workflow",
	Args:  cobra.ExactArgs(1),
	RunE:  runThreadCreate,
}

var threadShowCmd = &cobra.Command{
	Use:   "show <thread-id>",
	Short: "Show a thread",
	Args:  cobra.ExactArgs(1),
	RunE:  runThreadShow,
}

func init() {
	threadCreateCmd.Flags().StringVar(&createParticipant, "participant", "",
		"Participant id (required)")
	threadCreateCmd.Flags().StringVar(&createTitle, "title", "",
		"Optional thread title")
	threadCreateCmd.Flags().BoolVar(&createInternal, "internal", false,
		"Mark the thread as internal")
	_ = threadCreateCmd.MarkFlagRequired("participant")

	threadCmd.AddCommand(threadCreateCmd)
	threadCmd.AddCommand(threadShowCmd)
}

func runThreads(cmd *cobra.Command, args []string) error {
	threads, err := sess.client.ListThreads(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return render.Threads(sess.out, threads, sess.format, time.Now())
}

func runThreadCreate(cmd *cobra.Command, args []string) error {
	th, err := sess.client.CreateThread(cmd.Context(), args[0],
		thread.CreatePayload{
			ParticipantID:    createParticipant,
			Title:            createTitle,
			IsInternalThread: createInternal,
		},
	)
	if err != nil {
		return err
	}

	log.DebugS(cmd.Context(), "Thread created", "thread_id", th.ID,
		"workflow_id", args[0])

	return render.Thread(sess.out, th, sess.format, time.Now())
}

func runThreadShow(cmd *cobra.Command, args []string) error {
	th, err := sess.client.GetThread(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	return render.Thread(sess.out, th, sess.format, time.Now())
}
