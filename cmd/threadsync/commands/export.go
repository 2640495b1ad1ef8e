package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/roasbeef/threadsync/internal/render"
	"github.com/spf13/cobra"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export <thread-id>",
	Short: "Write a thread's full history as an HTML transcript",
	Long: `Load every page of a thread and write it as a standalone HTML
transcript, oldest message first. Message content is rendered as Markdown.`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "",
		"Output file (default stdout)")
	addPageFlag(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) (err error) {
	ctx := cmd.Context()
	threadID := args[0]

	th, err := sess.client.GetThread(ctx, threadID)
	if err != nil {
		return err
	}

	ctrl, err := sess.newController()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	state, err := loadPages(ctx, ctrl, threadID, 0)
	if err != nil {
		return err
	}

	var w io.Writer = sess.out
	if exportOut != "" && exportOut != "-" {
		f, createErr := os.Create(exportOut)
		if createErr != nil {
			return fmt.Errorf("create transcript: %w", createErr)
		}
		defer func() {
			err = errors.Join(err, f.Close())
		}()
		w = f
	}

	if err := render.Transcript(w, th, state.Messages, time.Now()); err != nil {
		return fmt.Errorf("render transcript: %w", err)
	}

	log.InfoS(ctx, "Exported transcript", "thread_id", threadID,
		"messages", len(state.Messages), "out", exportOut)

	return nil
}
