// Package render formats threads and messages for the terminal, as JSON, and
// as a standalone HTML transcript.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/roasbeef/threadsync/internal/thread"
)

// Format selects the output encoding.
type Format string

const (
	// FormatText is aligned human readable output.
	FormatText Format = "text"

	// FormatJSON is one JSON document per call, or one JSON object per
	// line when streaming.
	FormatJSON Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text "+
			"or json)", s)
	}
}

// Ago renders t relative to now, e.g. "3 minutes ago".
func Ago(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}

	return humanize.RelTime(t, now, "ago", "from now")
}

// Threads writes a thread listing.
func Threads(w io.Writer, threads []thread.Thread, format Format,
	now time.Time) error {

	if format == FormatJSON {
		return writeJSON(w, threads)
	}

	if len(threads) == 0 {
		_, err := fmt.Fprintln(w, "No threads.")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPARTICIPANT\tUPDATED\t")
	for _, th := range threads {
		title := th.Title.UnwrapOr("-")
		if th.IsInternalThread {
			title += " (internal)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", th.ID, title,
			th.ParticipantID, Ago(th.UpdatedAt, now))
	}

	return tw.Flush()
}

// Thread writes a single thread.
func Thread(w io.Writer, th thread.Thread, format Format, now time.Time) error {
	if format == FormatJSON {
		return writeJSON(w, th)
	}

	_, err := fmt.Fprintf(w, "%s  %s  participant=%s  created %s\n",
		th.ID, th.DisplayName(), th.ParticipantID,
		Ago(th.CreatedAt, now))

	return err
}

// Messages writes msgs in the order given followed by a count line.
func Messages(w io.Writer, msgs []thread.Message, hasMore bool,
	format Format, now time.Time) error {

	if format == FormatJSON {
		return writeJSON(w, struct {
			Messages []thread.Message `json:"messages"`
			HasMore  bool             `json:"hasMore"`
		}{msgs, hasMore})
	}

	for _, m := range msgs {
		if err := Message(w, m, FormatText, now); err != nil {
			return err
		}
	}

	more := ""
	if hasMore {
		more = ", older messages available"
	}
	_, err := fmt.Fprintf(w, "%s message(s)%s\n",
		humanize.Comma(int64(len(msgs))), more)

	return err
}

// Message writes one message. In JSON it is a single line so a stream of
// messages is valid JSON lines.
func Message(w io.Writer, m thread.Message, format Format,
	now time.Time) error {

	if format == FormatJSON {
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", data)

		return err
	}

	arrow := "<-"
	if m.Direction == thread.DirectionIncoming {
		arrow = "->"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s [%s] %s\n", Ago(m.CreatedAt, now), arrow,
		m.CreatedBy, m.Status, m.ID)
	for _, line := range strings.Split(strings.TrimRight(m.Content, "\n"),
		"\n") {

		fmt.Fprintf(&b, "    %s\n", line)
	}

	_, err := io.WriteString(w, b.String())

	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
