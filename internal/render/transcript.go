package render

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/roasbeef/threadsync/internal/thread"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// markdown converts message content. Raw HTML in content is not passed
// through.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// transcriptTmpl is parsed once at package load; a template error panics at
// startup.
var transcriptTmpl = template.Must(
	template.New("transcript").Parse(transcriptTmplText),
)

type transcriptData struct {
	Title       string
	ThreadID    string
	Participant string
	Generated   string
	Count       string
	Messages    []transcriptMessage
}

type transcriptMessage struct {
	ID        string
	Incoming  bool
	Author    string
	Status    string
	Timestamp string
	Body      template.HTML
	Logs      []thread.LogEntry
}

// Transcript writes th and msgs as a standalone HTML page in chronological
// order. Message content is rendered as markdown.
func Transcript(w io.Writer, th thread.Thread, msgs []thread.Message,
	now time.Time) error {

	ordered := thread.SortNewestFirst(msgs)
	slices.Reverse(ordered)

	data := transcriptData{
		Title:       th.DisplayName(),
		ThreadID:    th.ID,
		Participant: th.ParticipantID,
		Generated:   now.UTC().Format(time.RFC1123),
		Count:       humanize.Comma(int64(len(ordered))),
		Messages:    make([]transcriptMessage, 0, len(ordered)),
	}

	for _, m := range ordered {
		var body bytes.Buffer
		if err := markdown.Convert([]byte(m.Content), &body); err != nil {
			return fmt.Errorf("render message %s: %w", m.ID, err)
		}

		data.Messages = append(data.Messages, transcriptMessage{
			ID:        m.ID,
			Incoming:  m.Direction == thread.DirectionIncoming,
			Author:    m.CreatedBy,
			Status:    m.Status,
			Timestamp: m.CreatedAt.UTC().Format(time.RFC3339),

			// goldmark escapes raw HTML unless WithUnsafe is set.
			Body: template.HTML(body.String()),
			Logs: m.Logs.UnwrapOr(nil),
		})
	}

	return transcriptTmpl.Execute(w, data)
}

const transcriptTmplText = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; }
.msg { border-left: 3px solid #888; padding: 0 1rem; margin: 1rem 0; }
.msg.incoming { border-color: #2a7ae2; }
.meta { color: #666; font-size: 0.85rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p class="meta">Thread {{.ThreadID}} with {{.Participant}}, {{.Count}} message(s), exported {{.Generated}}</p>
{{range .Messages}}<div class="msg{{if .Incoming}} incoming{{end}}" id="{{.ID}}">
<p class="meta">{{.Author}} &middot; {{.Timestamp}} &middot; {{.Status}}</p>
{{.Body}}{{if .Logs}}<ul class="meta">{{range .Logs}}
<li>{{.Timestamp.UTC.Format "2006-01-02 15:04:05"}} {{.Event}}</li>{{end}}
</ul>{{end}}
</div>
{{end}}</body>
</html>
`
