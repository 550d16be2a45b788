// Package report renders a handshake result as the single output line of a run,
// or as a JSON or TOML document with the same fields.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/danmuck/peerprobe/internal/handshake"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/pelletier/go-toml/v2"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

var ErrUnknownFormat = errors.New("report: unknown format")

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatTOML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

type Attribute struct {
	Key   string `json:"key" toml:"key"`
	Value string `json:"value" toml:"value"`
}

type Event struct {
	Name       string      `json:"name" toml:"name"`
	Direction  string      `json:"direction" toml:"direction"`
	Attributes []Attribute `json:"attributes,omitempty" toml:"attributes,omitempty"`
	// DeltaMS is the gap since the previous event, or since the chain start for
	// the first one.
	DeltaMS float64 `json:"delta_ms" toml:"delta_ms"`

	text  string
	delta time.Duration
}

type Report struct {
	ID       string  `json:"id" toml:"id"`
	Outcome  string  `json:"outcome" toml:"outcome"`
	Complete bool    `json:"complete" toml:"complete"`
	Cause    string  `json:"cause" toml:"cause"`
	Error    string  `json:"error,omitempty" toml:"error,omitempty"`
	TotalMS  float64 `json:"total_ms" toml:"total_ms"`
	Events   []Event `json:"events" toml:"events"`

	total time.Duration
}

func New(res handshake.Result) Report {
	r := Report{
		ID:      res.ID,
		Outcome: res.Outcome(),
		Cause:   res.Cause.String(),
		Events:  []Event{},
	}
	if res.Err != nil {
		r.Error = oneLine(res.Err.Error())
	}
	if res.Chain == nil {
		return r
	}
	if res.Chain.ID != "" {
		r.ID = res.Chain.ID
	}
	r.Complete = res.Chain.Complete
	r.total = res.Chain.Elapsed()
	r.TotalMS = millis(r.total)
	for i, ev := range res.Chain.Events {
		out := Event{
			Name:      ev.Name,
			Direction: ev.Direction.String(),
			text:      ev.String(),
			delta:     res.Chain.Since(i),
		}
		out.DeltaMS = millis(out.delta)
		for _, a := range ev.Attributes {
			out.Attributes = append(out.Attributes, Attribute{Key: a.Key, Value: a.Value})
		}
		r.Events = append(r.Events, out)
	}
	return r
}

// Text is the one-line summary. Failures read
// "FAIL <id>: handshake error: <cause>"; anything else lists each event with the
// gap before it.
func (r Report) Text() string {
	return r.text(false)
}

func (r Report) text(colored bool) string {
	paint := func(c *color.Color, s string) string {
		if !colored {
			return s
		}
		return c.Sprint(s)
	}
	if r.Outcome == "failed" {
		return fmt.Sprintf("%s %s: handshake error: %s", paint(failColor, "FAIL"), r.ID, r.Error)
	}
	var b strings.Builder
	status := paint(okColor, "OK")
	if !r.Complete {
		status = paint(incompleteColor, "INCOMPLETE")
	}
	fmt.Fprintf(&b, "%s - %s || ", status, r.ID)
	if len(r.Events) == 0 {
		b.WriteString("no events")
	}
	for i, ev := range r.Events {
		if i > 0 {
			fmt.Fprintf(&b, " -- %s --> ", ev.delta.Round(time.Microsecond))
		}
		b.WriteString(ev.text)
	}
	fmt.Fprintf(&b, " || total time %s.", r.total.Round(time.Microsecond))
	return b.String()
}

var (
	okColor         = color.New(color.FgGreen, color.Bold)
	incompleteColor = color.New(color.FgYellow, color.Bold)
	failColor       = color.New(color.FgRed, color.Bold)
)

// Write renders r to w in the given format. Text output is colored only when w
// is a terminal.
func Write(w io.Writer, r Report, format Format) error {
	switch format {
	case FormatText, "":
		_, err := fmt.Fprintln(w, r.text(isTerminal(w)))
		return err
	case FormatJSON:
		return json.NewEncoder(w).Encode(r)
	case FormatTOML:
		return toml.NewEncoder(w).Encode(r)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

// oneLine keeps joined errors on a single output line.
func oneLine(s string) string {
	return strings.Join(strings.Fields(strings.ReplaceAll(s, "\n", "; ")), " ")
}
