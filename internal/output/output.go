// Package output renders CLI results as tables, markdown or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ballotbox/ballotbox/internal/core/candidates"
	"github.com/ballotbox/ballotbox/internal/core/ratelimit/stats"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// Extension is the file extension used when writing format to a directory.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

func render(format Format, t table.Writer) string {
	if format == FormatMarkdown {
		return t.RenderMarkdown()
	}
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	return t.Render()
}

func renderJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RenderSnapshot renders rate limit statistics: totals, then per route and
// per client rows sorted by name.
func RenderSnapshot(format Format, snap stats.Snapshot) (string, error) {
	if format == FormatJSON {
		return renderJSON(snap)
	}

	if snap.Total.Total() == 0 && len(snap.Routes) == 0 && len(snap.Keys) == 0 {
		if format == FormatMarkdown {
			return "_No rate limit decisions recorded._", nil
		}
		return ascii.DrawBox(fmt.Sprintf("Rate Limit Stats (%s)\n\n(no decisions recorded)", snap.Backend), 0), nil
	}

	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Rate Limit Stats (%s)", snap.Backend))
	t.AppendHeader(table.Row{"Scope", "Name", "Allowed", "Denied", "Total"})

	for _, name := range sortedKeys(snap.Routes) {
		c := snap.Routes[name]
		t.AppendRow(table.Row{"route", name, c.Allowed, c.Denied, c.Total()})
	}
	for _, name := range sortedKeys(snap.Keys) {
		c := snap.Keys[name]
		t.AppendRow(table.Row{"client", name, c.Allowed, c.Denied, c.Total()})
	}
	t.AppendFooter(table.Row{"", "total", snap.Total.Allowed, snap.Total.Denied, snap.Total.Total()})

	return render(format, t), nil
}

// RenderCandidates renders a candidate list.
func RenderCandidates(format Format, list []candidates.Candidate) (string, error) {
	if format == FormatJSON {
		if list == nil {
			list = []candidates.Candidate{}
		}
		return renderJSON(list)
	}

	t := table.NewWriter()
	t.AppendHeader(table.Row{"ID", "Name"})
	for _, c := range list {
		t.AppendRow(table.Row{c.ID, c.Name})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d candidates", len(list))})

	return render(format, t), nil
}

func sortedKeys(m map[string]stats.Counts) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
