package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// ShouldPrettyPrint reports whether w is a colour-capable terminal that has
// not opted out through NO_COLOR or a dumb TERM.
func ShouldPrettyPrint(w io.Writer) bool {
	return shouldPrettyPrint(w)
}

func shouldPrettyPrint(w io.Writer) bool {
	term := strings.TrimSpace(os.Getenv("TERM"))
	if term == "" || term == "dumb" {
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return termenv.NewOutput(w).Profile != termenv.Ascii
}

type palette struct {
	time   lipgloss.Style
	msg    lipgloss.Style
	key    lipgloss.Style
	value  lipgloss.Style
	sep    lipgloss.Style
	block  lipgloss.Style
	badges map[string]lipgloss.Style
}

// newPalette binds styles to w so colour detection follows the log writer
// rather than stdout.
func newPalette(w io.Writer) *palette {
	r := lipgloss.NewRenderer(w)
	badge := r.NewStyle().Bold(true).Padding(0, 1)
	return &palette{
		time:  r.NewStyle().Foreground(lipgloss.Color("240")),
		msg:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("252")),
		key:   r.NewStyle().Foreground(lipgloss.Color("117")),
		value: r.NewStyle().Foreground(lipgloss.Color("255")),
		sep:   r.NewStyle().Foreground(lipgloss.Color("238")),
		block: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("245")).
			Padding(0, 1),
		badges: map[string]lipgloss.Style{
			"DEBUG": badge.Foreground(lipgloss.Color("255")).Background(lipgloss.Color("240")),
			"INFO":  badge.Foreground(lipgloss.Color("230")).Background(lipgloss.Color("31")),
			"WARN":  badge.Foreground(lipgloss.Color("234")).Background(lipgloss.Color("214")),
			"ERROR": badge.Foreground(lipgloss.Color("231")).Background(lipgloss.Color("160")),
		},
	}
}

func (p *palette) format(entry Entry) string {
	level := levelName(entry.Level)
	var b strings.Builder
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Center,
		p.time.Render(entry.Time.Format("15:04:05.000")),
		" ",
		p.badges[level].Render(level),
		" ",
		p.msg.Render(entry.Message),
	))

	fields := renderFields(entry.Fields)
	first := true
	for _, f := range fields {
		if f.block {
			continue
		}
		if first {
			b.WriteString("  ")
			first = false
		} else {
			b.WriteByte(' ')
		}
		b.WriteString(p.key.Render(f.key) + p.sep.Render("=") + p.value.Render(f.text))
	}
	for _, f := range fields {
		if f.block {
			b.WriteString("\n  " + p.key.Render(f.key) + p.sep.Render("=") + "\n" + p.block.Render(f.text))
		}
	}
	b.WriteByte('\n')
	return b.String()
}
