package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"cbd-eventstream/internal/logging"
)

const (
	heartbeatLine = "Received heartbeat from Dashboard."
	eventPrefix   = "Received event: "
	farewellLine  = "Exiting.  Goodbye!"
)

// Printer writes the user-facing output lines. Styling is applied only when
// the writer is a colour terminal.
type Printer struct {
	out    io.Writer
	styled bool

	heartbeatStyle lipgloss.Style
	prefixStyle    lipgloss.Style
	textStyle      lipgloss.Style
}

func NewPrinter(w io.Writer) *Printer {
	renderer := lipgloss.NewRenderer(w)
	return &Printer{
		out:            w,
		styled:         logging.ShouldPrettyPrint(w),
		heartbeatStyle: renderer.NewStyle().Foreground(lipgloss.Color("244")),
		prefixStyle:    renderer.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		textStyle:      renderer.NewStyle().Foreground(lipgloss.Color("255")),
	}
}

func (p *Printer) Print(msg Message) error {
	if msg.Heartbeat {
		return p.line(p.render(p.heartbeatStyle, heartbeatLine))
	}
	return p.line(p.render(p.prefixStyle, eventPrefix) + " " + p.render(p.textStyle, msg.Text))
}

func (p *Printer) Subscribed(networkIDs []string) error {
	return p.line("Successfully subscribed to networks with ID(s) " + strings.Join(networkIDs, ", "))
}

func (p *Printer) Farewell() error {
	return p.line(farewellLine)
}

func (p *Printer) render(style lipgloss.Style, text string) string {
	if !p.styled {
		return text
	}
	return style.Render(text)
}

func (p *Printer) line(text string) error {
	_, err := fmt.Fprintln(p.out, text)
	return err
}
