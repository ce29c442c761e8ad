package ui

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Printer provides methods for printing UI components to a writer.
// This is the primary way pbctl commands output styled content.
type Printer struct {
	out   io.Writer
	width int
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
	}
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Printf writes formatted content
func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params map[string]string) {
	p.Println(RenderHeader(title, command, params, p.width))
}

// PrintSuccess prints a success result box
func (p *Printer) PrintSuccess(title string, details map[string]string) {
	p.Println(RenderSuccessBox(title, details, p.width))
}

// PrintError prints an error result box with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	p.Println(RenderErrorBox(title, err, troubleshooting, p.width))
}

// PrintTable prints rows of columns separated by two spaces, with the
// first column styled as a key.
func (p *Printer) PrintTable(rows [][]string) {
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		cells := []string{ResultKeyStyle.Render(row[0])}
		for _, cell := range row[1:] {
			cells = append(cells, ResultValueStyle.Render(cell))
		}
		p.Println("  " + strings.Join(cells, "  "))
	}
}

// sortedKeys keeps detail listings stable between runs.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// RenderHeader renders a command header box
func RenderHeader(title, command string, params map[string]string, width int) string {
	titleLine := HeaderTitleStyle.Render(strings.ToUpper(title))
	commandLine := HeaderCommandStyle.Render(command)
	topSection := lipgloss.JoinVertical(lipgloss.Left, titleLine, commandLine)

	if len(params) == 0 {
		return HeaderBorderStyle(width).Render(topSection)
	}

	var paramLines []string
	for _, key := range sortedKeys(params) {
		keyStyled := HeaderParamKeyStyle.Render(key + ":")
		valueStyled := HeaderParamValueStyle.Render(params[key])
		paramLines = append(paramLines, keyStyled+" "+valueStyled)
	}

	dividerWidth := width - 6 // Account for border and padding
	if dividerWidth < 10 {
		dividerWidth = 10
	}
	divider := RenderHorizontalDivider(dividerWidth, "─")

	content := lipgloss.JoinVertical(lipgloss.Left, topSection, divider, strings.Join(paramLines, "\n"))
	return HeaderBorderStyle(width).Render(content)
}

// RenderSuccessBox renders a success result box
func RenderSuccessBox(title string, details map[string]string, width int) string {
	lines := []string{"", SuccessTitleStyle.Render(SuccessMarker + "  " + title), ""}

	for _, key := range sortedKeys(details) {
		keyStyled := ResultKeyStyle.Render(key + ":")
		valueStyled := ResultValueStyle.Render(details[key])
		lines = append(lines, keyStyled+" "+valueStyled)
	}
	if len(details) > 0 {
		lines = append(lines, "")
	}

	return SuccessBoxStyle(width).Render(strings.Join(lines, "\n"))
}

// RenderErrorBox renders an error result box with troubleshooting
func RenderErrorBox(title string, err error, troubleshooting []string, width int) string {
	lines := []string{"", ErrorTitleStyle.Render(FailureMarker + "  " + title), ""}

	if err != nil {
		lines = append(lines, ErrorMessageStyle.Render("Error: "+err.Error()), "")
	}

	if len(troubleshooting) > 0 {
		troubleLines := []string{TroubleshootingTitleStyle.Render("Troubleshooting:"), ""}
		for _, tip := range troubleshooting {
			troubleLines = append(troubleLines, TroubleshootingItemStyle.Render("  • "+tip))
		}
		lines = append(lines, TroubleshootingBoxStyle(width).Render(strings.Join(troubleLines, "\n")), "")
	}

	return ErrorBoxStyle(width).Render(strings.Join(lines, "\n"))
}
