package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// Palette. Pixel colors in the preview strip come from the controller and
// are not themed.
var (
	PrimaryColor = lipgloss.Color("#7D56F4")
	SuccessColor = lipgloss.Color("#43BF6D")
	ErrorColor   = lipgloss.Color("#FF5555")
	WarningColor = lipgloss.Color("#FFA500")
	MutedColor   = lipgloss.Color("#626262")
	TextColor    = lipgloss.Color("#FFFFFF")
)

// Output is clamped to [MinTerminalWidth, MaxContentWidth] columns.
const (
	MinTerminalWidth = 60
	MaxContentWidth  = 100
)

// Markers used in tables and result lines.
const (
	SuccessMarker = "✓"
	FailureMarker = "✗"
	ActiveMarker  = "●"
)

// detailKeyWidth fits the longest printed detail key.
const detailKeyWidth = 18

func fg(c lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(c)
}

var (
	HeaderTitleStyle      = fg(TextColor).Bold(true).PaddingLeft(2)
	HeaderCommandStyle    = fg(MutedColor).PaddingLeft(2)
	HeaderParamKeyStyle   = fg(MutedColor).PaddingLeft(2)
	HeaderParamValueStyle = fg(TextColor)

	SuccessTitleStyle = fg(SuccessColor).Bold(true)
	ErrorTitleStyle   = fg(ErrorColor).Bold(true)
	ErrorMessageStyle = fg(ErrorColor)

	// ResultKeyStyle pads keys so key/value rows line up.
	ResultKeyStyle   = fg(MutedColor).Width(detailKeyWidth)
	ResultValueStyle = fg(TextColor)

	TroubleshootingTitleStyle = fg(MutedColor).Bold(true)
	TroubleshootingItemStyle  = fg(MutedColor)

	// WarningStyle marks stale or degraded readings.
	WarningStyle = fg(WarningColor)
)

// clampWidth bounds a measured terminal width; a failed measurement (not a
// terminal) yields the minimum.
func clampWidth(width int, err error) int {
	switch {
	case err != nil, width < MinTerminalWidth:
		return MinTerminalWidth
	case width > MaxContentWidth:
		return MaxContentWidth
	}
	return width
}

// GetTerminalWidth returns the usable width of stdout.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	return clampWidth(width, err)
}

// box is a bordered block; width includes the two border columns.
func box(border lipgloss.Border, color lipgloss.Color, width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Border(border).
		BorderForeground(color).
		Width(width - 2)
}

func HeaderBorderStyle(width int) lipgloss.Style {
	return box(lipgloss.RoundedBorder(), PrimaryColor, width)
}

func SuccessBoxStyle(width int) lipgloss.Style {
	return box(lipgloss.DoubleBorder(), SuccessColor, width).Padding(0, 2)
}

func ErrorBoxStyle(width int) lipgloss.Style {
	return box(lipgloss.DoubleBorder(), ErrorColor, width).Padding(0, 2)
}

// TroubleshootingBoxStyle nests inside an error box, so it is six columns
// narrower than the box it sits in.
func TroubleshootingBoxStyle(width int) lipgloss.Style {
	return box(lipgloss.RoundedBorder(), MutedColor, width-6).Padding(0, 1)
}

// RenderHorizontalDivider repeats char across width columns.
func RenderHorizontalDivider(width int, char string) string {
	return fg(PrimaryColor).Render(strings.Repeat(char, width))
}

// RenderPixels draws RGB triplets as a strip of colored blocks, at most
// maxPixels wide. A trailing partial triplet is ignored.
func RenderPixels(rgb []byte, maxPixels int) string {
	var b strings.Builder
	for i := 0; i+2 < len(rgb) && i/3 < maxPixels; i += 3 {
		color := lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", rgb[i], rgb[i+1], rgb[i+2]))
		b.WriteString(fg(color).Render("█"))
	}
	return b.String()
}
