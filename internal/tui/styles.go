package tui

import (
	"strings"

	"charm.land/lipgloss/v2"
)

// Leaf green for the SAGE branding.
const sageGreen = "#34A853"

// SAGE ASCII art (filled block style).
var sageArt = []string{
	"    ███████╗ █████╗  ██████╗ ███████╗",
	"    ██╔════╝██╔══██╗██╔════╝ ██╔════╝",
	"    ███████╗███████║██║  ███╗█████╗  ",
	"    ╚════██║██╔══██║██║   ██║██╔══╝  ",
	"    ███████║██║  ██║╚██████╔╝███████╗",
	"    ╚══════╝╚═╝  ╚═╝ ╚═════╝ ╚══════╝",
}

// Spreadsheet glyph drawn beside the wordmark.
var sheetArt = []string{
	"  ┌─┬─┐",
	"  ├─┼─┤",
	"  ├─┼─┤",
	"  └─┴─┘",
	"       ",
	"       ",
}

// Styles contains all lipgloss styles for the TUI.
type Styles struct {
	Banner     lipgloss.Style
	User       lipgloss.Style
	Assistant  lipgloss.Style
	System     lipgloss.Style
	Tips       lipgloss.Style
	Error      lipgloss.Style
	Prompt     lipgloss.Style
	Separator  lipgloss.Style
	StatusBar  lipgloss.Style
	ChartBar   lipgloss.Style
	ChartLabel lipgloss.Style
	ChartValue lipgloss.Style
	BigValue   lipgloss.Style
	TableNote  lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Banner:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(sageGreen)),
		User:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Assistant:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		System:     lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		Tips:       lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		Error:      lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Prompt:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Separator:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		StatusBar:  lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		ChartBar:   lipgloss.NewStyle().Foreground(lipgloss.Color(sageGreen)),
		ChartLabel: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		ChartValue: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		BigValue:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(sageGreen)),
		TableNote:  lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
	}
}

// RenderBanner returns the SAGE ASCII art banner as a styled string.
func (s Styles) RenderBanner() string {
	var b strings.Builder
	for i := range sageArt {
		_, _ = b.WriteString(s.Banner.Render(sheetArt[i]))
		_, _ = b.WriteString(s.Banner.Render(sageArt[i]))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}

// welcomeTips are shown under the banner.
var welcomeTips = []string{
	"Tips for getting started:",
	"  • Upload a spreadsheet with /upload <path>, then ask about it",
	"  • Results render as tables and charts; [ and ] flip table pages",
	"  • Use /help to see available commands",
	"  • Press Ctrl+C to cancel, Ctrl+D to exit",
}

// RenderWelcomeTips returns the styled welcome tips.
func (s Styles) RenderWelcomeTips() string {
	var b strings.Builder
	for _, tip := range welcomeTips {
		_, _ = b.WriteString(s.Tips.Render(tip))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}
