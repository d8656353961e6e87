package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary).
			MarginBottom(1)

	StyleLabel = lipgloss.NewStyle().
			Foreground(ColorText).
			Bold(true)

	StyleSuccess = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	StyleError = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	StyleWarning = lipgloss.NewStyle().
			Foreground(ColorWarning)

	StyleMuted = lipgloss.NewStyle().
			Foreground(ColorMuted)

	// partial transcripts, replaced in place until committed
	StylePartial = lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Italic(true)

	StyleSpeech = lipgloss.NewStyle().
			Foreground(ColorSecondary)
)

const logoASCII = `
                 _ _        __ _               
  __ _ _   _  __| (_) ___  / _| | _____      __
 / _' | | | |/ _' | |/ _ \| |_| |/ _ \ \ /\ / /
| (_| | |_| | (_| | | (_) |  _| | (_) \ V  V / 
 \__,_|\__,_|\__,_|_|\___/|_| |_|\___/ \_/\_/  `

func Logo() string {
	return StyleHeader.Render(strings.Trim(logoASCII, "\n"))
}
