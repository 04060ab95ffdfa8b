package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/kerbaras/mangetsu/pkg/data"
)

var (
	// Color palette
	Primary    = lipgloss.Color("#FF6B9D")
	Secondary  = lipgloss.Color("#C792EA")
	Success    = lipgloss.Color("#C3E88D")
	Warning    = lipgloss.Color("#FFCB6B")
	Error      = lipgloss.Color("#F07178")
	Info       = lipgloss.Color("#82AAFF")
	Muted      = lipgloss.Color("#546E7A")
	Foreground = lipgloss.Color("#EEFFFF")

	RoundedBorder = lipgloss.RoundedBorder()
)

var (
	// Title style for headings
	TitleStyle = lipgloss.NewStyle().
			Foreground(Primary).
			Bold(true).
			MarginBottom(1)

	// Normal text
	TextStyle = lipgloss.NewStyle().
			Foreground(Foreground)

	// Muted/dimmed text
	MutedStyle = lipgloss.NewStyle().
			Foreground(Muted)

	// Status styles
	StatusDownloading = lipgloss.NewStyle().
				Foreground(Info).
				Bold(true)

	StatusPaused = lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true)

	StatusQueued = lipgloss.NewStyle().
			Foreground(Secondary)

	StatusError = lipgloss.NewStyle().
			Foreground(Error).
			Bold(true)

	// Help text
	HelpStyle = lipgloss.NewStyle().
			Foreground(Muted).
			Italic(true).
			MarginTop(1)
)

// StatusStyle maps a job status to its display style.
func StatusStyle(status data.JobStatus) lipgloss.Style {
	switch status {
	case data.JobDownloading:
		return StatusDownloading
	case data.JobPaused:
		return StatusPaused
	case data.JobQueued:
		return StatusQueued
	case data.JobFailed:
		return StatusError
	default:
		return MutedStyle
	}
}
