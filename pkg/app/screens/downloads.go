package screens

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kerbaras/mangetsu/pkg/app/components"
	"github.com/kerbaras/mangetsu/pkg/app/styles"
	"github.com/kerbaras/mangetsu/pkg/services"
)

type tickMsg time.Time

// DownloadsScreen is a live view of the download queue.
type DownloadsScreen struct {
	queue *services.Queue
	list  *components.JobList

	width  int
	height int
	err    error
}

// NewDownloadsScreen returns the monitor for queue.
func NewDownloadsScreen(queue *services.Queue) *DownloadsScreen {
	return &DownloadsScreen{
		queue: queue,
		list:  components.NewJobList(60),
	}
}

func (s *DownloadsScreen) Init() tea.Cmd {
	s.list.SetJobs(s.queue.Jobs())
	return tick()
}

func (s *DownloadsScreen) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		s.list.SetWidth(msg.Width - 4)

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return s, tea.Quit
		case "p":
			s.err = s.queue.PauseAll()
		case "r":
			s.err = s.queue.ResumeAll()
		}

	case tickMsg:
		s.list.SetJobs(s.queue.Jobs())
		return s, tick()
	}

	return s, nil
}

func (s *DownloadsScreen) View() string {
	out := styles.TitleStyle.Render("Downloads") + "\n\n" + s.list.View()
	if s.err != nil {
		out += "\n" + styles.StatusError.Render("Error: "+s.err.Error())
	}
	out += "\n" + styles.HelpStyle.Render("p pause all · r resume all · q quit")
	return out
}

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
