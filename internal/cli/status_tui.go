package cli

import (
	"fmt"
	"strings"
	"time"

	"upscale-manager/internal/discovery"
	"upscale-manager/internal/model"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const statusRefreshInterval = 2 * time.Second

type statusLoader func() (discovery.StatusResult, error)

type statusModel struct {
	load     statusLoader
	result   discovery.StatusResult
	loaded   bool
	loadedAt time.Time
	loadErr  error
	cursor   int
	width    int
	height   int
	bar      progress.Model
	spin     spinner.Model
	fatalErr error
}

type statusLoadedMsg struct {
	result discovery.StatusResult
	err    error
	at     time.Time
}

type statusTickMsg time.Time

var (
	statusTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statusMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	statusErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	statusOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	statusBusyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	statusPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusSelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Bold(true)
)

func newStatusModel(load statusLoader) statusModel {
	return statusModel{
		load: load,
		bar:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spin: spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

func loadStatusCmd(load statusLoader) tea.Cmd {
	return func() tea.Msg {
		res, err := load()
		return statusLoadedMsg{result: res, err: err, at: time.Now()}
	}
}

func statusTickCmd() tea.Cmd {
	return tea.Tick(statusRefreshInterval, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}

func (m statusModel) Init() tea.Cmd {
	return tea.Batch(loadStatusCmd(m.load), statusTickCmd(), m.spin.Tick)
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = clampInt(msg.Width-24, 10, 60)
		return m, nil
	case statusLoadedMsg:
		m.loadedAt = msg.at
		if msg.err != nil {
			m.loadErr = msg.err
			if !m.loaded {
				m.fatalErr = msg.err
				return m, tea.Quit
			}
			return m, nil
		}
		m.loadErr = nil
		m.loaded = true
		m.result = msg.result
		m.cursor = clampInt(m.cursor, 0, maxInt(len(m.result.Rows)-1, 0))
		return m, nil
	case statusTickMsg:
		return m, tea.Batch(loadStatusCmd(m.load), statusTickCmd())
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m statusModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "r":
		return m, loadStatusCmd(m.load)
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.result.Rows)-1 {
			m.cursor++
		}
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = maxInt(len(m.result.Rows)-1, 0)
	}
	return m, nil
}

func (m statusModel) selected() (discovery.JobStatus, bool) {
	if m.cursor < 0 || m.cursor >= len(m.result.Rows) {
		return discovery.JobStatus{}, false
	}
	return m.result.Rows[m.cursor], true
}

func (m statusModel) View() string {
	if m.fatalErr != nil {
		return statusErrorStyle.Render("fatal: " + m.fatalErr.Error())
	}
	if m.width <= 0 {
		m.width = 100
	}
	if m.height <= 0 {
		m.height = 30
	}

	header := statusTitleStyle.Render("upscale-manager status") + "  " + m.spin.View() + "\n" +
		statusMutedStyle.Render("up/down: move | r: refresh | q: quit")
	if !m.loaded {
		return header + "\n\n" + statusMutedStyle.Render("loading...")
	}
	body := lipgloss.JoinVertical(lipgloss.Left,
		m.renderJobList(m.width),
		m.renderJobDetail(m.width),
	)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.renderFooter())
}

func (m statusModel) renderJobList(width int) string {
	rows := m.result.Rows
	if len(rows) == 0 {
		return statusPanelStyle.Width(width).Render(statusMutedStyle.Render("No jobs yet. Drop a video into the input directory."))
	}
	maxRows := clampInt(m.height-16, 3, 20)
	start, end := listWindow(len(rows), m.cursor, maxRows)

	lines := make([]string, 0, maxRows+2)
	if start > 0 {
		lines = append(lines, statusMutedStyle.Render("..."))
	}
	for i := start; i < end; i++ {
		row := rows[i]
		line := fmt.Sprintf("%-14s %5.1f%%  %s", row.Stage, row.Percent()*100, row.Job)
		line = truncateRunes(line, maxInt(width-6, 10))
		if i == m.cursor {
			line = statusSelStyle.Width(maxInt(width-4, 6)).Render(line)
		} else {
			line = stageStyle(row.Stage).Render(line)
		}
		lines = append(lines, line)
	}
	if end < len(rows) {
		lines = append(lines, statusMutedStyle.Render("..."))
	}
	return statusPanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m statusModel) renderJobDetail(width int) string {
	row, ok := m.selected()
	if !ok {
		return ""
	}
	lines := []string{
		statusTitleStyle.Render(row.Job),
		kv("stage", row.Stage),
		kv("frames", fmt.Sprintf("%d/%d upscaled", row.Upscaled, row.Frames)),
		m.bar.ViewAs(row.Percent()),
		kv("checkpoint", fmt.Sprintf("%d", row.Checkpoint)),
		kv("audio", yesNo(row.Audio)),
		kv("final", yesNo(row.Final)),
	}
	if row.RunID != "" {
		lines = append(lines, kv("run", row.RunID))
	}
	if row.UpdatedAt != "" {
		lines = append(lines, kv("updated", row.UpdatedAt))
	}
	if row.LastError != "" {
		lines = append(lines, statusErrorStyle.Render(truncateRunes("last error: "+row.LastError, maxInt(width-6, 10))))
	}
	return statusPanelStyle.Width(width).Render(strings.Join(lines, "\n"))
}

func (m statusModel) renderFooter() string {
	t := m.result.Totals
	line := fmt.Sprintf("jobs %d | done %d | in progress %d | queued %d | failed %d | frames %d/%d",
		t.Jobs, t.Done, t.InProgress, t.Queued, t.Failed, t.Upscaled, t.Frames)
	if !m.loadedAt.IsZero() {
		line += " | refreshed " + m.loadedAt.Format("15:04:05")
	}
	if m.loadErr != nil {
		return statusMutedStyle.Render(line) + "\n" + statusErrorStyle.Render("refresh failed: "+m.loadErr.Error())
	}
	return statusMutedStyle.Render(line)
}

func stageStyle(stage string) lipgloss.Style {
	switch stage {
	case model.StageDone:
		return statusOKStyle
	case model.StageFailed, discovery.StateFailedPermanent, discovery.StateNeedsRetry:
		return statusErrorStyle
	case discovery.StateQueued:
		return statusMutedStyle
	default:
		return statusBusyStyle
	}
}
