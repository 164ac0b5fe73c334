// Package tui provides a Bubble Tea terminal user interface for the
// download queue.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/sync/errgroup"

	"github.com/ytget/yt-queue/internal/download"
	"github.com/ytget/yt-queue/internal/model"
	"github.com/ytget/yt-queue/internal/platform"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true)
)

// UI constants
const (
	RefreshInterval = 250 * time.Millisecond
	MaxLogLines     = 8
	TitleWidth      = 40
	StatusWidth     = 11
	DefaultBarWidth = 24
)

// Focus selects which part of the screen receives keys
type Focus int

const (
	FocusInput Focus = iota
	FocusList
)

// Message types
type (
	// LogMsg carries one log event from the engine.
	LogMsg struct {
		Event download.LogEvent
	}

	// FinishedMsg is sent when a task reaches Completed or Error.
	FinishedMsg struct {
		TaskID  string
		Success bool
		Message string
	}

	// AddedMsg reports the outcome of enqueueing input URLs.
	AddedMsg struct {
		IDs []string
		Err error
	}

	// TickMsg refreshes task snapshots.
	TickMsg struct{}
)

// Model is the Bubble Tea model for the TUI.
type Model struct {
	downloader download.Downloader
	input      textinput.Model
	bar        progress.Model
	focus      Focus

	qualities []model.Quality
	quality   int

	tasks  []model.DownloadTask
	cursor int
	logs   []download.LogEvent

	outputDir string
	mode      string

	ctx    context.Context
	cancel context.CancelFunc

	width int
}

// NewModel creates a new TUI model driving d
func NewModel(d download.Downloader, defaultQuality model.Quality, outputDir, mode string) Model {
	ti := textinput.New()
	ti.Placeholder = "https://www.youtube.com/watch?v=... (several URLs separated by spaces)"
	ti.Focus()
	ti.CharLimit = 2000
	ti.Width = 70

	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = DefaultBarWidth

	qualities := model.QualityOptions()
	selected := 0
	for i, q := range qualities {
		if q == defaultQuality {
			selected = i
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return Model{
		downloader: d,
		input:      ti,
		bar:        bar,
		focus:      FocusInput,
		qualities:  qualities,
		quality:    selected,
		outputDir:  outputDir,
		mode:       mode,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, tick())
}

func tick() tea.Cmd {
	return tea.Tick(RefreshInterval, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-10, 20)
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case TickMsg:
		m.refresh()
		return m, tick()

	case LogMsg:
		m.appendLog(msg.Event)
		return m, nil

	case FinishedMsg:
		m.refresh()
		return m, nil

	case AddedMsg:
		if msg.Err != nil {
			m.appendLog(download.NewLogEvent(download.SystemTaskID, "add failed: "+msg.Err.Error()))
		}
		m.refresh()
		return m, nil
	}

	if m.focus == FocusInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// handleKey processes global and focus-specific keys
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	switch msg.String() {
	case "ctrl+c":
		m.downloader.StopAll()
		m.cancel()
		return tea.Quit, true
	case "tab":
		if m.focus == FocusInput {
			m.focus = FocusList
			m.input.Blur()
		} else {
			m.focus = FocusInput
			m.input.Focus()
		}
		return nil, true
	}

	if m.focus == FocusInput {
		if msg.String() == "enter" {
			value := strings.TrimSpace(m.input.Value())
			if value == "" {
				return nil, true
			}
			m.input.SetValue("")
			return addURLs(m.ctx, m.downloader, value, m.selectedQuality()), true
		}
		return nil, false
	}

	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.tasks)-1 {
			m.cursor++
		}
	case "s":
		if id, ok := m.selectedID(); ok {
			_ = m.downloader.Start(id)
		}
	case "x":
		if id, ok := m.selectedID(); ok {
			_ = m.downloader.Stop(id)
		}
	case "a":
		m.downloader.StartAll()
	case "z":
		m.downloader.StopAll()
	case "c":
		m.downloader.ClearTerminal()
	case "f":
		m.quality = (m.quality + 1) % len(m.qualities)
	case "q":
		m.downloader.StopAll()
		m.cancel()
		return tea.Quit, true
	default:
		return nil, true
	}
	m.refresh()
	return nil, true
}

// addURLs enqueues every URL in input. Playlist URLs are expanded
// concurrently; single URLs are added directly.
func addURLs(ctx context.Context, d download.Downloader, input string, quality model.Quality) tea.Cmd {
	return func() tea.Msg {
		var (
			mu  sync.Mutex
			ids []string
		)
		g, ctx := errgroup.WithContext(ctx)
		for _, url := range strings.Fields(input) {
			g.Go(func() error {
				var added []string
				if platform.IsPlaylistURL(url) {
					var err error
					if added, err = d.AddPlaylist(ctx, url, quality); err != nil {
						return fmt.Errorf("%s: %w", url, err)
					}
				} else {
					id, err := d.Add(url, quality)
					if err != nil {
						return err
					}
					added = []string{id}
				}
				mu.Lock()
				ids = append(ids, added...)
				mu.Unlock()
				return nil
			})
		}
		err := g.Wait()
		return AddedMsg{IDs: ids, Err: err}
	}
}

func (m *Model) refresh() {
	m.tasks = m.downloader.Snapshots()
	if m.cursor >= len(m.tasks) {
		m.cursor = max(len(m.tasks)-1, 0)
	}
}

func (m *Model) appendLog(ev download.LogEvent) {
	m.logs = append(m.logs, ev)
	if len(m.logs) > MaxLogLines {
		m.logs = m.logs[len(m.logs)-MaxLogLines:]
	}
}

func (m Model) selectedID() (string, bool) {
	if m.cursor < 0 || m.cursor >= len(m.tasks) {
		return "", false
	}
	return m.tasks[m.cursor].ID, true
}

func (m Model) selectedQuality() model.Quality {
	return m.qualities[m.quality]
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("yt-queue"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Output: %s | Mode: %s", m.outputDir, m.mode)))
	b.WriteString("\n\n")

	b.WriteString(subtitleStyle.Render(fmt.Sprintf("Add URL (quality: %s)", m.selectedQuality())))
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n\n")

	b.WriteString(m.renderTasks())
	b.WriteString("\n")
	b.WriteString(m.renderLogs())
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(m.helpText()))

	return b.String()
}

func (m Model) renderTasks() string {
	if len(m.tasks) == 0 {
		return dimStyle.Render("No tasks yet") + "\n"
	}

	var b strings.Builder
	for i, task := range m.tasks {
		marker := "  "
		if i == m.cursor && m.focus == FocusList {
			marker = "▸ "
		}

		status := statusStyle(task.Status).Render(fmt.Sprintf("%-*s", StatusWidth, task.Status))
		line := fmt.Sprintf("%s%s %s %3d%% %s  %s",
			marker,
			status,
			m.bar.ViewAs(float64(task.Percent)/100),
			task.Percent,
			truncate(task.GetDisplayTitle(), TitleWidth),
			dimStyle.Render(task.StatusText),
		)
		if i == m.cursor && m.focus == FocusList {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderLogs() string {
	var b strings.Builder
	for _, ev := range m.logs {
		style := infoStyle
		lower := strings.ToLower(ev.Message)
		switch {
		case strings.Contains(lower, "error") || strings.Contains(lower, "failed"):
			style = errorStyle
		case strings.Contains(lower, "warning") || strings.Contains(lower, "stop"):
			style = warningStyle
		}
		b.WriteString(style.Render(fmt.Sprintf("%s [%s] %s", ev.Time.Format("15:04:05"), shortID(ev.TaskID), ev.Message)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) helpText() string {
	if m.focus == FocusInput {
		return "enter: add • tab: task list • ctrl+c: quit"
	}
	return "s: start • x: stop • a: start all • z: stop all • c: clear finished • f: quality • tab: input • q: quit"
}

func statusStyle(status model.TaskStatus) lipgloss.Style {
	switch status {
	case model.TaskStatusCompleted:
		return successStyle
	case model.TaskStatusError:
		return errorStyle
	case model.TaskStatusStopped:
		return warningStyle
	case model.TaskStatusDownloading:
		return infoStyle
	default:
		return dimStyle
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s + strings.Repeat(" ", n-len(r))
	}
	return string(r[:n-1]) + "…"
}

func shortID(id string) string {
	id = strings.TrimPrefix(id, download.TaskIDPrefix)
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}

// Run starts the TUI application and blocks until it exits.
func Run(d download.Downloader, sink *Sink, defaultQuality model.Quality, outputDir, mode string) error {
	p := tea.NewProgram(NewModel(d, defaultQuality, outputDir, mode), tea.WithAltScreen())
	sink.Attach(p)
	defer sink.Close()
	_, err := p.Run()
	return err
}
