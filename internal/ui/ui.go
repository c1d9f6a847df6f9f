package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/trackmeta/internal/tasks"
)

// ViewState represents the current view in the TUI.
type ViewState int

const (
	WarmView ViewState = iota
	ResultView
)

// Warmer runs a warm. [tasks.WarmEngine] satisfies it.
type Warmer interface {
	Warm(ctx context.Context, prog chan<- tasks.ProgressUpdate, ids []string, opts tasks.WarmOpts) (*tasks.WarmResult, error)
}

// missingItem wraps an unresolved id to implement [list.Item].
type missingItem struct {
	id     string
	reason string
}

func (i missingItem) FilterValue() string { return i.id }
func (i missingItem) Title() string       { return i.id }
func (i missingItem) Description() string { return i.reason }

var _ list.Item = missingItem{}

// Model represents the TUI application state for a warm run.
type Model struct {
	ctx          context.Context
	cancel       context.CancelFunc
	view         ViewState
	engine       Warmer
	ids          []string
	opts         tasks.WarmOpts
	width        int
	height       int
	bar          progress.Model
	progressChan chan tasks.ProgressUpdate
	outcome      chan warmOutcome
	progress     tasks.ProgressUpdate
	result       *tasks.WarmResult
	err          error
	missing      list.Model
	help         help.Model
	keys         keyMap
}

// NewModel creates a TUI model that warms ids with engine once started.
func NewModel(ctx context.Context, engine Warmer, ids []string, opts tasks.WarmOpts) *Model {
	ctx, cancel := context.WithCancel(ctx)
	return &Model{
		ctx:    ctx,
		cancel: cancel,
		view:   WarmView,
		engine: engine,
		ids:    ids,
		opts:   opts,
		bar:    progress.New(progress.WithDefaultGradient()),
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// Init starts the warm run.
func (m *Model) Init() tea.Cmd {
	return m.startWarm()
}

// Result returns the outcome once the program has exited.
func (m *Model) Result() (*tasks.WarmResult, error) {
	return m.result, m.err
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = min(msg.Width-4, 80)
		if m.view == ResultView {
			m.missing.SetSize(msg.Width-4, msg.Height-10)
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.quit) {
			m.cancel()
			return m, tea.Quit
		}
		if m.view == ResultView {
			var cmd tea.Cmd
			m.missing, cmd = m.missing.Update(msg)
			return m, cmd
		}
		return m, nil

	case Msg:
		switch msg.kind {
		case MsgProgressUpdate:
			m.progress = msg.data.(tasks.ProgressUpdate)
			return m, m.waitForProgress()
		case MsgWarmComplete:
			outcome := msg.data.(warmOutcome)
			m.result, m.err = outcome.result, outcome.err
			m.view = ResultView
			m.missing = m.buildMissingList()
			return m, nil
		}
	}

	return m, nil
}

// View renders the UI based on the current view state.
func (m *Model) View() string {
	switch m.view {
	case WarmView:
		return m.renderWarm()
	case ResultView:
		return m.renderResult()
	default:
		return ""
	}
}

func (m *Model) startWarm() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 50)
	m.outcome = make(chan warmOutcome, 1)

	go func() {
		result, err := m.engine.Warm(m.ctx, m.progressChan, m.ids, m.opts)
		m.outcome <- warmOutcome{result: result, err: err}
		close(m.progressChan)
	}()

	return m.waitForProgress()
}

func (m *Model) waitForProgress() tea.Cmd {
	progressChan, outcome := m.progressChan, m.outcome
	return func() tea.Msg {
		update, ok := <-progressChan
		if !ok {
			o := <-outcome
			return warmCompleteMsg(o.result, o.err)
		}
		return progressUpdateMsg(update)
	}
}

// percent is the share of batches finished so far.
func (m *Model) percent() float64 {
	if m.progress.Total == 0 {
		return 0
	}
	return float64(m.progress.Step) / float64(m.progress.Total)
}

func (m *Model) buildMissingList() list.Model {
	var items []list.Item
	if m.result != nil {
		for _, id := range m.result.MissingIDs {
			items = append(items, missingItem{id: id, reason: "not in catalog"})
		}
		for _, f := range m.result.Failures {
			for _, id := range f.IDs {
				items = append(items, missingItem{id: id, reason: fmt.Sprintf("batch %d failed: %v", f.Index+1, f.Error)})
			}
		}
	}

	l := list.New(items, list.NewDefaultDelegate(), max(m.width-4, 0), max(m.height-10, 0))
	l.Title = "Unresolved tracks"
	return l
}

func (m *Model) renderWarm() string {
	title := styles.title.Render(fmt.Sprintf("Warming %d tracks", len(m.ids)))
	status := m.progress.Message
	if status == "" {
		status = "Starting..."
	}
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.quit})
	return fmt.Sprintf("%s\n%s\n\n%s\n\n%s", title, m.bar.ViewAs(m.percent()), status, helpView)
}

func (m *Model) renderResult() string {
	helpView := m.help.ShortHelpView([]key.Binding{m.keys.up, m.keys.down, m.keys.quit})

	if m.err != nil {
		return styles.err.Render(fmt.Sprintf("Warm failed: %v", m.err)) + "\n\n" + helpView
	}
	if m.result == nil {
		return styles.err.Render("No result available") + "\n\n" + helpView
	}

	r := m.result
	title := styles.ok.Render("✓ Warm Complete!")
	info := fmt.Sprintf("\nResolved: %d/%d\nMissing: %d\nFailed batches: %d/%d\nTook: %s",
		r.Resolved, r.TotalIDs, r.Missing, r.FailedBatches, r.Batches, r.Duration.Round(time.Millisecond))

	if len(m.missing.Items()) == 0 {
		return fmt.Sprintf("%s\n%s\n\n%s", title, info, helpView)
	}

	warn := styles.warn.Render(fmt.Sprintf("%d tracks unresolved", len(m.missing.Items())))
	return fmt.Sprintf("%s\n%s\n\n%s\n%s\n\n%s", title, info, warn, m.missing.View(), helpView)
}
