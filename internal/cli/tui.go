package cli

import (
	"fmt"
	"path"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/matzehuels/depot/pkg/transfer"
)

// Progress styles
var (
	barFullStyle  = lipgloss.NewStyle().Foreground(colorCyan)
	barEmptyStyle = lipgloss.NewStyle().Foreground(colorDim)
	rowNameStyle  = lipgloss.NewStyle().Foreground(colorWhite)
	rowDimStyle   = lipgloss.NewStyle().Foreground(colorDim)
)

const barWidth = 24

// =============================================================================
// TransferModel - Live transfer progress
// =============================================================================

// transferState is the lifecycle position of one row.
type transferState int

const (
	stateQueued transferState = iota
	stateRunning
	stateDone
	stateFailed
)

// transferMsg reports one transfer event to the model.
type transferMsg struct {
	id    uuid.UUID
	name  string
	state transferState
	bytes int64
	total int64
	err   error
}

// transfersDoneMsg ends the program.
type transfersDoneMsg struct{}

type transferRow struct {
	name  string
	state transferState
	bytes int64
	total int64
	err   error
}

// TransferModel is the bubbletea model showing one progress bar per
// transfer.
type TransferModel struct {
	rows     map[uuid.UUID]*transferRow
	order    []uuid.UUID
	Quit     bool
	finished bool
}

// NewTransferModel creates an empty model.
func NewTransferModel() TransferModel {
	return TransferModel{rows: map[uuid.UUID]*transferRow{}}
}

func (m TransferModel) Init() tea.Cmd {
	return nil
}

func (m TransferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.Quit = true
			return m, tea.Quit
		}
	case transferMsg:
		row, ok := m.rows[msg.id]
		if !ok {
			row = &transferRow{name: msg.name}
			m.rows[msg.id] = row
			m.order = append(m.order, msg.id)
		}
		row.state = msg.state
		if msg.bytes > row.bytes {
			row.bytes = msg.bytes
		}
		if msg.total > 0 {
			row.total = msg.total
		}
		row.err = msg.err
	case transfersDoneMsg:
		m.finished = true
		return m, tea.Quit
	}
	return m, nil
}

func (m TransferModel) View() string {
	var b strings.Builder
	b.WriteString(StyleTitle.Render("Downloading"))
	b.WriteString("\n\n")
	for _, id := range m.order {
		b.WriteString(m.rows[id].view())
		b.WriteString("\n")
	}
	if m.finished {
		b.WriteString("\n")
	} else {
		b.WriteString(rowDimStyle.Render("\nq quit"))
		b.WriteString("\n")
	}
	return b.String()
}

func (r *transferRow) view() string {
	var icon string
	switch r.state {
	case stateDone:
		icon = styleIconSuccess.Render(iconSuccess)
	case stateFailed:
		icon = styleIconError.Render(iconError)
	default:
		icon = styleIconSpinner.Render(iconInfo)
	}
	line := fmt.Sprintf("%s %-40s %s %s", icon, rowNameStyle.Render(truncate(r.name, 40)), bar(r.bytes, r.total, r.state), rowDimStyle.Render(formatBytes(r.bytes)))
	if r.state == stateFailed && r.err != nil {
		line += " " + StyleWarning.Render(truncate(r.err.Error(), 60))
	}
	return line
}

// bar draws a fixed-width progress bar. Unknown totals fill the bar once
// the transfer is done.
func bar(n, total int64, state transferState) string {
	filled := 0
	switch {
	case state == stateDone:
		filled = barWidth
	case total > 0:
		filled = int(n * barWidth / total)
	}
	filled = min(max(filled, 0), barWidth)
	return barFullStyle.Render(strings.Repeat("━", filled)) + barEmptyStyle.Render(strings.Repeat("━", barWidth-filled))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "…" + s[len(s)-n+1:]
}

func formatBytes(n int64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	}
	return fmt.Sprintf("%d B", n)
}

// =============================================================================
// Listener bridge
// =============================================================================

// sender is the part of *tea.Program the listener needs.
type sender interface {
	Send(msg tea.Msg)
}

// teaListener forwards transfer events to a running program. Existence
// checks are not shown.
type teaListener struct {
	transfer.BaseListener
	program sender
}

func (l teaListener) send(e transfer.Event, state transferState) {
	if e.RequestType == transfer.GetExistence {
		return
	}
	l.program.Send(transferMsg{
		id:    e.Resource.ID(),
		name:  path.Base(e.Resource.Name()),
		state: state,
		bytes: e.TransferredBytes,
		total: e.Resource.ContentLength(),
		err:   e.Err,
	})
}

func (l teaListener) TransferInitiated(e transfer.Event) error {
	l.send(e, stateQueued)
	return nil
}

func (l teaListener) TransferStarted(e transfer.Event) error {
	l.send(e, stateRunning)
	return nil
}

func (l teaListener) TransferProgressed(e transfer.Event) error {
	l.send(e, stateRunning)
	return nil
}

func (l teaListener) TransferSucceeded(e transfer.Event) { l.send(e, stateDone) }
func (l teaListener) TransferFailed(e transfer.Event)    { l.send(e, stateFailed) }
