// Package tui implements the interactive resource browser.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/quarrydata/quarry/internal/browse"
	"github.com/quarrydata/quarry/internal/events"
	"github.com/quarrydata/quarry/pkg/models"
)

// ConfirmGate adapts the hierarchy's synchronous confirmation to the
// TUI's modal flow: the modal is rendered by the model, and the gate
// merely reports the answer the user already gave. Arming is one-shot.
type ConfirmGate struct {
	mu    sync.Mutex
	allow bool
}

// NewConfirmGate creates an unarmed gate.
func NewConfirmGate() *ConfirmGate { return &ConfirmGate{} }

// Arm makes the next Confirm call answer yes.
func (g *ConfirmGate) Arm() {
	g.mu.Lock()
	g.allow = true
	g.mu.Unlock()
}

// Confirm implements browse.Confirmer.
func (g *ConfirmGate) Confirm(ctx context.Context, text, yesText string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	allow := g.allow
	g.allow = false
	return allow, nil
}

type busMsg events.Event

// Model is the bubbletea model for the resource browser.
type Model struct {
	hier *browse.Hierarchy
	gate *ConfirmGate
	bus  *events.Bus
	ch   chan events.Event

	keys keyMap
	help help.Model

	cursor     int
	proj       browse.Projection
	confirming bool
	modalText  string
	status     string
	statusType string
	width      int
	loaded     bool
}

// New creates the browser model. The gate must be the Confirmer the
// hierarchy was built with.
func New(hier *browse.Hierarchy, gate *ConfirmGate, bus *events.Bus) *Model {
	return &Model{
		hier: hier,
		gate: gate,
		bus:  bus,
		ch:   bus.Subscribe(),
		keys: defaultKeyMap(),
		help: help.New(),
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadCmd(), m.waitBus())
}

func (m *Model) waitBus() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.ch
		if !ok {
			return nil
		}
		return busMsg(ev)
	}
}

type loadedMsg struct{ err error }

func (m *Model) loadCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return loadedMsg{err: m.hier.Load(ctx)}
	}
}

type opDoneMsg struct{ err error }

// bulkCmd runs a bulk operation off the UI goroutine so the hierarchy's
// busy flag is observable while the request is in flight.
func (m *Model) bulkCmd(fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return opDoneMsg{err: fn(ctx)}
	}
}

func (m *Model) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case loadedMsg:
		m.loaded = true
		m.clampCursor()
		m.proj = m.hier.Projection()
		return m, nil

	case opDoneMsg:
		if msg.err != nil {
			m.setStatus(msg.err.Error(), "danger")
		}
		m.afterChange()
		return m, nil

	case busMsg:
		if msg.Type == events.EventAlert && msg.Alert != nil {
			m.status = msg.Alert.Text
			m.statusType = msg.Alert.Type
		}
		m.proj = m.hier.Projection()
		return m, m.waitBus()

	case tea.KeyMsg:
		if m.confirming {
			return m.updateConfirm(msg)
		}
		return m.updateBrowse(msg)
	}
	return m, nil
}

func (m *Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		m.confirming = false
		m.gate.Arm()
		return m, m.bulkCmd(m.hier.DeleteChecked)
	default:
		m.confirming = false
		m.setStatus("delete cancelled", "info")
	}
	return m, nil
}

func (m *Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	ctx, cancel := m.opCtx()
	defer cancel()

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.bus.Unsubscribe(m.ch)
		m.hier.Close()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < m.hier.RowCount()-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Enter):
		if folder := m.folderUnderCursor(); folder != nil {
			if err := m.hier.Descend(ctx, folder); err != nil {
				m.setStatus(err.Error(), "danger")
			}
			m.cursor = 0
			m.afterChange()
		}

	case key.Matches(msg, m.keys.Back):
		if err := m.hier.Ascend(ctx); err != nil {
			m.setStatus(err.Error(), "danger")
		}
		m.cursor = 0
		m.afterChange()

	case key.Matches(msg, m.keys.Toggle):
		if m.hier.RowCount() > 0 {
			if err := m.hier.ToggleRow(m.cursor, false); err != nil {
				m.setStatus(err.Error(), "danger")
			}
			m.afterChange()
		}

	case key.Matches(msg, m.keys.RangeToggle):
		if m.hier.RowCount() > 0 {
			if err := m.hier.ToggleRow(m.cursor, true); err != nil {
				m.setStatus(err.Error(), "danger")
			}
			m.afterChange()
		}

	case key.Matches(msg, m.keys.CheckAll):
		m.hier.CheckAll(true)
		m.afterChange()

	case key.Matches(msg, m.keys.UncheckAll):
		m.hier.CheckAll(false)
		m.afterChange()

	case key.Matches(msg, m.keys.More):
		if err := m.hier.Folders().More(ctx); err != nil {
			m.setStatus(err.Error(), "danger")
		}
		if err := m.hier.Items().More(ctx); err != nil {
			m.setStatus(err.Error(), "danger")
		}
		m.afterChange()

	case key.Matches(msg, m.keys.Refresh):
		return m, m.loadCmd()

	case key.Matches(msg, m.keys.Pick):
		if m.proj.CheckedCount() == 0 {
			m.setStatus("nothing checked", "info")
			break
		}
		m.hier.PickChecked()
		m.afterChange()

	case key.Matches(msg, m.keys.MoveHere):
		if m.hier.Busy() {
			m.setStatus("another operation is in flight", "info")
			break
		}
		m.cursor = 0
		return m, m.bulkCmd(m.hier.MoveHere)

	case key.Matches(msg, m.keys.CopyHere):
		if m.hier.Busy() {
			m.setStatus("another operation is in flight", "info")
			break
		}
		m.cursor = 0
		return m, m.bulkCmd(m.hier.CopyHere)

	case key.Matches(msg, m.keys.ClearPicked):
		m.hier.ClearPicked()
		m.afterChange()

	case key.Matches(msg, m.keys.Delete):
		if m.hier.Busy() {
			m.setStatus("another operation is in flight", "info")
			break
		}
		if m.proj.CheckedCount() == 0 {
			m.setStatus("nothing checked", "info")
			break
		}
		m.confirming = true
		m.modalText = fmt.Sprintf("Delete %d checked resource(s)? [y/N]",
			m.proj.CheckedCount())
	}

	return m, nil
}

func (m *Model) afterChange() {
	m.clampCursor()
	m.proj = m.hier.Projection()
}

func (m *Model) clampCursor() {
	if n := m.hier.RowCount(); m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) folderUnderCursor() *models.Resource {
	rows := m.hier.Folders().Rows()
	if m.cursor < len(rows) {
		return rows[m.cursor].Resource
	}
	return nil
}

func (m *Model) setStatus(text, kind string) {
	m.status = text
	m.statusType = kind
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Quarry"))
	b.WriteString("  ")
	b.WriteString(m.renderBreadcrumbs())
	b.WriteString("\n")

	if !m.loaded {
		b.WriteString(dimStyle.Render("\nloading...\n"))
		return b.String()
	}

	index := 0
	folders := m.hier.Folders()
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Folders (%d/%d)", folders.Len(), folders.Total())))
	b.WriteString("\n")
	for _, row := range folders.Rows() {
		b.WriteString(m.renderRow(index, row, folderDetail(row.Resource)))
		index++
	}

	items := m.hier.Items()
	if m.hier.Parent().IsFolder() {
		b.WriteString(sectionStyle.Render(fmt.Sprintf("Items (%d/%d)", items.Len(), items.Total())))
		b.WriteString("\n")
		for _, row := range items.Rows() {
			b.WriteString(m.renderRow(index, row, humanize.Bytes(uint64(row.Resource.Size))))
			index++
		}
	}

	b.WriteString("\n")
	if m.proj.PickedCount > 0 {
		b.WriteString(pickedStyle.Render("picked: " + m.proj.PickedDesc))
		b.WriteString(dimStyle.Render(m.renderPickedHints()))
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(statusStyle(m.statusType).Render(m.status))
		b.WriteString("\n")
	}

	if m.confirming {
		b.WriteString(modalStyle.Render(m.modalText))
		b.WriteString("\n")
	}

	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderBreadcrumbs() string {
	crumbs := m.hier.Breadcrumbs()
	parts := make([]string, 0, len(crumbs))
	for i, c := range crumbs {
		name := c.Name
		if name == "" {
			name = string(c.Kind)
		}
		if i == len(crumbs)-1 {
			parts = append(parts, crumbTipStyle.Render(name))
		} else {
			parts = append(parts, crumbStyle.Render(name))
		}
	}
	return strings.Join(parts, crumbStyle.Render(" / "))
}

func (m *Model) renderRow(index int, row *browse.Row, detail string) string {
	cursor := "  "
	if index == m.cursor {
		cursor = cursorStyle.Render("> ")
	}
	box := "[ ]"
	name := row.Resource.Name
	if row.Checked {
		box = checkedStyle.Render("[x]")
		name = checkedStyle.Render(name)
	}
	return fmt.Sprintf("%s%s %s  %s\n", cursor, box, name, dimStyle.Render(detail))
}

func (m *Model) renderPickedHints() string {
	var hints []string
	if m.proj.PickedMoveAllowed {
		hints = append(hints, "m: move here")
	}
	if m.proj.PickedCopyAllowed {
		hints = append(hints, "c: copy here")
	}
	hints = append(hints, "C: clear")
	return "  " + strings.Join(hints, "  ")
}

func folderDetail(res *models.Resource) string {
	return fmt.Sprintf("%d folders, %d items", res.NFolders, res.NItems)
}
