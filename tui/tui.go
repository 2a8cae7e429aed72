// Package tui renders an edit session in the terminal and lets the user pick members to
// add, remove or restore.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/burntcarrot/sharepad/share"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	cursorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	addStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	removeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Strikethrough(true)
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Faint(true)
	plainStyle  = lipgloss.NewStyle()
)

// Run shows session until the user quits or ctx is done. applied delivers the working set
// each time a baseline has been merged in.
func Run(ctx context.Context, session *share.Session, applied <-chan []share.Entry) error {
	p := tea.NewProgram(New(session, applied))

	go func() {
		<-ctx.Done()
		p.Send(tea.Quit())
	}()

	return p.Start()
}

type mode int

const (
	modeList mode = iota
	modeAdd
	modeComment
	modeRename
	modeOwner
)

type (
	appliedMsg   []share.Entry
	submittedMsg struct {
		snapshot share.ContainerSnapshot
		err      error
	}
)

// Model is the bubbletea model of an edit session.
type Model struct {
	session *share.Session
	applied <-chan []share.Entry

	entries []share.Entry
	cursor  int
	mode    mode
	input   textinput.Model

	status   string
	err      error
	Quitting bool
}

// New returns a model showing session.
func New(session *share.Session, applied <-chan []share.Entry) Model {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 48

	return Model{
		session: session,
		applied: applied,
		entries: session.Snapshot(),
		input:   ti,
	}
}

func (m Model) Init() tea.Cmd {
	return waitForApplied(m.applied)
}

// waitForApplied turns the next applied baseline into a message.
func waitForApplied(applied <-chan []share.Entry) tea.Cmd {
	if applied == nil {
		return nil
	}
	return func() tea.Msg {
		entries, ok := <-applied
		if !ok {
			return nil
		}
		return appliedMsg(entries)
	}
}

func submit(session *share.Session) tea.Cmd {
	return func() tea.Msg {
		snapshot, err := session.Submit(context.Background())
		return submittedMsg{snapshot: snapshot, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case appliedMsg:
		m.refresh()
		return m, waitForApplied(m.applied)

	case submittedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = ""
		} else {
			m.err = nil
			m.status = fmt.Sprintf("Saved %s (%d members)", msg.snapshot.Name, len(msg.snapshot.Members))
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.Quitting = true
			return m, tea.Quit
		}
		if m.mode != modeList {
			return m.updateInput(msg)
		}
		return m.updateList(msg)
	}

	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		m.Quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(m.entries)-1 {
			m.cursor++
		}

	case "a":
		m.openInput(modeAdd, "[table|schema] catalog.schema.name")

	case "c":
		m.openInput(modeComment, "Comment")

	case "n":
		m.openInput(modeRename, "New name")

	case "o":
		m.openInput(modeOwner, "Owner")

	case "d", "delete", "backspace":
		if name, ok := m.selected(); ok {
			m.apply(m.session.Remove(name), "Removed "+name)
		}

	case "r":
		if name, ok := m.selected(); ok {
			m.apply(m.session.Restore(name), "Restored "+name)
		}

	case "s":
		if m.session.State() == share.StateSubmitting {
			m.err = share.ErrConcurrentSubmission
			return m, nil
		}
		m.err = nil
		m.status = "Saving..."
		return m, submit(m.session)
	}

	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.mode = modeList
		m.input.Blur()
		return m, nil

	case tea.KeyEnter:
		value := strings.TrimSpace(m.input.Value())
		switch m.mode {
		case modeAdd:
			name, kind, err := parseSelection(value)
			if err == nil {
				err = m.session.AddSelection(name, kind)
			}
			m.apply(err, "Added "+name)
		case modeComment:
			m.session.SetComment(value)
			m.apply(nil, "Comment changed")
		case modeRename:
			if value == "" {
				m.apply(errors.New("share name cannot be empty"), "")
				break
			}
			m.session.SetName(value)
			m.apply(nil, "Renaming to "+value+" on save")
		case modeOwner:
			m.session.SetOwner(value)
			m.apply(nil, "Owner changed")
		}
		m.mode = modeList
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) openInput(to mode, placeholder string) {
	m.mode = to
	m.input.Placeholder = placeholder
	m.input.Reset()
	m.input.Focus()
}

// parseSelection reads "name" or "kind name". The kind defaults to TABLE.
func parseSelection(value string) (string, share.Kind, error) {
	fields := strings.Fields(value)
	switch len(fields) {
	case 1:
		return fields[0], share.KindTable, nil
	case 2:
		kind, err := share.ParseKind(fields[0])
		if err != nil {
			return "", share.KindUnspecified, err
		}
		return fields[1], kind, nil
	}
	return "", share.KindUnspecified, fmt.Errorf("expected \"[kind] name\", got %q", value)
}

func (m *Model) selected() (string, bool) {
	if m.cursor < 0 || m.cursor >= len(m.entries) {
		return "", false
	}
	return m.entries[m.cursor].Member.Name, true
}

// apply records the outcome of a local edit and redraws the working set.
func (m *Model) apply(err error, status string) {
	if err != nil {
		m.err = err
		m.status = ""
	} else {
		m.err = nil
		m.status = status
	}
	m.refresh()
}

func (m *Model) refresh() {
	m.entries = m.session.Snapshot()
	if m.cursor >= len(m.entries) {
		m.cursor = len(m.entries) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func entryView(e share.Entry) string {
	line := fmt.Sprintf("%-9s %-40s %-7s as %s", e.Action, e.Member.Name, e.Member.Kind, e.Member.SharedAs)
	switch e.Action {
	case share.ActionAdd:
		return addStyle.Render(line)
	case share.ActionRemove:
		return removeStyle.Render(line)
	}
	return plainStyle.Render(line)
}

func (m Model) View() string {
	if m.Quitting {
		return "\n  See you later!\n\n"
	}

	var b strings.Builder

	title := "Share: " + m.session.ContainerID()
	if m.session.Dirty() {
		title += " *"
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")

	if len(m.entries) == 0 {
		b.WriteString(helpStyle.Render("  (no members)") + "\n")
	}
	for i, e := range m.entries {
		prefix := "  "
		if i == m.cursor {
			prefix = cursorStyle.Render("> ")
		}
		b.WriteString(prefix + entryView(e) + "\n")
	}
	b.WriteString("\n")

	if m.mode != modeList {
		b.WriteString(m.input.View() + "\n" + helpStyle.Render("(enter to confirm, esc to cancel)") + "\n")
		return b.String()
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	} else if m.status != "" {
		b.WriteString(statusStyle.Render(m.status) + "\n")
	}
	b.WriteString(helpStyle.Render("a add · d remove · r restore · n rename · o owner · c comment · s save · q quit") + "\n")

	return b.String()
}
