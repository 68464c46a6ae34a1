// Package tui is a terminal client for the todo API.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/paginator"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"gotodo/internal/todo"
)

// Notice texts shown after each action.
const (
	noticeCreated       = "Todo created successfully"
	noticeCreateFailed  = "Creation failed"
	noticeUpdated       = "Todo updated successfully"
	noticeUpdateFailed  = "Update failed"
	noticeDeleted       = "Todo deleted successfully"
	noticeDeleteFailed  = "Delete failed"
	noticeToggled       = "Todo marked as completed"
	noticeFetchFailed   = "Failed to fetch todos"
	noticeSomethingWent = "Something went wrong"
	noticeTitleRequired = "Title is required"

	titleTakenMessage = "A todo with this title already exists."
	confirmMessage    = "Are you sure you want to delete this todo?"
)

// pageSize is the number of rows per table page.
const pageSize = 10

// API is the part of the todo API the terminal client uses.
type API interface {
	List(ctx context.Context) ([]*todo.Todo, error)
	Create(ctx context.Context, req todo.CreateRequest) (*todo.Todo, error)
	Update(ctx context.Context, id string, req todo.UpdateRequest) (*todo.Todo, error)
	Delete(ctx context.Context, id string) (string, error)
	Exists(ctx context.Context, title string) (bool, error)
}

// Notice is a transient status line.
type Notice struct {
	Text string
	Err  bool
}

// State is the client's view state. Update is the only thing that changes it.
type State struct {
	Todos []*todo.Todo
	// Selected is the todo open in the edit form, nil when creating.
	Selected    *todo.Todo
	ModalOpen   bool
	ToDelete    string
	ConfirmOpen bool
	Notice      Notice
}

type form struct {
	title       textinput.Model
	desc        textarea.Model
	descFocused bool
	titleErr    string
	// checkSeq tags title checks; only the latest one may set titleErr.
	checkSeq int
}

// Model is the Bubble Tea model of the terminal client.
type Model struct {
	api    API
	state  State
	cursor int

	pager    paginator.Model
	form     form
	keys     keyMap
	help     help.Model
	width    int
	quitting bool
}

// New returns a model backed by api.
func New(api API) Model {
	p := paginator.New()
	p.Type = paginator.Arabic
	p.PerPage = pageSize

	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "What needs doing?"
	ti.CharLimit = 500

	ta := textarea.New()
	ta.Placeholder = "Details (optional)"
	ta.ShowLineNumbers = false
	ta.CharLimit = 10000
	ta.SetHeight(4)

	return Model{
		api:   api,
		pager: p,
		form:  form{title: ti, desc: ta},
		keys:  defaultKeyMap(),
		help:  help.New(),
	}
}

// State returns the current view state.
func (m Model) State() State {
	return m.state
}

// Init loads the list once. Later loads only follow mutations or an
// explicit refresh.
func (m Model) Init() tea.Cmd {
	return m.fetchTodos()
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.form.title.Width = formWidth(msg.Width) - 4
		m.form.desc.SetWidth(formWidth(msg.Width) - 2)
		return m, nil

	case todosLoadedMsg:
		if msg.err != nil {
			m.state.Notice = Notice{Text: noticeFetchFailed, Err: true}
			return m, nil
		}
		m.state.Todos = msg.todos
		m.clampCursor()
		return m, nil

	case savedMsg:
		m.state.Notice = savedNotice(msg)
		return m, m.fetchTodos()

	case deletedMsg:
		m.state.ToDelete = ""
		m.state.ConfirmOpen = false
		if msg.err != nil {
			m.state.Notice = Notice{Text: serverMessage(msg.err, noticeDeleteFailed, noticeDeleteFailed), Err: true}
			return m, nil
		}
		m.state.Notice = Notice{Text: noticeDeleted}
		return m, m.fetchTodos()

	case toggledMsg:
		if msg.err != nil {
			m.state.Notice = Notice{Text: noticeUpdateFailed, Err: true}
			return m, nil
		}
		m.state.Notice = Notice{Text: noticeToggled}
		return m, m.fetchTodos()

	case titleCheckDueMsg:
		if !m.currentCheck(msg.seq, msg.title) {
			return m, nil
		}
		return m, m.checkTitle(msg.seq, msg.title)

	case titleCheckedMsg:
		if !m.currentCheck(msg.seq, msg.title) {
			return m, nil
		}
		m.form.titleErr = ""
		if msg.exists {
			m.form.titleErr = titleTakenMessage
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		switch {
		case m.state.ConfirmOpen:
			return m.updateConfirm(msg)
		case m.state.ModalOpen:
			return m.updateForm(msg)
		default:
			return m.updateList(msg)
		}
	}
	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		start, _ := m.pager.GetSliceBounds(len(m.state.Todos))
		if m.cursor > start {
			m.cursor--
		}
		return m, nil
	case key.Matches(msg, m.keys.Down):
		_, end := m.pager.GetSliceBounds(len(m.state.Todos))
		if m.cursor < end-1 {
			m.cursor++
		}
		return m, nil
	case key.Matches(msg, m.keys.Add):
		return m.openForm(nil)
	case key.Matches(msg, m.keys.Edit):
		t := m.current()
		if t == nil || t.Completed {
			return m, nil
		}
		return m.openForm(t)
	case key.Matches(msg, m.keys.Delete):
		t := m.current()
		if t == nil {
			return m, nil
		}
		m.state.ToDelete = t.ID
		m.state.ConfirmOpen = true
		return m, nil
	case key.Matches(msg, m.keys.Toggle):
		t := m.current()
		if t == nil {
			return m, nil
		}
		return m, m.toggleTodo(t)
	case key.Matches(msg, m.keys.Refresh):
		return m, m.fetchTodos()
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		return m, nil
	}

	page := m.pager.Page
	var cmd tea.Cmd
	m.pager, cmd = m.pager.Update(msg)
	if m.pager.Page != page {
		m.cursor, _ = m.pager.GetSliceBounds(len(m.state.Todos))
	}
	return m, cmd
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		if m.state.ToDelete == "" {
			m.state.ConfirmOpen = false
			return m, nil
		}
		m.state.ConfirmOpen = false
		return m, m.deleteTodo(m.state.ToDelete)
	case key.Matches(msg, m.keys.Deny):
		m.state.ConfirmOpen = false
		m.state.ToDelete = ""
	}
	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.closeForm()
		return m, nil
	case key.Matches(msg, m.keys.Next):
		m.form.descFocused = !m.form.descFocused
		if m.form.descFocused {
			m.form.title.Blur()
			return m, m.form.desc.Focus()
		}
		m.form.desc.Blur()
		return m, m.form.title.Focus()
	case key.Matches(msg, m.keys.Submit),
		!m.form.descFocused && msg.Type == tea.KeyEnter:
		return m.submitForm()
	}

	if m.form.descFocused {
		var cmd tea.Cmd
		m.form.desc, cmd = m.form.desc.Update(msg)
		return m, cmd
	}

	before := m.form.title.Value()
	var cmd tea.Cmd
	m.form.title, cmd = m.form.title.Update(msg)
	if after := m.form.title.Value(); after != before {
		return m, tea.Batch(cmd, m.titleChanged(after))
	}
	return m, cmd
}

// titleChanged supersedes any pending check and schedules a new one.
func (m *Model) titleChanged(title string) tea.Cmd {
	m.form.checkSeq++
	if strings.TrimSpace(title) == "" {
		m.form.titleErr = ""
		return nil
	}
	if m.state.Selected != nil && todo.NormalizeTitle(title) == todo.NormalizeTitle(m.state.Selected.Title) {
		m.form.titleErr = ""
		return nil
	}
	return scheduleTitleCheck(m.form.checkSeq, title)
}

// currentCheck reports whether a title check result still applies to the
// open form.
func (m Model) currentCheck(seq int, title string) bool {
	return m.state.ModalOpen && seq == m.form.checkSeq && title == m.form.title.Value()
}

func (m Model) submitForm() (tea.Model, tea.Cmd) {
	if m.form.titleErr != "" {
		return m, nil
	}
	title := strings.TrimSpace(m.form.title.Value())
	if title == "" {
		m.state.Notice = Notice{Text: noticeTitleRequired, Err: true}
		return m, nil
	}
	desc := strings.TrimSpace(m.form.desc.Value())

	var cmd tea.Cmd
	if t := m.state.Selected; t != nil {
		cmd = m.updateTodo(t.ID, todo.UpdateRequest{
			Title:       title,
			Description: todo.StringPtr(desc),
			Completed:   todo.BoolPtr(t.Completed),
		})
	} else {
		cmd = m.createTodo(todo.CreateRequest{Title: title, Description: todo.StringPtr(desc)})
	}
	m.closeForm()
	return m, cmd
}

func (m Model) openForm(t *todo.Todo) (tea.Model, tea.Cmd) {
	m.state.Selected = t
	m.state.ModalOpen = true
	m.form.titleErr = ""
	m.form.checkSeq++
	m.form.descFocused = false
	m.form.title.SetValue("")
	m.form.desc.SetValue("")
	if t != nil {
		m.form.title.SetValue(t.Title)
		m.form.desc.SetValue(t.DescriptionText())
	}
	m.form.title.CursorEnd()
	m.form.desc.Blur()
	return m, m.form.title.Focus()
}

func (m *Model) closeForm() {
	m.state.ModalOpen = false
	m.state.Selected = nil
	m.form.titleErr = ""
	m.form.checkSeq++
	m.form.title.Blur()
	m.form.desc.Blur()
}

// current returns the todo under the cursor.
func (m Model) current() *todo.Todo {
	if m.cursor < 0 || m.cursor >= len(m.state.Todos) {
		return nil
	}
	return m.state.Todos[m.cursor]
}

// clampCursor keeps the cursor and page inside the list after a reload.
func (m *Model) clampCursor() {
	n := len(m.state.Todos)
	if n > 0 {
		m.pager.SetTotalPages(n)
	} else {
		m.pager.TotalPages = 1
	}
	if m.pager.Page >= m.pager.TotalPages {
		m.pager.Page = max(m.pager.TotalPages-1, 0)
	}
	start, end := m.pager.GetSliceBounds(n)
	if m.cursor < start {
		m.cursor = start
	}
	if m.cursor >= end {
		m.cursor = max(end-1, start)
	}
}

func savedNotice(msg savedMsg) Notice {
	switch {
	case msg.err == nil && msg.editing:
		return Notice{Text: noticeUpdated}
	case msg.err == nil:
		return Notice{Text: noticeCreated}
	case msg.editing:
		return Notice{Text: serverMessage(msg.err, noticeUpdateFailed, noticeSomethingWent), Err: true}
	default:
		return Notice{Text: serverMessage(msg.err, noticeCreateFailed, noticeSomethingWent), Err: true}
	}
}
