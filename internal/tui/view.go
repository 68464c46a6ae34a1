package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	defaultWidth  = 80
	maxTitleWidth = 40
	maxDescWidth  = 50
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n\n")

	switch {
	case m.state.ConfirmOpen:
		b.WriteString(m.confirmView())
	case m.state.ModalOpen:
		b.WriteString(m.formView())
	default:
		b.WriteString(m.tableView())
		b.WriteString("\n")
		b.WriteString(m.pagerView())
	}
	b.WriteString("\n")

	if n := m.state.Notice; n.Text != "" {
		style := successStyle
		if n.Err {
			style = errorStyle
		}
		b.WriteString(style.Render(n.Text))
		b.WriteString("\n")
	}
	if !m.state.ModalOpen && !m.state.ConfirmOpen {
		b.WriteString(m.help.View(m.keys))
	}
	return b.String()
}

func (m Model) headerView() string {
	done := 0
	for _, t := range m.state.Todos {
		if t.Completed {
			done++
		}
	}
	return fmt.Sprintf("%s   %s",
		titleStyle.Render("Todo App"),
		mutedStyle.Render(fmt.Sprintf("%d todos, %d done", len(m.state.Todos), done)),
	)
}

func (m Model) tableView() string {
	if len(m.state.Todos) == 0 {
		return mutedStyle.Render("No todos yet. Press a to add one.")
	}
	start, end := m.pager.GetSliceBounds(len(m.state.Todos))
	page := m.state.Todos[start:end]

	rows := make([][]string, 0, len(page))
	for _, t := range page {
		box := boxUnchecked
		if t.Completed {
			box = boxChecked
		}
		rows = append(rows, []string{
			box,
			truncate(t.Title, maxTitleWidth),
			truncate(oneLine(t.DescriptionText()), maxDescWidth),
			t.CreatedAt.Local().Format("2006-01-02 15:04"),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		Headers("Done", "Title", "Description", "Created").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row < 0 || row >= len(page) {
				return cellStyle
			}
			if start+row == m.cursor {
				return selectedStyle
			}
			if page[row].Completed && (col == 1 || col == 2) {
				return doneStyle
			}
			return cellStyle
		})
	return tbl.String()
}

func (m Model) pagerView() string {
	return mutedStyle.Render("Page ") + m.pager.View()
}

func (m Model) formView() string {
	heading, action := "Add Todo", "Create"
	if m.state.Selected != nil {
		heading, action = "Edit Todo", "Update"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(heading))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Title"))
	b.WriteString("\n")
	b.WriteString(m.form.title.View())
	b.WriteString("\n")
	if m.form.titleErr != "" {
		b.WriteString(errorStyle.Render(m.form.titleErr))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Description"))
	b.WriteString("\n")
	b.WriteString(m.form.desc.View())
	b.WriteString("\n\n")

	submit := fmt.Sprintf("ctrl+s %s", action)
	if m.form.titleErr != "" {
		submit = mutedStyle.Strikethrough(true).Render(submit)
	}
	b.WriteString(submit)
	b.WriteString(mutedStyle.Render(" • tab next field • esc cancel"))

	return lipgloss.NewStyle().Width(formWidth(m.width)).Render(panel(b.String()))
}

func (m Model) confirmView() string {
	return panel(confirmMessage + "\n\n" + mutedStyle.Render("y yes • n no"))
}

// formWidth sizes the edit form for a terminal of the given width.
func formWidth(termWidth int) int {
	if termWidth <= 0 {
		termWidth = defaultWidth
	}
	return min(max(termWidth-4, 30), 72)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
