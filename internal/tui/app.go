package tui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sarathavasarala/markly/internal/db"
	"github.com/sarathavasarala/markly/internal/indexer"
	"github.com/sarathavasarala/markly/internal/textutil"
)

const (
	pageSize       = 200
	searchLimit    = 50
	refreshEvery   = 2 * time.Second
	summaryPreview = 80
)

// retrier re-runs enrichment for a bookmark.
type retrier interface {
	Retry(id string) error
}

type model struct {
	store       *db.Store
	retry       retrier
	searchInput textinput.Model
	list        list.Model
	bookmarks   []db.Bookmark
	sources     map[string]bool // Source filter toggles
	width       int
	height      int
	searching   bool
	deleteArmed string
	status      string
	err         error
}

type bookmarkItem struct {
	bookmark db.Bookmark
}

func (b bookmarkItem) Title() string {
	title := b.bookmark.DisplayTitle()
	if badge := statusBadge(b.bookmark.Status); badge != "" {
		title = badge + " " + title
	}
	return fmt.Sprintf("%s %s", sourceIcon(b.bookmark.Source), title)
}

func (b bookmarkItem) Description() string {
	switch {
	case b.bookmark.Status == db.StatusFailed && b.bookmark.EnrichmentError != nil:
		return preview(*b.bookmark.EnrichmentError)
	case b.bookmark.AISummary != "":
		return preview(b.bookmark.AISummary)
	}
	return b.bookmark.URL
}

func (b bookmarkItem) FilterValue() string {
	return b.bookmark.DisplayTitle() + " " + b.bookmark.AISummary + " " + strings.Join(b.bookmark.AutoTags, " ")
}

func preview(s string) string {
	s = textutil.FirstLine(s)
	if textutil.RuneLen(s) > summaryPreview {
		return textutil.Truncate(s, summaryPreview) + "..."
	}
	return s
}

func sourceIcon(source string) string {
	switch source {
	case db.SourceX:
		return "[X]"
	case db.SourceRaindrop:
		return "[R]"
	case db.SourceGitHub:
		return "[G]"
	case db.SourceManual:
		return "[M]"
	case db.SourceImport:
		return "[I]"
	default:
		return "[?]"
	}
}

func statusBadge(status string) string {
	switch status {
	case db.StatusPending:
		return "…"
	case db.StatusProcessing:
		return "⟳"
	case db.StatusFailed:
		return "✗"
	}
	return ""
}

// filterKeys maps the number keys to the source they toggle.
var filterKeys = []struct{ key, source, label string }{
	{"1", db.SourceX, "[X]"},
	{"2", db.SourceRaindrop, "[R]"},
	{"3", db.SourceGitHub, "[G]"},
	{"4", db.SourceManual, "[M]"},
	{"5", db.SourceImport, "[I]"},
}

func initialModel(store *db.Store, r retrier) model {
	ti := textinput.New()
	ti.Placeholder = "Search bookmarks..."
	ti.CharLimit = 256
	ti.Width = 50

	delegate := list.NewDefaultDelegate()
	l := list.New([]list.Item{}, delegate, 0, 0)
	l.Title = "Markly"
	l.SetShowStatusBar(true)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	sources := make(map[string]bool, len(filterKeys))
	for _, f := range filterKeys {
		sources[f.source] = true
	}

	return model{
		store:       store,
		retry:       r,
		searchInput: ti,
		list:        l,
		sources:     sources,
	}
}

type loadedMsg struct {
	bookmarks []db.Bookmark
	err       error
}

type statusMsg struct {
	text string
	err  error
}

type tickMsg struct{}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.load(""), tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(time.Time) tea.Msg { return tickMsg{} })
}

// load lists recent bookmarks for an empty query and runs a keyword search
// otherwise.
func (m model) load(query string) tea.Cmd {
	store := m.store
	return func() tea.Msg {
		if store == nil {
			return loadedMsg{err: fmt.Errorf("store not initialized")}
		}
		if strings.TrimSpace(query) == "" {
			bookmarks, _, err := store.List(db.ListOptions{Limit: pageSize})
			return loadedMsg{bookmarks: bookmarks, err: err}
		}
		results, err := store.KeywordSearch(query, db.SearchFilter{}, searchLimit)
		if err != nil {
			return loadedMsg{err: err}
		}
		bookmarks := make([]db.Bookmark, len(results))
		for i := range results {
			bookmarks[i] = results[i].Bookmark
		}
		return loadedMsg{bookmarks: bookmarks}
	}
}

func (m model) hasUnfinished() bool {
	for _, b := range m.bookmarks {
		if b.Status == db.StatusPending || b.Status == db.StatusProcessing {
			return true
		}
	}
	return false
}

func (m model) selected() (db.Bookmark, bool) {
	item, ok := m.list.SelectedItem().(bookmarkItem)
	return item.bookmark, ok
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		if key != "d" {
			m.deleteArmed = ""
		}
		switch key {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if !m.searching {
				return m, tea.Quit
			}
		case "esc":
			if m.searching {
				m.searching = false
				m.searchInput.Blur()
				return m, nil
			}
		case "/":
			if !m.searching {
				m.searching = true
				m.searchInput.Focus()
				return m, textinput.Blink
			}
		case "enter":
			if m.searching {
				m.searching = false
				m.searchInput.Blur()
				return m, m.load(m.searchInput.Value())
			}
		case "j", "down":
			if !m.searching {
				m.list.CursorDown()
				return m, nil
			}
		case "k", "up":
			if !m.searching {
				m.list.CursorUp()
				return m, nil
			}
		case "g":
			if !m.searching {
				m.list.Select(0)
				return m, nil
			}
		case "G":
			if !m.searching {
				if n := len(m.list.Items()); n > 0 {
					m.list.Select(n - 1)
				}
				return m, nil
			}
		case "o":
			if !m.searching {
				if b, ok := m.selected(); ok {
					return m, m.open(b)
				}
				return m, nil
			}
		case "r":
			if !m.searching {
				if b, ok := m.selected(); ok {
					return m, m.retryBookmark(b)
				}
				return m, nil
			}
		case "d":
			if !m.searching {
				b, ok := m.selected()
				if !ok {
					return m, nil
				}
				if m.deleteArmed != b.ID {
					m.deleteArmed = b.ID
					m.status = "Press d again to delete " + b.DisplayTitle()
					return m, nil
				}
				m.deleteArmed = ""
				return m, m.deleteBookmark(b)
			}
		default:
			if !m.searching {
				for _, f := range filterKeys {
					if key == f.key {
						m.sources[f.source] = !m.sources[f.source]
						m.list.SetItems(m.bookmarksToItems(m.bookmarks))
						return m, nil
					}
				}
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, msg.Height-6)
		m.searchInput.Width = msg.Width - 20

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.bookmarks = msg.bookmarks
		m.list.SetItems(m.bookmarksToItems(msg.bookmarks))
		return m, nil

	case statusMsg:
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			m.status = msg.text
		}
		return m, m.load(m.searchInput.Value())

	case tickMsg:
		// Keep badges current while enrichment runs in the background.
		if m.hasUnfinished() && !m.searching {
			return m, tea.Batch(m.load(m.searchInput.Value()), tick())
		}
		return m, tick()
	}

	if m.searching {
		var cmd tea.Cmd
		m.searchInput, cmd = m.searchInput.Update(msg)
		cmds = append(cmds, cmd)

		// Live search on input change
		if len(m.searchInput.Value()) > 0 {
			cmds = append(cmds, m.load(m.searchInput.Value()))
		}
	} else {
		var cmd tea.Cmd
		m.list, cmd = m.list.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m model) open(b db.Bookmark) tea.Cmd {
	store := m.store
	return func() tea.Msg {
		if err := openBrowser(b.URL); err != nil {
			return statusMsg{err: err}
		}
		if store != nil {
			if _, err := store.TrackAccess(b.ID); err != nil {
				return statusMsg{err: err}
			}
		}
		return statusMsg{text: "Opened " + b.URL}
	}
}

func (m model) retryBookmark(b db.Bookmark) tea.Cmd {
	r := m.retry
	return func() tea.Msg {
		if r == nil {
			return statusMsg{err: fmt.Errorf("enrichment is not configured")}
		}
		if err := r.Retry(b.ID); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: "Retrying " + b.DisplayTitle()}
	}
}

func (m model) deleteBookmark(b db.Bookmark) tea.Cmd {
	store := m.store
	return func() tea.Msg {
		if store == nil {
			return statusMsg{err: fmt.Errorf("store not initialized")}
		}
		if err := store.Delete(b.ID); err != nil {
			return statusMsg{err: err}
		}
		return statusMsg{text: "Deleted " + b.DisplayTitle()}
	}
}

func (m model) bookmarksToItems(bookmarks []db.Bookmark) []list.Item {
	items := make([]list.Item, 0, len(bookmarks))
	for _, b := range bookmarks {
		if m.sources[b.Source] {
			items = append(items, bookmarkItem{bookmark: b})
		}
	}
	return items
}

func (m model) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err)
	}

	var b strings.Builder

	searchStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(0, 1)

	activeFilter := lipgloss.NewStyle().
		Foreground(lipgloss.Color("86")).
		Bold(true)

	inactiveFilter := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240"))

	filters := make([]string, 0, len(filterKeys))
	for _, f := range filterKeys {
		if m.sources[f.source] {
			filters = append(filters, activeFilter.Render(f.label))
		} else {
			filters = append(filters, inactiveFilter.Render(f.label))
		}
	}

	searchBox := searchStyle.Render(m.searchInput.View())
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, searchBox, "  ", strings.Join(filters, " ")))
	b.WriteString("\n\n")

	b.WriteString(m.list.View())

	helpStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		MarginTop(1)

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(helpStyle.Render(m.status))
	}
	help := "[j/k]nav [g/G]top/end [/]search [o]pen [r]etry [d]elete [1-5]filters [q]uit"
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(help))

	return b.String()
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return fmt.Errorf("cannot open a browser on %s", runtime.GOOS)
	}
	return cmd.Start()
}

// Run starts the TUI over the owner-scoped store. svc may be nil when no
// chat model is configured; retry is then unavailable.
func Run(store *db.Store, svc *indexer.Service) error {
	var r retrier
	if svc != nil {
		r = svc
	}
	p := tea.NewProgram(initialModel(store, r), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
