// Package tui provides the interactive terminal search screen.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mwiater/semsearch/internal/logging"
	"github.com/mwiater/semsearch/internal/search"
)

const previewRunes = 300

// Searcher is the part of the engine the screen needs.
type Searcher interface {
	SearchWithScores(ctx context.Context, query string, k int) ([]search.ScoredDocument, error)
}

type resultsMsg struct {
	query   string
	results []search.ScoredDocument
}

type errMsg struct{ err error }

type model struct {
	ctx       context.Context
	searcher  Searcher
	topK      int
	input     textinput.Model
	spinner   spinner.Model
	searching bool
	query     string
	results   []search.ScoredDocument
	err       error
	width     int
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1)
	cardStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("63")).Padding(0, 1).MarginTop(1)
	rankStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	scoreStyle = lipgloss.NewStyle().Background(lipgloss.Color("99")).Foreground(lipgloss.Color("255")).Padding(0, 1)
	metaStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newModel(ctx context.Context, searcher Searcher, topK int) *model {
	ti := textinput.New()
	ti.Placeholder = "What is deep learning?"
	ti.Prompt = "🔍 "
	ti.CharLimit = 512
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &model{ctx: ctx, searcher: searcher, topK: topK, input: ti, spinner: s, width: 80}
}

func searchCmd(ctx context.Context, searcher Searcher, query string, k int) tea.Cmd {
	return func() tea.Msg {
		results, err := searcher.SearchWithScores(ctx, query, k)
		if err != nil {
			return errMsg{err}
		}
		return resultsMsg{query: query, results: results}
	}
}

// Init starts the cursor blinking.
func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles keys, window resizes and search results.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.searching {
				return m, nil
			}
			m.searching = true
			m.query = q
			m.err = nil
			return m, tea.Batch(m.spinner.Tick, searchCmd(m.ctx, m.searcher, q, m.topK))
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = msg.Width - 6
		return m, nil

	case resultsMsg:
		m.searching = false
		m.results = msg.results
		logging.LogEvent("[TUI] %q returned %d results", msg.query, len(msg.results))
		return m, nil

	case errMsg:
		m.searching = false
		m.results = nil
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		if !m.searching {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the input, status line and result cards.
func (m *model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Semantic Search") + "\n\n")
	b.WriteString(m.input.View() + "\n")

	switch {
	case m.searching:
		fmt.Fprintf(&b, "\n%s Searching for %q...\n", m.spinner.View(), m.query)
	case m.err != nil:
		b.WriteString("\n" + errorStyle.Render("Search failed: "+m.err.Error()) + "\n")
	case m.query != "" && len(m.results) == 0:
		b.WriteString("\nNo results found.\n")
	case len(m.results) > 0:
		fmt.Fprintf(&b, "\nFound %d results for %q\n", len(m.results), m.query)
		width := m.width - 4
		if width < 20 {
			width = 20
		}
		for i, r := range m.results {
			header := lipgloss.JoinHorizontal(lipgloss.Top,
				rankStyle.Render(fmt.Sprintf("#%d ", i+1)),
				scoreStyle.Render(fmt.Sprintf("Score: %.4f", r.Score)),
				metaStyle.Render("  "+r.Source()),
			)
			body := lipgloss.NewStyle().Width(width - 4).Render(search.Preview(r.Content, previewRunes))
			b.WriteString(cardStyle.Width(width).Render(header+"\n"+body) + "\n")
		}
	}

	b.WriteString("\n" + helpStyle.Render("enter: search • esc/ctrl+c: quit") + "\n")
	return b.String()
}

// Run starts the interactive search screen.
func Run(ctx context.Context, searcher Searcher, topK int) error {
	m := newModel(ctx, searcher, topK)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run search screen: %w", err)
	}
	return nil
}
