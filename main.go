package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/lovebaihezi/bk/internal/config"
	"github.com/lovebaihezi/bk/internal/epub"
	"github.com/lovebaihezi/bk/internal/reader"
	"github.com/lovebaihezi/bk/internal/state"
)

// Version info (injected via ldflags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cursorStyle = lipgloss.NewStyle().
			Reverse(true)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF0000"))
)

type readKeyMap struct {
	Quit       key.Binding
	Help       key.Binding
	Search     key.Binding
	Toc        key.Binding
	PageDown   key.Binding
	PageUp     key.Binding
	HalfDown   key.Binding
	HalfUp     key.Binding
	LineDown   key.Binding
	LineUp     key.Binding
	Home       key.Binding
	End        key.Binding
	SearchNext key.Binding
	SearchPrev key.Binding
}

func (k readKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Toc, k.Search, k.Quit}
}

func (k readKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Quit, k.Help, k.Search, k.Toc},
		{k.PageDown, k.PageUp, k.HalfDown, k.HalfUp},
		{k.LineDown, k.LineUp, k.Home, k.End},
		{k.SearchNext, k.SearchPrev},
	}
}

var readKeys = readKeyMap{
	Quit:       key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("esc/q", "quit")),
	Help:       key.NewBinding(key.WithKeys("f1", "?"), key.WithHelp("f1/?", "help")),
	Search:     key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search")),
	Toc:        key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "table of contents")),
	PageDown:   key.NewBinding(key.WithKeys("pgdown", " ", "f", "l", "right"), key.WithHelp("pgdn/space/f/l", "page down")),
	PageUp:     key.NewBinding(key.WithKeys("pgup", "b", "h", "left"), key.WithHelp("pgup/b/h", "page up")),
	HalfDown:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "half page down")),
	HalfUp:     key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "half page up")),
	LineDown:   key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "line down")),
	LineUp:     key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "line up")),
	Home:       key.NewBinding(key.WithKeys("home", "g"), key.WithHelp("home/g", "chapter start")),
	End:        key.NewBinding(key.WithKeys("end", "G"), key.WithHelp("end/G", "chapter end")),
	SearchNext: key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "search forward")),
	SearchPrev: key.NewBinding(key.WithKeys("N"), key.WithHelp("N", "search backward")),
}

type navKeyMap struct {
	Down    key.Binding
	Up      key.Binding
	Home    key.Binding
	End     key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

var navKeys = navKeyMap{
	Down:    key.NewBinding(key.WithKeys("j", "down")),
	Up:      key.NewBinding(key.WithKeys("k", "up")),
	Home:    key.NewBinding(key.WithKeys("home", "g")),
	End:     key.NewBinding(key.WithKeys("end", "G")),
	Confirm: key.NewBinding(key.WithKeys("enter", "tab", "l")),
	Cancel:  key.NewBinding(key.WithKeys("esc", "h", "q")),
}

type searchKeyMap struct {
	Cancel  key.Binding
	Confirm key.Binding
}

var searchKeys = searchKeyMap{
	Cancel:  key.NewBinding(key.WithKeys("esc")),
	Confirm: key.NewBinding(key.WithKeys("enter")),
}

type model struct {
	*reader.Book
	keys     readKeyMap
	navKeys  navKeyMap
	findKeys searchKeyMap
	help     help.Model
	quitting bool
}

func newModel(b *reader.Book) model {
	return model{
		Book:     b,
		keys:     readKeys,
		navKeys:  navKeys,
		findKeys: searchKeys,
		help:     help.New(),
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch m.Mode {
		case reader.ModeNav:
			return m.updateNav(msg)
		case reader.ModeSearch:
			return m.updateSearch(msg)
		case reader.ModeHelp:
			m.DismissHelp()
			return m, nil
		default:
			return m.updateRead(msg)
		}

	case tea.WindowSizeMsg:
		m.Resize(msg.Width, msg.Height)
		return m, nil
	}

	return m, nil
}

func (m model) updateRead(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.StartHelp()

	case key.Matches(msg, m.keys.Search):
		m.StartSearch()

	case key.Matches(msg, m.keys.Toc):
		m.StartNav()

	case key.Matches(msg, m.keys.SearchNext):
		m.SearchNext()

	case key.Matches(msg, m.keys.SearchPrev):
		m.SearchPrev()

	case key.Matches(msg, m.keys.LineDown):
		m.LineDown()

	case key.Matches(msg, m.keys.LineUp):
		m.LineUp()

	case key.Matches(msg, m.keys.HalfDown):
		m.HalfPageDown()

	case key.Matches(msg, m.keys.HalfUp):
		m.HalfPageUp()

	case key.Matches(msg, m.keys.PageDown):
		m.PageDown()

	case key.Matches(msg, m.keys.PageUp):
		m.PageUp()

	case key.Matches(msg, m.keys.Home):
		m.Home()

	case key.Matches(msg, m.keys.End):
		m.End()
	}

	return m, nil
}

func (m model) updateNav(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.navKeys.Down):
		m.NavDown()

	case key.Matches(msg, m.navKeys.Up):
		m.NavUp()

	case key.Matches(msg, m.navKeys.Home):
		m.NavHome()

	case key.Matches(msg, m.navKeys.End):
		m.NavEnd()

	case key.Matches(msg, m.navKeys.Confirm):
		m.NavConfirm()

	case key.Matches(msg, m.navKeys.Cancel):
		m.NavCancel()
	}

	return m, nil
}

func (m model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.findKeys.Cancel):
		m.SearchCancel()

	case key.Matches(msg, m.findKeys.Confirm):
		m.SearchConfirm()

	default:
		switch msg.Type {
		case tea.KeyRunes:
			for _, r := range msg.Runes {
				m.SearchInput(r)
			}
		case tea.KeySpace:
			m.SearchInput(' ')
		}
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	switch m.Mode {
	case reader.ModeNav:
		return m.viewNav()
	case reader.ModeSearch:
		return m.viewSearch()
	case reader.ModeHelp:
		return m.viewHelp()
	default:
		return m.viewRead()
	}
}

func (m model) viewRead() string {
	lines := m.VisibleLines()
	if m.LoadErr != nil {
		msg := errorStyle.Render(m.LoadErr.Error())
		if len(lines) >= m.Rows {
			lines = append(append([]string{}, lines[:m.Rows-1]...), msg)
		} else {
			lines = append(append([]string{}, lines...), msg)
		}
	}

	pad := strings.Repeat(" ", m.Pad)

	var sb strings.Builder
	for i, line := range lines {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(pad)
		sb.WriteString(line)
	}
	return sb.String()
}

func (m model) viewNav() string {
	end := m.NavTop + m.Rows
	if end > len(m.Chapters) {
		end = len(m.Chapters)
	}

	var sb strings.Builder
	for i := m.NavTop; i < end; i++ {
		if i > m.NavTop {
			sb.WriteString("\n")
		}
		if i == m.NavIdx {
			sb.WriteString(cursorStyle.Render(m.Chapters[i].Title))
		} else {
			sb.WriteString(m.Chapters[i].Title)
		}
	}
	return sb.String()
}

// viewSearch keeps the page on screen and drops the query on the bottom row.
func (m model) viewSearch() string {
	lines := m.VisibleLines()
	if len(lines) > m.Rows-1 {
		lines = lines[:m.Rows-1]
	}

	pad := strings.Repeat(" ", m.Pad)

	var sb strings.Builder
	for _, line := range lines {
		sb.WriteString(pad)
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	for i := len(lines); i < m.Rows-1; i++ {
		sb.WriteString("\n")
	}
	sb.WriteString(m.Search)
	return sb.String()
}

func (m model) viewHelp() string {
	return m.help.FullHelpView(m.keys.FullHelp())
}

func run(ctx context.Context, cmd *cli.Command) (err error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("unable to prepare configuration: %w", err)
	}
	if cmd.IsSet("pad") {
		pad := int(cmd.Int("pad"))
		if pad < 0 {
			return fmt.Errorf("pad must not be negative, got %d", pad)
		}
		cfg.Pad = pad
	}

	log, err := cfg.Logging.Prepare()
	if err != nil {
		return fmt.Errorf("unable to prepare logs: %w", err)
	}
	defer func() {
		err = multierr.Append(err, log.Sync())
	}()

	store, err := state.NewStore()
	if err != nil {
		return fmt.Errorf("unable to open the reading state store: %w", err)
	}

	bookPath := cmd.Args().Get(0)
	if bookPath == "" {
		bookPath = store.Last()
	}
	if bookPath == "" {
		return errors.New("no book to open, provide a path to an epub file")
	}
	if bookPath, err = filepath.Abs(bookPath); err != nil {
		return fmt.Errorf("unable to resolve book path: %w", err)
	}

	log.Debug("Program started", zap.Strings("args", os.Args), zap.String("ver", version), zap.String("book", bookPath))

	doc, err := epub.Open(bookPath)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, doc.Close())
	}()

	chapters, err := doc.Chapters(log)
	if err != nil {
		return err
	}

	pos, _ := store.Position(bookPath)

	cols, rows, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil {
		cols, rows = 80, 24
	}

	book, err := reader.NewBook(doc, chapters, pos.Chapter, pos.Line, cols, rows, cfg.Pad, log)
	if err != nil {
		return err
	}

	if _, err := tea.NewProgram(newModel(book), tea.WithAltScreen()).Run(); err != nil {
		return err
	}

	if err := store.SetPosition(bookPath, state.Position{Chapter: book.ChapterIdx, Line: book.Pos}); err != nil {
		return fmt.Errorf("unable to save the reading position: %w", err)
	}

	log.Debug("Program ended", zap.Int("chapter", book.ChapterIdx), zap.Int("line", book.Pos))
	return nil
}

func main() {
	app := &cli.Command{
		Name:            "bk",
		Usage:           "terminal epub reader",
		Version:         fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		HideHelpCommand: true,
		ArgsUsage:       "[EPUB]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML)"},
			&cli.IntFlag{Name: "pad", Aliases: []string{"p"}, Usage: "pad the text with `N` leading columns"},
		},
		Action: run,
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
