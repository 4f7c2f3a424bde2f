// Package reader holds the interactive reading engine: the wrapped line
// buffer for the loaded chapter and the mode, scroll, navigation, and
// search state machine over it.
package reader

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/lovebaihezi/bk/internal/epub"
)

// Mode is the engine's input mode.
type Mode int

const (
	ModeRead Mode = iota
	ModeNav
	ModeSearch
	ModeHelp
)

// Direction selects which way a repeated search scans.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Source supplies chapter documents by archive entry name.
type Source interface {
	ReadEntry(name string) (string, error)
}

// Book is one reading session over a resolved chapter list. Chapter holds
// the wrapped lines of the loaded chapter only; it is rebuilt wholesale on
// every chapter change and resize.
type Book struct {
	Mode       Mode
	Chapters   []epub.Chapter
	Chapter    []string
	ChapterIdx int
	Pos        int
	NavIdx     int
	NavTop     int
	Rows       int
	Cols       int
	Pad        int
	Search     string

	// LoadErr records a failed chapter load during the session. The
	// engine stays on the chapter it had; the presenter shows the error
	// until the next successful load clears it.
	LoadErr error

	src Source
	log *zap.Logger
}

// NewBook loads the chapter at chapterIdx and seeds the scroll position.
// A restored position that no longer fits the document falls back to the
// start. The initial load failing is fatal; later loads are not.
func NewBook(src Source, chapters []epub.Chapter, chapterIdx, pos, cols, rows, pad int, log *zap.Logger) (*Book, error) {
	if len(chapters) == 0 {
		return nil, errors.New("document has no chapters")
	}
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	if chapterIdx < 0 || chapterIdx >= len(chapters) {
		chapterIdx, pos = 0, 0
	}
	if pos < 0 {
		pos = 0
	}

	b := &Book{
		Mode:     ModeRead,
		Chapters: chapters,
		Pos:      pos,
		Rows:     rows,
		Cols:     cols,
		Pad:      pad,
		src:      src,
		log:      log,
	}
	if !b.loadChapter(chapterIdx) {
		return nil, b.LoadErr
	}
	b.clampPos()
	return b, nil
}

// loadChapter reads, flows, and wraps the chapter at idx, replacing the
// line buffer. On failure the current chapter and position stay as they
// were and LoadErr is set.
func (b *Book) loadChapter(idx int) bool {
	ref := b.Chapters[idx]
	text, err := b.src.ReadEntry(ref.Path)
	if err != nil {
		b.LoadErr = fmt.Errorf("chapter %d: %w", idx, err)
		return false
	}
	lines, err := epub.Flow(text)
	if err != nil {
		b.LoadErr = fmt.Errorf("chapter %d: %w", idx, err)
		return false
	}

	width := b.Cols - 2*b.Pad
	if width < 1 {
		width = 1
	}
	wrapped := make([]string, 0, len(lines)*2)
	for _, line := range lines {
		wrapped = append(wrapped, Wrap(line.Text(), width)...)
	}

	b.Chapter = wrapped
	b.ChapterIdx = idx
	b.LoadErr = nil
	b.log.Debug("Loaded chapter",
		zap.Int("index", idx),
		zap.String("path", ref.Path),
		zap.Int("lines", len(wrapped)))
	return true
}

// clampPos pulls an out-of-range position back to the chapter's final page
// boundary.
func (b *Book) clampPos() {
	if b.Pos >= len(b.Chapter) {
		b.Pos = (len(b.Chapter) / b.Rows) * b.Rows
	}
}

func (b *Book) scrollDown(n int) {
	if b.Rows < len(b.Chapter)-b.Pos {
		b.Pos += n
	} else if b.ChapterIdx < len(b.Chapters)-1 {
		if b.loadChapter(b.ChapterIdx + 1) {
			b.Pos = 0
		}
	}
}

func (b *Book) scrollUp(n int) {
	if b.Pos > 0 {
		b.Pos -= n
		if b.Pos < 0 {
			b.Pos = 0
		}
	} else if b.ChapterIdx > 0 {
		if b.loadChapter(b.ChapterIdx - 1) {
			// Land on the previous chapter's final page boundary, not
			// its very last line.
			b.Pos = (len(b.Chapter) / b.Rows) * b.Rows
		}
	}
}

func (b *Book) LineDown() { b.scrollDown(1) }
func (b *Book) LineUp()   { b.scrollUp(1) }

func (b *Book) HalfPageDown() { b.scrollDown(b.Rows / 2) }
func (b *Book) HalfPageUp()   { b.scrollUp(b.Rows / 2) }

func (b *Book) PageDown() { b.scrollDown(b.Rows) }
func (b *Book) PageUp()   { b.scrollUp(b.Rows) }

// Home and End jump within the current chapter; they never cross into a
// neighboring one.
func (b *Book) Home() { b.Pos = 0 }
func (b *Book) End()  { b.Pos = (len(b.Chapter) / b.Rows) * b.Rows }

// StartNav enters chapter navigation with the cursor on the current
// chapter, scrolled so the cursor sits on the last visible row when the
// list allows it.
func (b *Book) StartNav() {
	b.NavIdx = b.ChapterIdx
	b.NavTop = b.NavIdx - (b.Rows - 1)
	if b.NavTop < 0 {
		b.NavTop = 0
	}
	b.Mode = ModeNav
}

func (b *Book) NavDown() {
	if b.NavIdx < len(b.Chapters)-1 {
		b.NavIdx++
		if b.NavIdx == b.NavTop+b.Rows {
			b.NavTop++
		}
	}
}

func (b *Book) NavUp() {
	if b.NavIdx > 0 {
		if b.NavIdx == b.NavTop {
			b.NavTop--
		}
		b.NavIdx--
	}
}

func (b *Book) NavHome() {
	b.NavIdx = 0
	b.NavTop = 0
}

func (b *Book) NavEnd() {
	b.NavIdx = len(b.Chapters) - 1
	b.NavTop = len(b.Chapters) - b.Rows
	if b.NavTop < 0 {
		b.NavTop = 0
	}
}

// NavConfirm loads the chapter under the cursor and returns to reading.
// If that load fails the previous chapter stays on screen.
func (b *Book) NavConfirm() {
	if b.loadChapter(b.NavIdx) {
		b.Pos = 0
	}
	b.Mode = ModeRead
}

func (b *Book) NavCancel() {
	b.Mode = ModeRead
}

func (b *Book) StartSearch() {
	b.Search = ""
	b.Mode = ModeSearch
}

func (b *Book) SearchInput(r rune) {
	b.Search += string(r)
}

func (b *Book) SearchCancel() {
	b.Search = ""
	b.Mode = ModeRead
}

func (b *Book) SearchConfirm() {
	b.Mode = ModeRead
	b.searchFrom(Forward)
}

func (b *Book) SearchNext() { b.searchFrom(Forward) }
func (b *Book) SearchPrev() { b.searchFrom(Backward) }

// searchFrom jumps to the nearest line containing the query, strictly
// after the position going forward or strictly before it going backward.
// The scan never leaves the loaded chapter; no match leaves the position
// alone.
func (b *Book) searchFrom(dir Direction) {
	switch dir {
	case Forward:
		for i := b.Pos + 1; i < len(b.Chapter); i++ {
			if strings.Contains(b.Chapter[i], b.Search) {
				b.Pos = i
				return
			}
		}
	case Backward:
		last := b.Pos
		if last > len(b.Chapter) {
			last = len(b.Chapter)
		}
		for i := last - 1; i >= 0; i-- {
			if strings.Contains(b.Chapter[i], b.Search) {
				b.Pos = i
				return
			}
		}
	}
}

func (b *Book) StartHelp() { b.Mode = ModeHelp }

func (b *Book) DismissHelp() { b.Mode = ModeRead }

// Resize reloads the current chapter under the new geometry. Line
// boundaries move when the width changes, so the position is only pulled
// back into range, not remapped.
func (b *Book) Resize(cols, rows int) {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	b.Cols = cols
	b.Rows = rows
	if b.loadChapter(b.ChapterIdx) {
		b.clampPos()
	}
}

// VisibleLines returns the window of wrapped lines the viewport shows.
func (b *Book) VisibleLines() []string {
	end := b.Pos + b.Rows
	if end > len(b.Chapter) {
		end = len(b.Chapter)
	}
	if b.Pos >= end {
		return nil
	}
	return b.Chapter[b.Pos:end]
}
