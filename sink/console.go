package sink

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/teenjuna/sieve"
)

var _ sieve.Sink[any] = (*ConsoleSink[any])(nil)

// ConsoleSink renders every event as one line of text, e.g.
//
//	--> put 3       [1][3][ ][ ][ ] 2/5
//	<-- odd took 1  [3][ ][ ][ ][ ] 1/5
//
// Writes go straight to the writer, so wrap the sink with [Async] when it observes a live
// buffer.
type ConsoleSink[Item any] struct {
	w      io.Writer
	styles ConsoleStyles
	format func(Item) string

	mu  sync.Mutex
	err error
}

// ConsoleStyles holds the styles used by [ConsoleSink].
type ConsoleStyles struct {
	Inserted lipgloss.Style
	Removed  lipgloss.Style
	Snapshot lipgloss.Style
	Stalled  lipgloss.Style
	// Highlight marks the slot an item was put into or taken from.
	Highlight lipgloss.Style
	Full      lipgloss.Style
	Empty     lipgloss.Style
	Partial   lipgloss.Style
}

// DefaultConsoleStyles returns the styles rendered by r. Use a renderer bound to the actual
// output, so colors are dropped when it isn't a terminal.
func DefaultConsoleStyles(r *lipgloss.Renderer) ConsoleStyles {
	return ConsoleStyles{
		Inserted:  r.NewStyle().Foreground(lipgloss.Color("2")),
		Removed:   r.NewStyle().Foreground(lipgloss.Color("1")),
		Snapshot:  r.NewStyle().Foreground(lipgloss.Color("6")),
		Stalled:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("3")),
		Highlight: r.NewStyle().Bold(true).Underline(true),
		Full:      r.NewStyle().Background(lipgloss.Color("1")).Padding(0, 1),
		Empty:     r.NewStyle().Background(lipgloss.Color("4")).Padding(0, 1),
		Partial:   r.NewStyle().Background(lipgloss.Color("2")).Padding(0, 1),
	}
}

type ConsoleOption[Item any] = func(*ConsoleSink[Item])

// WithFormat sets how items are printed. The default is fmt.Sprint.
func WithFormat[Item any](format func(Item) string) ConsoleOption[Item] {
	if format == nil {
		panic("format can't be nil")
	}
	return func(s *ConsoleSink[Item]) {
		s.format = format
	}
}

func WithStyles[Item any](styles ConsoleStyles) ConsoleOption[Item] {
	return func(s *ConsoleSink[Item]) {
		s.styles = styles
	}
}

func Console[Item any](w io.Writer, options ...ConsoleOption[Item]) *ConsoleSink[Item] {
	if w == nil {
		panic("writer can't be nil")
	}
	s := ConsoleSink[Item]{
		w:      w,
		styles: DefaultConsoleStyles(lipgloss.NewRenderer(w)),
		format: func(item Item) string { return fmt.Sprint(item) },
	}
	for _, opt := range options {
		opt(&s)
	}
	return &s
}

func (s *ConsoleSink[Item]) Observe(event sieve.Event[Item]) {
	line := s.Render(event)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return
	}
	_, s.err = io.WriteString(s.w, line+"\n")
}

// Err returns the first write error. Once a write fails, the sink stops writing.
func (s *ConsoleSink[Item]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Render renders a single event without writing it.
func (s *ConsoleSink[Item]) Render(event sieve.Event[Item]) string {
	var (
		style  lipgloss.Style
		prefix string
	)
	switch event.Kind {
	case sieve.Inserted:
		style = s.styles.Inserted
		prefix = "--> put " + s.format(event.Value)
	case sieve.Removed:
		style = s.styles.Removed
		prefix = "<-- " + event.Consumer + " took " + s.format(event.Value)
	case sieve.Snapshotted:
		style = s.styles.Snapshot
		prefix = "[state]"
	case sieve.Stalled:
		style = s.styles.Stalled
		prefix = "!!! stalled"
	default:
		prefix = event.Kind.String()
	}

	return style.Render(fmt.Sprintf("%-16s", prefix)) + " " + s.slots(event) + " " + s.tag(event)
}

func (s *ConsoleSink[Item]) slots(event sieve.Event[Item]) string {
	var (
		b         strings.Builder
		highlight = -1
	)
	switch event.Kind {
	case sieve.Inserted:
		highlight = event.Index
	case sieve.Removed:
		highlight = event.Index
	}

	for i := range event.Capacity {
		cell := " "
		if i < len(event.Contents) {
			cell = s.format(event.Contents[i])
		}
		cell = "[" + cell + "]"
		if i == highlight {
			cell = s.styles.Highlight.Render(cell)
		}
		b.WriteString(cell)
	}

	return b.String()
}

func (s *ConsoleSink[Item]) tag(event sieve.Event[Item]) string {
	switch {
	case event.Occupancy == event.Capacity:
		return s.styles.Full.Render("FULL")
	case event.Occupancy == 0:
		return s.styles.Empty.Render("EMPTY")
	default:
		return s.styles.Partial.Render(fmt.Sprintf("%d/%d", event.Occupancy, event.Capacity))
	}
}
