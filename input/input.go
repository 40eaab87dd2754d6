// Package input loads the ordered integer sequence a run feeds to its buffer.
//
// A load either returns every value or fails as a whole: there is no partial output.
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/teenjuna/sieve"
)

var (
	// ErrReserved is returned for a line holding the value reserved for [sieve.Sentinel].
	ErrReserved = errors.New("value is reserved")
	// ErrBlank is returned for an empty or whitespace-only line.
	ErrBlank = errors.New("line is blank")
)

// LineError describes the first bad line of an input.
type LineError struct {
	// Line is 1-based.
	Line int
	Text string
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// Read parses one base-10 integer per line of r. Lines are trimmed before parsing.
func Read(r io.Reader) ([]int, error) {
	var (
		items   = make([]int, 0)
		scanner = bufio.NewScanner(r)
		line    = 0
	)
	for scanner.Scan() {
		line += 1
		text := scanner.Text()

		item, err := parse(text)
		if err != nil {
			return nil, &LineError{Line: line, Text: text, Err: err}
		}

		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	return items, nil
}

// ReadFile reads the file at path with [Read].
func ReadFile(path string) ([]int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer file.Close()

	items, err := Read(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return items, nil
}

func parse(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, ErrBlank
	}

	item, err := strconv.Atoi(text)
	if err != nil {
		return 0, err
	}
	if item == sieve.Sentinel {
		return 0, ErrReserved
	}

	return item, nil
}
