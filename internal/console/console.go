// Package console is the line-oriented terminal used by an interactive run.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrClosed is returned by a Terminal after Close.
var ErrClosed = errors.New("console closed")

// Terminal reads lines from in and writes lines to out. It is acquired once
// per run and must be closed by its owner.
type Terminal struct {
	in      *bufio.Reader
	out     *bufio.Writer
	closed  bool
	pending chan readResult
}

type readResult struct {
	line string
	err  error
}

// Open returns a Terminal over in and out. Closing it flushes out but does
// not close either stream.
func Open(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: bufio.NewWriter(out)}
}

// PromptLine writes msg and reads one line, without its line ending. If ctx
// ends first it returns ctx.Err(); the interrupted read is picked up by the
// next call instead of being lost.
func (t *Terminal) PromptLine(ctx context.Context, msg string) (string, error) {
	if t.closed {
		return "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if _, err := t.out.WriteString(msg); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}
	if err := t.out.Flush(); err != nil {
		return "", fmt.Errorf("write prompt: %w", err)
	}

	if t.pending == nil {
		t.pending = make(chan readResult, 1)
		go func(ch chan<- readResult) {
			line, err := t.in.ReadString('\n')
			ch <- readResult{line: line, err: err}
		}(t.pending)
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-t.pending:
		t.pending = nil
		if res.err != nil && !(errors.Is(res.err, io.EOF) && res.line != "") {
			return "", res.err
		}
		return strings.TrimRight(res.line, "\r\n"), nil
	}
}

// PrintLine writes text followed by a newline.
func (t *Terminal) PrintLine(text string) error {
	if t.closed {
		return ErrClosed
	}
	if _, err := t.out.WriteString(text + "\n"); err != nil {
		return err
	}
	return t.out.Flush()
}

// Close releases the terminal. It is safe to call more than once.
func (t *Terminal) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return t.out.Flush()
}
