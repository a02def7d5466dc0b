package station

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/saturnino-fabrica-de-software/presenca/internal/domain"
)

// TerminalPinReader prompts for a PIN on the kiosk terminal. An empty
// submission is an abort, reported as domain.ErrPinCancelled.
//
// A single goroutine owns the underlying reader for the lifetime of the
// process and feeds submitted lines through a channel. Requests only ever
// consume from that channel, so an abandoned request (timeout, shutdown)
// never leaves a second reader racing on the same input stream.
type TerminalPinReader struct {
	mu    sync.Mutex
	once  sync.Once
	in    io.Reader
	out   io.Writer
	lines chan readResult

	// closed is set once the input stream ends; every later request
	// resolves immediately instead of blocking on a dead channel.
	closed error
}

type readResult struct {
	line string
	err  error
}

func NewTerminalPinReader(in io.Reader, out io.Writer) *TerminalPinReader {
	return &TerminalPinReader{
		in:    in,
		out:   out,
		lines: make(chan readResult),
	}
}

func (r *TerminalPinReader) readLoop() {
	reader := bufio.NewReader(r.in)
	for {
		line, err := reader.ReadString('\n')
		r.lines <- readResult{line: line, err: err}
		if err != nil {
			return
		}
	}
}

func (r *TerminalPinReader) RequestPin(ctx context.Context, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.once.Do(func() { go r.readLoop() })

	if r.closed != nil {
		return "", r.closed
	}

	fmt.Fprintf(r.out, "PIN for %s (empty to cancel): ", name)

	select {
	case <-ctx.Done():
		// The pending read stays with the reader goroutine; whatever the
		// operator was typing is delivered to the next request.
		return "", ctx.Err()
	case res := <-r.lines:
		if res.err != nil {
			if res.err == io.EOF {
				r.closed = domain.ErrPinCancelled
			} else {
				r.closed = fmt.Errorf("read pin: %w", res.err)
			}
			if pin := strings.TrimSpace(res.line); pin != "" {
				return pin, nil
			}
			return "", r.closed
		}

		pin := strings.TrimSpace(res.line)
		if pin == "" {
			return "", domain.ErrPinCancelled
		}
		return pin, nil
	}
}
