package output

import (
	"bufio"
	"errors"
	"io"
	"os"
	"sync"

	"conductor/pkg/logging"
)

// Multiplexer reads line-oriented output from many streams concurrently and
// forwards every complete line, tagged with its component, to one LineWriter.
//
// Lines of a single stream keep their order. Lines of different streams are
// forwarded in arrival order.
type Multiplexer struct {
	out LineWriter
	wg  sync.WaitGroup

	writeErrOnce sync.Once
}

// NewMultiplexer creates a multiplexer forwarding to out.
func NewMultiplexer(out LineWriter) *Multiplexer {
	return &Multiplexer{out: out}
}

// Attach starts one reader goroutine per non-nil stream. The multiplexer only
// reads from the streams; closing them stays with their owner.
func (m *Multiplexer) Attach(component, colorName string, streams ...io.Reader) {
	for _, r := range streams {
		if r == nil {
			continue
		}
		m.wg.Add(1)
		go m.pump(component, colorName, r)
	}
}

// Wait blocks until every attached stream reached EOF and its last line was
// written.
func (m *Multiplexer) Wait() {
	m.wg.Wait()
}

func (m *Multiplexer) pump(component, colorName string, r io.Reader) {
	defer m.wg.Done()

	// bufio.Reader instead of Scanner: lines of any length pass untruncated.
	br := bufio.NewReader(r)
	for {
		raw, err := br.ReadBytes('\n')
		if len(raw) > 0 {
			m.emit(Line{Component: component, Color: colorName, Text: trimEOL(raw)})
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) && !errors.Is(err, io.ErrClosedPipe) {
				logging.Warn("Multiplexer", "reading output of %s: %v", component, err)
			}
			return
		}
	}
}

func (m *Multiplexer) emit(line Line) {
	if err := m.out.WriteLine(line); err != nil {
		m.writeErrOnce.Do(func() {
			logging.Error("Multiplexer", err, "failed to write output line")
		})
	}
}

func trimEOL(b []byte) string {
	n := len(b)
	if n > 0 && b[n-1] == '\n' {
		n--
		if n > 0 && b[n-1] == '\r' {
			n--
		}
	}
	return string(b[:n])
}
