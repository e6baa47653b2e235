package output

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"conductor/internal/color"
	"conductor/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects lines per component.
type recorder struct {
	mu    sync.Mutex
	lines []Line
}

func (r *recorder) WriteLine(l Line) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, l)
	return nil
}

func (r *recorder) texts(component string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, l := range r.lines {
		if l.Component == component {
			out = append(out, l.Text)
		}
	}
	return out
}

func TestSink_WriteLinePlain(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf, nil)

	require.NoError(t, sink.WriteLine(Line{Component: "api", Color: "blue", Text: "hello-api"}))
	require.NoError(t, sink.WriteLine(Line{Component: "web", Color: "green", Text: ""}))

	assert.Equal(t, "[api] hello-api\n[web] \n", buf.String())
}

func TestSink_WriteLineColored(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf, color.NewStyles(color.NewRenderer(&buf, color.ModeAlways)))

	require.NoError(t, sink.WriteLine(Line{Component: "api", Color: "blue", Text: "hello"}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "[\x1b["), "name should be wrapped in an escape sequence: %q", out)
	assert.True(t, strings.HasSuffix(out, "] hello\n"))
	assert.Contains(t, out, "api")
}

func TestSink_Align(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf, nil)
	sink.Align([]string{"api", "worker", "日本"})

	require.NoError(t, sink.WriteLine(Line{Component: "api", Text: "a"}))
	require.NoError(t, sink.WriteLine(Line{Component: "worker", Text: "b"}))
	require.NoError(t, sink.WriteLine(Line{Component: "日本", Text: "c"}))

	assert.Equal(t, "[api   ] a\n[worker] b\n[日本  ] c\n", buf.String())
}

func TestSink_System(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf, nil)

	sink.System("Component started api")
	sink.SystemError("Component error [web]: boom")

	assert.Equal(t, "-=[ Component started api ]=-\n-=[ Component error [web]: boom ]=-\n", buf.String())
}

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestSink_SystemWriteErrorIsLoggedOnce(t *testing.T) {
	var diag bytes.Buffer
	logging.InitForCLI(logging.LevelDebug, &diag)
	t.Cleanup(func() { logging.InitForCLI(logging.LevelWarn, io.Discard) })

	sink := NewSink(brokenWriter{}, nil)
	sink.System("Component started api")
	sink.SystemError("Component error [web]: boom")

	assert.Equal(t, 1, strings.Count(diag.String(), "failed to write system message"), diag.String())
	assert.Contains(t, diag.String(), "disk full")
	assert.Error(t, sink.WriteLine(Line{Component: "api", Text: "x"}))
}

func TestMultiplexer_PreservesStreamOrder(t *testing.T) {
	rec := &recorder{}
	mux := NewMultiplexer(rec)

	var want []string
	var b strings.Builder
	for i := 0; i < 500; i++ {
		line := strings.Repeat("x", i%7) + "-" + string(rune('a'+i%26))
		want = append(want, line)
		b.WriteString(line + "\n")
	}

	mux.Attach("api", "blue", strings.NewReader(b.String()))
	mux.Attach("web", "green", strings.NewReader("w1\nw2\n"), strings.NewReader("e1\n"))
	mux.Wait()

	assert.Equal(t, want, rec.texts("api"))
	assert.ElementsMatch(t, []string{"w1", "w2", "e1"}, rec.texts("web"))
}

func TestMultiplexer_FlushesPartialTail(t *testing.T) {
	rec := &recorder{}
	mux := NewMultiplexer(rec)

	mux.Attach("api", "", strings.NewReader("first\r\nsecond\nno newline at end"))
	mux.Wait()

	assert.Equal(t, []string{"first", "second", "no newline at end"}, rec.texts("api"))
}

func TestMultiplexer_LongLinesAreNotTruncated(t *testing.T) {
	rec := &recorder{}
	mux := NewMultiplexer(rec)

	long := strings.Repeat("0123456789", 20000) // 200 KB, beyond bufio.Scanner's limit
	mux.Attach("api", "", strings.NewReader(long+"\nshort\n"))
	mux.Wait()

	got := rec.texts("api")
	require.Len(t, got, 2)
	assert.Equal(t, long, got[0])
	assert.Equal(t, "short", got[1])
}

func TestMultiplexer_LineSplitAcrossWrites(t *testing.T) {
	rec := &recorder{}
	mux := NewMultiplexer(rec)

	pr, pw := io.Pipe()
	mux.Attach("api", "", pr)

	for _, chunk := range []string{"hel", "lo\nwor", "ld", "\n", "tail"} {
		_, err := pw.Write([]byte(chunk))
		require.NoError(t, err)
	}
	require.NoError(t, pw.Close())
	mux.Wait()

	assert.Equal(t, []string{"hello", "world", "tail"}, rec.texts("api"))
}

func TestMultiplexer_ReadErrorFlushesAndStops(t *testing.T) {
	rec := &recorder{}
	mux := NewMultiplexer(rec)

	pr, pw := io.Pipe()
	mux.Attach("api", "", pr)
	_, _ = pw.Write([]byte("done\npartial"))
	pw.CloseWithError(errors.New("stream broke"))
	mux.Wait()

	assert.Equal(t, []string{"done", "partial"}, rec.texts("api"))
}

func TestMultiplexer_ConcurrentWritersThroughSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSink(&buf, nil)
	mux := NewMultiplexer(sink)

	for _, name := range []string{"a", "b", "c", "d"} {
		mux.Attach(name, "", strings.NewReader(strings.Repeat(name+" line\n", 200)))
	}
	mux.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 800)
	for _, l := range lines {
		// Each line must be intact: "[x] x line".
		require.Len(t, l, len("[a] a line"))
		assert.Equal(t, l[1:2], l[4:5])
	}
}
