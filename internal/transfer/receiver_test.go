package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salestag/stag/internal/frame"
)

// recorder captures every event for assertions.
type recorder struct {
	completed  []Completed
	incomplete []Incomplete
	stray      []int
}

func (r *recorder) TransferComplete(c Completed)    { r.completed = append(r.completed, c) }
func (r *recorder) TransferIncomplete(i Incomplete) { r.incomplete = append(r.incomplete, i) }
func (r *recorder) StrayData(n int)                 { r.stray = append(r.stray, n) }

func header(name string, size int64) frame.Frame {
	return frame.Frame{Kind: frame.KindHeaderBegin, Filename: name, DeclaredSize: size}
}

func data(b []byte) frame.Frame {
	return frame.Frame{Kind: frame.KindData, Payload: b}
}

func end() frame.Frame {
	return frame.Frame{Kind: frame.KindEnd}
}

func TestCompleteTransfer(t *testing.T) {
	rec := &recorder{}
	r := NewReceiver(rec)

	r.Handle(header("rec.raw", 6))
	r.Handle(data([]byte("abc")))
	r.Handle(data([]byte("def")))
	r.Handle(end())

	require.Len(t, rec.completed, 1)
	c := rec.completed[0]
	assert.Equal(t, "rec.raw", c.Filename)
	assert.Equal(t, []byte("abcdef"), c.Data)
	assert.False(t, c.SizeMismatch)
	assert.Empty(t, rec.incomplete)
	assert.False(t, r.Receiving())
}

func TestSizeMismatchIsWarningNotError(t *testing.T) {
	rec := &recorder{}
	r := NewReceiver(rec)

	r.Handle(header("rec.raw", 100))
	r.Handle(data([]byte("abc")))
	r.Handle(end())

	require.Len(t, rec.completed, 1)
	assert.True(t, rec.completed[0].SizeMismatch)
	assert.Equal(t, []byte("abc"), rec.completed[0].Data)
}

func TestSupersedingHeader(t *testing.T) {
	rec := &recorder{}
	r := NewReceiver(rec)

	r.Handle(header("a.raw", 3))
	r.Handle(data([]byte("xxx")))
	r.Handle(header("b.raw", 3))
	r.Handle(data([]byte("yyy")))
	r.Handle(end())

	// Exactly one completed container (B), one incomplete event (A),
	// never a merged buffer.
	require.Len(t, rec.incomplete, 1)
	assert.Equal(t, "a.raw", rec.incomplete[0].Filename)
	assert.Equal(t, int64(3), rec.incomplete[0].BytesReceived)

	require.Len(t, rec.completed, 1)
	assert.Equal(t, "b.raw", rec.completed[0].Filename)
	assert.Equal(t, []byte("yyy"), rec.completed[0].Data)
}

func TestStrayDataIgnored(t *testing.T) {
	rec := &recorder{}
	r := NewReceiver(rec)

	r.Handle(data([]byte("orphan")))
	r.Handle(end())

	assert.Empty(t, rec.completed)
	assert.Empty(t, rec.incomplete)
	assert.Equal(t, []int{6}, rec.stray)
}

func TestCloseForceFinalizes(t *testing.T) {
	rec := &recorder{}
	r := NewReceiver(rec)

	r.Handle(header("rec.raw", 10))
	r.Handle(data([]byte("abc")))
	r.Close()

	require.Len(t, rec.incomplete, 1)
	assert.Equal(t, int64(3), rec.incomplete[0].BytesReceived)
	assert.False(t, r.Receiving())

	// Idle close is a no-op.
	r.Close()
	assert.Len(t, rec.incomplete, 1)
}

func TestThroughputZeroWhenInstant(t *testing.T) {
	rec := &recorder{}
	r := NewReceiver(rec)
	fixed := time.Now()
	r.now = func() time.Time { return fixed }

	r.Handle(header("rec.raw", 3))
	r.Handle(data([]byte("abc")))
	r.Handle(end())

	require.Len(t, rec.completed, 1)
	assert.Zero(t, rec.completed[0].BytesPerSec)
}

func TestDeterministicFrameSequence(t *testing.T) {
	frames := []frame.Frame{
		header("a.raw", 4),
		data([]byte("12")),
		header("b.raw", 2),
		data([]byte("34")),
		end(),
		data([]byte("stray")),
		end(),
	}

	// Fixed clock: determinism is about the event and byte sequence, so
	// keep wall-clock timing out of the comparison.
	fixed := time.Now()
	run := func() *recorder {
		rec := &recorder{}
		r := NewReceiver(rec)
		r.now = func() time.Time { return fixed }
		for _, f := range frames {
			r.Handle(f)
		}
		return rec
	}

	a, b := run(), run()
	assert.Equal(t, a.completed, b.completed)
	assert.Equal(t, a.incomplete, b.incomplete)
	assert.Equal(t, a.stray, b.stray)
}

func TestFilenameSanitized(t *testing.T) {
	rec := &recorder{}
	r := NewReceiver(rec)

	r.Handle(header("../../etc/passwd", 1))
	r.Handle(data([]byte("x")))
	r.Handle(end())

	require.Len(t, rec.completed, 1)
	assert.NotContains(t, rec.completed[0].Filename, "..")
	assert.NotContains(t, rec.completed[0].Filename, "/")
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "rec_0001.raw", SanitizeFilename("rec_0001.raw"))
	assert.Equal(t, "_etc_passwd", SanitizeFilename("/etc/passwd"))
	assert.Equal(t, "unnamed.raw", SanitizeFilename(""))
	assert.Equal(t, "unnamed.raw", SanitizeFilename("   "))
	assert.NotContains(t, SanitizeFilename("a..b..c"), "..")
}
