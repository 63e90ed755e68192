package integration

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salestag/stag/internal/frame"
	"github.com/salestag/stag/internal/integrity"
	"github.com/salestag/stag/internal/rawaudio"
	"github.com/salestag/stag/internal/spool"
	"github.com/salestag/stag/internal/transfer"
)

// capture collects receiver events for end-to-end assertions.
type capture struct {
	completed  []transfer.Completed
	incomplete []transfer.Incomplete
}

func (c *capture) TransferComplete(t transfer.Completed)    { c.completed = append(c.completed, t) }
func (c *capture) TransferIncomplete(i transfer.Incomplete) { c.incomplete = append(c.incomplete, i) }
func (c *capture) StrayData(int)                            {}

// deviceFrames mimics the firmware's transmit order: FILE header,
// fixed-size chunks, END. dropChunk >= 0 simulates a lost notification.
func deviceFrames(name string, data []byte, chunkSize, dropChunk int) [][]byte {
	payloads := [][]byte{[]byte(fmt.Sprintf("FILE:%s:%d", name, len(data)))}
	chunk := 0
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		if chunk != dropChunk {
			payloads = append(payloads, data[off:end])
		}
		chunk++
	}
	return append(payloads, []byte("END"))
}

func testContainer(t *testing.T, n int) []byte {
	t.Helper()
	samples := make([]rawaudio.Sample, n)
	for i := range samples {
		samples[i] = rawaudio.Sample{
			MicSample:     uint32(1800 + i%400),
			Timestamp:     uint32(1000 + i*100),
			SequenceCount: uint32(i),
		}
	}
	return rawaudio.Encode(rawaudio.Header{
		Magic:          rawaudio.Magic,
		Version:        rawaudio.Version,
		SampleRate:     rawaudio.SampleRate,
		TotalSamples:   uint32(n),
		StartTimestamp: 1000,
		EndTimestamp:   uint32(1000 + n*100),
	}, samples)
}

// run pushes frames through the spool the way stag-emit and stagd do,
// then drains them into a fresh receiver.
func run(t *testing.T, payloads [][]byte) *capture {
	t.Helper()
	framesPath := spool.FramesPath(t.TempDir())
	_, err := spool.Append(framesPath, 1, payloads)
	require.NoError(t, err)

	got, err := spool.Read(framesPath, 0)
	require.NoError(t, err)
	require.Len(t, got, len(payloads))

	events := &capture{}
	r := transfer.NewReceiver(events)
	for _, p := range got {
		r.Handle(frame.Classify(p.Data))
	}
	return events
}

func TestCleanTransferAnalyzesValid(t *testing.T) {
	data := testContainer(t, 100)
	events := run(t, deviceFrames("rec_0001.raw", data, 240, -1))

	require.Len(t, events.completed, 1)
	c := events.completed[0]
	assert.Equal(t, "rec_0001.raw", c.Filename)
	assert.Equal(t, data, c.Data)
	assert.False(t, c.SizeMismatch)

	report := integrity.Analyze(c.Data)
	assert.True(t, report.OverallValid)
	assert.Zero(t, report.IssueCount)
	assert.Equal(t, 100, report.Samples.SampleCount)
}

func TestDroppedChunkBreaksSequenceContinuity(t *testing.T) {
	// 240-byte chunks hold whole records, so a lost notification keeps
	// the payload frame-aligned and only the analyzer can catch it.
	data := testContainer(t, 100)
	events := run(t, deviceFrames("rec_0002.raw", data, 240, 2))

	require.Len(t, events.completed, 1)
	c := events.completed[0]
	assert.True(t, c.SizeMismatch)

	report := integrity.Analyze(c.Data)
	assert.False(t, report.OverallValid)
	assert.True(t, report.Header.Valid)
	assert.NotEmpty(t, report.Samples.SequenceErrors)
	assert.NotEmpty(t, report.Samples.TimestampIssues)
}

func TestDroppedMisalignedChunkBreaksFraming(t *testing.T) {
	// A chunk size that is not a record multiple turns a lost
	// notification into a misframed payload.
	data := testContainer(t, 100)
	events := run(t, deviceFrames("rec_0003.raw", data, 250, 1))

	require.Len(t, events.completed, 1)
	report := integrity.Analyze(events.completed[0].Data)
	assert.False(t, report.OverallValid)
	require.NotNil(t, report.Samples)
	assert.Contains(t, report.Samples.Issues[0], "not divisible")
}

func TestSupersededTransferEndToEnd(t *testing.T) {
	dataA := testContainer(t, 10)
	dataB := testContainer(t, 20)

	framesA := deviceFrames("a.raw", dataA, 240, -1)
	framesB := deviceFrames("b.raw", dataB, 240, -1)
	// A's END never arrives; B begins mid-transfer.
	payloads := append(framesA[:len(framesA)-1], framesB...)

	events := run(t, payloads)
	require.Len(t, events.incomplete, 1)
	assert.Equal(t, "a.raw", events.incomplete[0].Filename)
	require.Len(t, events.completed, 1)
	assert.Equal(t, "b.raw", events.completed[0].Filename)
	assert.Equal(t, dataB, events.completed[0].Data)

	assert.True(t, integrity.Analyze(events.completed[0].Data).OverallValid)
}
