// Package transfer owns the single in-flight file reception. It turns an
// ordered stream of classified frames into completed container buffers,
// reporting anomalies as events instead of failing the stream.
package transfer

import (
	"time"

	"github.com/salestag/stag/internal/frame"
)

// Session is the one in-flight reception. It is owned exclusively by the
// Receiver; nil session means idle.
type Session struct {
	Filename     string
	DeclaredSize int64
	Received     []byte
	StartedAt    time.Time
}

// Completed describes a finished transfer handed to the caller.
type Completed struct {
	Filename     string
	DeclaredSize int64
	Data         []byte
	Elapsed      time.Duration
	BytesPerSec  float64
	SizeMismatch bool
}

// Incomplete describes a transfer force-closed before its END frame.
type Incomplete struct {
	Filename      string
	DeclaredSize  int64
	BytesReceived int64
	Reason        string
}

// Handler receives transfer outcomes and diagnostics. Any method may be
// left nil-equivalent by embedding NopHandler.
type Handler interface {
	// TransferComplete is called with the assembled container. The data
	// slice becomes the handler's to keep; the receiver drops its reference.
	TransferComplete(c Completed)
	// TransferIncomplete is called when a session is superseded or the
	// receiver is closed mid-transfer. The accumulated bytes are discarded.
	TransferIncomplete(inc Incomplete)
	// StrayData is called for data frames arriving with no open session.
	StrayData(n int)
}

// NopHandler ignores all events.
type NopHandler struct{}

func (NopHandler) TransferComplete(Completed)    {}
func (NopHandler) TransferIncomplete(Incomplete) {}
func (NopHandler) StrayData(int)                 {}

// Receiver is the transfer state machine. Not safe for concurrent use;
// the delivery path feeds it one frame at a time.
type Receiver struct {
	handler Handler
	session *Session
	now     func() time.Time
}

// NewReceiver returns an idle receiver reporting to h.
func NewReceiver(h Handler) *Receiver {
	if h == nil {
		h = NopHandler{}
	}
	return &Receiver{handler: h, now: time.Now}
}

// Receiving reports whether a session is open.
func (r *Receiver) Receiving() bool { return r.session != nil }

// Handle consumes one classified frame and advances the state machine.
func (r *Receiver) Handle(f frame.Frame) {
	switch f.Kind {
	case frame.KindHeaderBegin:
		r.begin(f)
	case frame.KindData:
		r.data(f.Payload)
	case frame.KindEnd:
		r.end()
	}
}

// Close force-finalizes any open session, e.g. on disconnect or shutdown.
func (r *Receiver) Close() {
	r.abort("receiver closed")
}

func (r *Receiver) begin(f frame.Frame) {
	// A new header supersedes whatever was in flight.
	r.abort("superseded by new transfer")
	r.session = &Session{
		Filename:     SanitizeFilename(f.Filename),
		DeclaredSize: f.DeclaredSize,
		StartedAt:    r.now(),
	}
}

func (r *Receiver) data(payload []byte) {
	if r.session == nil {
		r.handler.StrayData(len(payload))
		return
	}
	// Arrival order is all we have; the link gives no ordering guarantees
	// and corruption is the analyzer's problem.
	r.session.Received = append(r.session.Received, payload...)
}

func (r *Receiver) end() {
	s := r.session
	if s == nil {
		return
	}
	r.session = nil

	elapsed := r.now().Sub(s.StartedAt)
	var rate float64
	if secs := elapsed.Seconds(); secs > 0 {
		rate = float64(len(s.Received)) / secs
	}
	r.handler.TransferComplete(Completed{
		Filename:     s.Filename,
		DeclaredSize: s.DeclaredSize,
		Data:         s.Received,
		Elapsed:      elapsed,
		BytesPerSec:  rate,
		SizeMismatch: int64(len(s.Received)) != s.DeclaredSize,
	})
}

func (r *Receiver) abort(reason string) {
	s := r.session
	if s == nil {
		return
	}
	r.session = nil
	r.handler.TransferIncomplete(Incomplete{
		Filename:      s.Filename,
		DeclaredSize:  s.DeclaredSize,
		BytesReceived: int64(len(s.Received)),
		Reason:        reason,
	})
}
