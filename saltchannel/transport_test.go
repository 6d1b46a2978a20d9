package saltchannel

import (
	"bytes"
	"testing"
)

// pipeTransport is a local, non-blocking Reader/Writer test double standing
// in for a real non-blocking socket: it returns ErrPending instead of
// blocking when there is nothing to read, or when its write budget is used
// up, so the resumable pumps can be exercised without a real transport.
// chunk caps the bytes moved per call without returning ErrPending.
type pipeTransport struct {
	in      []byte // unread bytes available to Read
	out     []byte // bytes accumulated by Write
	chunk   int    // max bytes per call; 0 means unlimited
	starved bool   // if true, Read always returns ErrPending

	writeBudgeted bool // if true, Write is limited to writeBudget bytes total
	writeBudget   int
}

func (p *pipeTransport) Read(dst []byte) (int, error) {
	if p.starved || len(p.in) == 0 {
		return 0, ErrPending
	}
	n := len(dst)
	if n > len(p.in) {
		n = len(p.in)
	}
	if p.chunk > 0 && n > p.chunk {
		n = p.chunk
	}
	copy(dst, p.in[:n])
	p.in = p.in[n:]
	return n, nil
}

// feed appends more bytes to what Read can see, simulating data arriving
// on a socket some time after an earlier ErrPending.
func (p *pipeTransport) feed(b []byte) { p.in = append(p.in, b...) }

func (p *pipeTransport) Write(src []byte) (int, error) {
	if p.writeBudgeted && p.writeBudget <= 0 {
		return 0, ErrPending
	}
	n := len(src)
	if p.chunk > 0 && n > p.chunk {
		n = p.chunk
	}
	if p.writeBudgeted && n > p.writeBudget {
		n = p.writeBudget
	}
	p.out = append(p.out, src[:n]...)
	if p.writeBudgeted {
		p.writeBudget -= n
	}
	return n, nil
}

// allowWrite grants a budgeted transport more bytes it may accept on
// future Write calls, simulating a socket becoming writable again after an
// earlier ErrPending. The first call switches the transport into budgeted
// mode; before that, Write is unlimited (aside from chunk).
func (p *pipeTransport) allowWrite(n int) {
	p.writeBudgeted = true
	p.writeBudget += n
}

func newPipe() *pipeTransport { return &pipeTransport{} }

func TestReadPumpWholeMessage(t *testing.T) {
	body := []byte("a handshake message body")
	frame := make([]byte, FrameHeaderLen+len(body))
	PutFrameSize(frame, len(body))
	copy(frame[FrameHeaderLen:], body)

	p := &pipeTransport{in: frame}
	var rp readPump
	dst := make([]byte, 256)
	got, err := rp.poll(p, dst)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("body mismatch: want %q, have %q", body, got)
	}
}

func TestReadPumpResumesAcrossPending(t *testing.T) {
	body := []byte("another body, longer this time around")
	frame := make([]byte, FrameHeaderLen+len(body))
	PutFrameSize(frame, len(body))
	copy(frame[FrameHeaderLen:], body)

	p := &pipeTransport{} // starts empty: every call is a real ErrPending
	var rp readPump
	dst := make([]byte, 256)

	// feed the frame in dribs, one byte at a time, so the pump must
	// resume its size-then-body assembly across many ErrPending returns.
	var got []byte
	for i := 0; ; i++ {
		b, err := rp.poll(p, dst)
		if err == ErrPending {
			if i < len(frame) {
				p.feed(frame[i : i+1])
			}
			continue
		}
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		got = b
		break
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("body mismatch: want %q, have %q", body, got)
	}
}

func TestReadPumpPendingWithNoData(t *testing.T) {
	p := &pipeTransport{starved: true}
	var rp readPump
	dst := make([]byte, 64)
	if _, err := rp.poll(p, dst); err != ErrPending {
		t.Fatalf("expected ErrPending, have %v", err)
	}
}

func TestReadPumpOversizedFrame(t *testing.T) {
	frame := make([]byte, FrameHeaderLen)
	PutFrameSize(frame, 1000)
	p := &pipeTransport{in: frame}
	var rp readPump
	dst := make([]byte, 16)
	if _, err := rp.poll(p, dst); err == nil {
		t.Fatal("expected ParseError for oversized frame")
	}
}

func TestWritePumpResumesAcrossPending(t *testing.T) {
	frame := []byte("0123456789abcdef")
	p := &pipeTransport{chunk: 4}
	p.allowWrite(4)
	var wp writePump
	for {
		err := wp.poll(p, frame)
		if err == ErrPending {
			p.allowWrite(4)
			continue
		}
		if err != nil {
			t.Fatalf("poll: %v", err)
		}
		break
	}
	if !bytes.Equal(p.out, frame) {
		t.Fatalf("output mismatch: want %q, have %q", frame, p.out)
	}
}
