package saltchannel

import "io"

// Reader is a non-blocking byte source. It behaves like io.Reader except
// that "no data available right now" is signalled by returning (0,
// ErrPending) instead of blocking; any other non-nil error is fatal and
// terminates the session.
type Reader interface {
	Read(p []byte) (n int, err error)
}

// Writer is the non-blocking analogue of Reader for sending bytes.
type Writer interface {
	Write(p []byte) (n int, err error)
}

// readPhase tracks which part of a framed message the read pump is
// currently assembling.
type readPhase int

const (
	readIdle readPhase = iota
	readSize
	readBody
)

// readPump assembles one whole framed message (4-byte size prefix, then
// that many body bytes) from a non-blocking Reader, resuming across calls
// that return ErrPending. It performs no allocation: the body is written
// directly into the caller-supplied dst.
type readPump struct {
	phase   readPhase
	have    int
	sizeBuf [FrameHeaderLen]byte
	bodyLen uint32
}

func (p *readPump) reset() {
	p.phase = readIdle
	p.have = 0
	p.bodyLen = 0
}

// poll drives the pump forward. dst must be at least as large as the
// eventual body length; poll returns ParseError if the declared size
// exceeds len(dst). On success it returns the body slice (dst[:bodyLen])
// and resets the pump for the next message.
func (p *readPump) poll(r Reader, dst []byte) ([]byte, error) {
	if p.phase == readIdle {
		p.phase = readSize
		p.have = 0
	}

	if p.phase == readSize {
		for p.have < FrameHeaderLen {
			n, err := r.Read(p.sizeBuf[p.have:FrameHeaderLen])
			if err != nil {
				if err == ErrPending {
					return nil, ErrPending
				}
				p.reset()
				return nil, newError(CodeTransportFatal, "reading frame size", err)
			}
			p.have += n
			if n == 0 {
				return nil, ErrPending
			}
		}
		p.bodyLen = FrameSize(p.sizeBuf[:])
		if int(p.bodyLen) > len(dst) {
			p.reset()
			return nil, parseErr("frame body exceeds buffer capacity")
		}
		p.phase = readBody
		p.have = 0
	}

	for p.have < int(p.bodyLen) {
		n, err := r.Read(dst[p.have:p.bodyLen])
		if err != nil {
			if err == ErrPending {
				return nil, ErrPending
			}
			p.reset()
			return nil, newError(CodeTransportFatal, "reading frame body", err)
		}
		p.have += n
		if n == 0 {
			return nil, ErrPending
		}
	}

	body := dst[:p.bodyLen]
	p.reset()
	return body, nil
}

// writePump streams one prepared frame (size prefix + body, already laid
// out contiguously by the caller) out through a non-blocking Writer,
// resuming across ErrPending returns.
type writePump struct {
	have int
}

func (p *writePump) reset() { p.have = 0 }

func (p *writePump) poll(w Writer, frame []byte) error {
	for p.have < len(frame) {
		n, err := w.Write(frame[p.have:])
		if err != nil {
			if err == ErrPending {
				return ErrPending
			}
			p.reset()
			return newError(CodeTransportFatal, "writing frame", err)
		}
		p.have += n
		if n == 0 {
			return ErrPending
		}
	}
	p.reset()
	return nil
}

// blockingReader/blockingWriter adapt a standard blocking io.Reader/
// io.Writer to the non-blocking Reader/Writer contract, for callers whose
// transport is happy to block. They never return
// ErrPending.
type blockingReader struct{ io.Reader }

func (b blockingReader) Read(p []byte) (int, error) { return b.Reader.Read(p) }

type blockingWriter struct{ io.Writer }

func (b blockingWriter) Write(p []byte) (int, error) { return b.Writer.Write(p) }

// WrapBlocking adapts a blocking io.Reader/io.Writer pair (for example a
// net.Conn) into the Reader/Writer pair Session expects. This is a
// convenience for callers who do not need non-blocking I/O; it is not used
// internally by the engine.
func WrapBlocking(r io.Reader, w io.Writer) (Reader, Writer) {
	return blockingReader{r}, blockingWriter{w}
}
