package saltchannel

import "encoding/binary"

// Wire-level message types. M1/M2/A1/A2 travel in the
// clear with their type byte as the outer frame type; M3, M4, App and
// MultiApp are always wrapped in an AEAD container whose outer frame type
// is TypeEncrypted — their own type byte (TypeM3/TypeM4/TypeApp/
// TypeMultiApp) only reappears once the container is opened, as the first
// byte of the plaintext.
const (
	TypeM1        = 1
	TypeM2        = 2
	TypeM3        = 3
	TypeM4        = 4
	TypeApp       = 5
	TypeEncrypted = 6
	TypeA1        = 8
	TypeA2        = 9
	TypeMultiApp  = 11
)

// Flag bits. M1/M2 flags live in the outer (unencrypted) frame header;
// App/MultiApp/A2 flags live in the plaintext that gets sealed (for
// App/MultiApp) or are the A2 message's own unencrypted flags byte.
const (
	FlagPinningRequested = 1 << 0
	FlagTicketRequested  = 1 << 4

	FlagNoSuchServer        = 1 << 0
	FlagResumeNotSupported  = 1 << 4

	// FlagLast is the "LastFlag" from the glossary: the sender will send
	// nothing further on this session after this message.
	FlagLast = 1 << 7
)

// protocolID is the 10-byte Salt Channel v2 protocol identifier carried in
// M1.
var protocolID = [10]byte{'S', 'C', 'v', '2', '-', '-', '-', '-', '-', '-'}

// Signature transcript labels.
var (
	sigLabelHost   = [8]byte{'S', 'C', '-', 'S', 'I', 'G', '0', '1'}
	sigLabelClient = [8]byte{'S', 'C', '-', 'S', 'I', 'G', '0', '2'}
)

// FrameHeaderLen is the width of the size prefix the I/O pump (C3) reads
// and writes around every message body produced/consumed here. It is not
// part of the byte ranges the codec functions in this file operate on —
// those operate purely on the body (type + flags + payload).
const FrameHeaderLen = 4

// PutFrameSize writes the 4-byte little-endian size prefix for a body of
// the given length.
func PutFrameSize(buf []byte, bodyLen int) {
	binary.LittleEndian.PutUint32(buf, uint32(bodyLen))
}

// FrameSize reads the 4-byte little-endian size prefix.
func FrameSize(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf)
}

// bodyHeaderLen is the width of the type+flags pair every message body
// starts with.
const bodyHeaderLen = 2

func parseErr(msg string) *Error { return newError(CodeParseError, msg, nil) }
func protoErr(msg string) *Error { return newError(CodeProtocolError, msg, nil) }

// M1 is the client's first handshake message.
type M1 struct {
	PinningRequested bool
	TicketRequested  bool
	ClientEphemeral  [DHKeySize]byte
	PeerSigKey       [SigPublicSize]byte
	HasPeerSigKey    bool
}

// EncodeM1 writes the M1 body (type, flags, protocol ID, ephemeral public
// key, and optional pinned peer key) into buf and returns the number of
// bytes written.
func EncodeM1(buf []byte, m *M1) (int, error) {
	need := bodyHeaderLen + len(protocolID) + DHKeySize
	if m.HasPeerSigKey {
		need += SigPublicSize
	}
	if len(buf) < need {
		return 0, newError(CodeConfigError, "buffer too small for M1", nil)
	}

	var flags byte
	if m.PinningRequested {
		flags |= FlagPinningRequested
	}
	if m.TicketRequested {
		flags |= FlagTicketRequested
	}

	buf[0] = TypeM1
	buf[1] = flags
	off := bodyHeaderLen
	copy(buf[off:], protocolID[:])
	off += len(protocolID)
	copy(buf[off:], m.ClientEphemeral[:])
	off += DHKeySize
	if m.HasPeerSigKey {
		copy(buf[off:], m.PeerSigKey[:])
		off += SigPublicSize
	}
	return off, nil
}

// DecodeM1 parses an M1 body (as produced by EncodeM1, not including the
// 4-byte frame size prefix).
func DecodeM1(buf []byte) (*M1, error) {
	if len(buf) < bodyHeaderLen+len(protocolID)+DHKeySize {
		return nil, parseErr("M1 too short")
	}
	if buf[0] != TypeM1 {
		return nil, protoErr("expected M1 type")
	}
	flags := buf[1]
	off := bodyHeaderLen
	if string(buf[off:off+len(protocolID)]) != string(protocolID[:]) {
		return nil, parseErr("unrecognised protocol ID in M1")
	}
	off += len(protocolID)

	m := &M1{
		PinningRequested: flags&FlagPinningRequested != 0,
		TicketRequested:  flags&FlagTicketRequested != 0,
	}
	copy(m.ClientEphemeral[:], buf[off:off+DHKeySize])
	off += DHKeySize

	if m.PinningRequested {
		if len(buf) < off+SigPublicSize {
			return nil, parseErr("M1 missing pinned peer key")
		}
		copy(m.PeerSigKey[:], buf[off:off+SigPublicSize])
		m.HasPeerSigKey = true
		off += SigPublicSize
	}
	if off != len(buf) {
		return nil, parseErr("trailing bytes after M1 body")
	}
	return m, nil
}

// M2 is the host's reply to M1.
type M2 struct {
	NoSuchServer       bool
	ResumeNotSupported bool
	HostEphemeral      [DHKeySize]byte
}

// EncodeM2 writes the M2 body into buf.
func EncodeM2(buf []byte, m *M2) (int, error) {
	need := bodyHeaderLen + DHKeySize
	if len(buf) < need {
		return 0, newError(CodeConfigError, "buffer too small for M2", nil)
	}
	var flags byte
	if m.NoSuchServer {
		flags |= FlagNoSuchServer
	}
	if m.ResumeNotSupported {
		flags |= FlagResumeNotSupported
	}
	buf[0] = TypeM2
	buf[1] = flags
	copy(buf[bodyHeaderLen:], m.HostEphemeral[:])
	return need, nil
}

// DecodeM2 parses an M2 body.
func DecodeM2(buf []byte) (*M2, error) {
	if len(buf) != bodyHeaderLen+DHKeySize {
		return nil, parseErr("M2 wrong length")
	}
	if buf[0] != TypeM2 {
		return nil, protoErr("expected M2 type")
	}
	flags := buf[1]
	m := &M2{
		NoSuchServer:       flags&FlagNoSuchServer != 0,
		ResumeNotSupported: flags&FlagResumeNotSupported != 0,
	}
	copy(m.HostEphemeral[:], buf[bodyHeaderLen:])
	return m, nil
}

// M3Inner is the plaintext M3 carries once its AEAD container is opened:
// the host's signing public key and its signature over the transcript
// hash.
type M3Inner struct {
	HostSigPub [SigPublicSize]byte
	Signature  [SignatureSize]byte
}

// EncodeM3Inner writes the M3 plaintext (type, flags, signing key,
// signature) that the caller then seals with the session AEAD key.
func EncodeM3Inner(buf []byte, m *M3Inner) (int, error) {
	need := bodyHeaderLen + SigPublicSize + SignatureSize
	if len(buf) < need {
		return 0, newError(CodeConfigError, "buffer too small for M3", nil)
	}
	buf[0] = TypeM3
	buf[1] = 0
	off := bodyHeaderLen
	copy(buf[off:], m.HostSigPub[:])
	off += SigPublicSize
	copy(buf[off:], m.Signature[:])
	off += SignatureSize
	return off, nil
}

// DecodeM3Inner parses the opened M3 plaintext.
func DecodeM3Inner(buf []byte) (*M3Inner, error) {
	if len(buf) != bodyHeaderLen+SigPublicSize+SignatureSize {
		return nil, parseErr("M3 wrong length")
	}
	if buf[0] != TypeM3 {
		return nil, protoErr("expected M3 type")
	}
	m := &M3Inner{}
	off := bodyHeaderLen
	copy(m.HostSigPub[:], buf[off:off+SigPublicSize])
	off += SigPublicSize
	copy(m.Signature[:], buf[off:off+SignatureSize])
	return m, nil
}

// M4Inner is the client's analogue of M3Inner.
type M4Inner struct {
	ClientSigPub [SigPublicSize]byte
	Signature    [SignatureSize]byte
}

// EncodeM4Inner writes the M4 plaintext.
func EncodeM4Inner(buf []byte, m *M4Inner) (int, error) {
	need := bodyHeaderLen + SigPublicSize + SignatureSize
	if len(buf) < need {
		return 0, newError(CodeConfigError, "buffer too small for M4", nil)
	}
	buf[0] = TypeM4
	buf[1] = 0
	off := bodyHeaderLen
	copy(buf[off:], m.ClientSigPub[:])
	off += SigPublicSize
	copy(buf[off:], m.Signature[:])
	off += SignatureSize
	return off, nil
}

// DecodeM4Inner parses the opened M4 plaintext.
func DecodeM4Inner(buf []byte) (*M4Inner, error) {
	if len(buf) != bodyHeaderLen+SigPublicSize+SignatureSize {
		return nil, parseErr("M4 wrong length")
	}
	if buf[0] != TypeM4 {
		return nil, protoErr("expected M4 type")
	}
	m := &M4Inner{}
	off := bodyHeaderLen
	copy(m.ClientSigPub[:], buf[off:off+SigPublicSize])
	off += SigPublicSize
	copy(m.Signature[:], buf[off:off+SignatureSize])
	return m, nil
}

// sigTranscript writes label||hash into out (which must be at least
// len(label)+HashSize bytes) and returns the slice actually used. Shared by
// both M3 and M4 signature production/verification.
func sigTranscript(out []byte, label [8]byte, hash *[HashSize]byte) []byte {
	copy(out, label[:])
	copy(out[8:], hash[:])
	return out[:8+HashSize]
}

// EncodeApp writes the App plaintext (flags, timestamp, payload) that the
// caller then seals with the session AEAD key and the write nonce.
func EncodeApp(buf []byte, last bool, timestamp uint32, payload []byte) (int, error) {
	need := bodyHeaderLen + 4 + len(payload)
	if len(buf) < need {
		return 0, newError(CodeConfigError, "buffer too small for App", nil)
	}
	buf[0] = TypeApp
	flags := byte(0)
	if last {
		flags |= FlagLast
	}
	buf[1] = flags
	binary.LittleEndian.PutUint32(buf[bodyHeaderLen:], timestamp)
	copy(buf[bodyHeaderLen+4:], payload)
	return need, nil
}

// AppView is a decoded, zero-copy view over an opened App plaintext: Payload
// aliases the caller's decode buffer.
type AppView struct {
	Last      bool
	Timestamp uint32
	Payload   []byte
}

// DecodeApp parses an opened App plaintext.
func DecodeApp(buf []byte) (*AppView, error) {
	if len(buf) < bodyHeaderLen+4 {
		return nil, parseErr("App too short")
	}
	if buf[0] != TypeApp {
		return nil, protoErr("expected App type")
	}
	flags := buf[1]
	ts := binary.LittleEndian.Uint32(buf[bodyHeaderLen:])
	return &AppView{
		Last:      flags&FlagLast != 0,
		Timestamp: ts,
		Payload:   buf[bodyHeaderLen+4:],
	}, nil
}

// EncodeMultiAppHeader writes the MultiApp header (flags, timestamp, count)
// and returns the offset at which the caller should start appending
// (length-prefixed) sub-messages with AppendMultiAppPart.
func EncodeMultiAppHeader(buf []byte, last bool, timestamp uint32, count int, maxCount int) (int, error) {
	if count < 1 {
		return 0, protoErr("MultiApp requires at least one message")
	}
	if maxCount > 0 && count > maxCount {
		return 0, protoErr("MultiApp count exceeds configured ceiling")
	}
	need := bodyHeaderLen + 4 + 2
	if len(buf) < need {
		return 0, newError(CodeConfigError, "buffer too small for MultiApp header", nil)
	}
	buf[0] = TypeMultiApp
	flags := byte(0)
	if last {
		flags |= FlagLast
	}
	buf[1] = flags
	binary.LittleEndian.PutUint32(buf[bodyHeaderLen:], timestamp)
	binary.LittleEndian.PutUint16(buf[bodyHeaderLen+4:], uint16(count))
	return need, nil
}

// AppendMultiAppPart appends one (length-prefixed) sub-message at buf[off:]
// and returns the new offset.
func AppendMultiAppPart(buf []byte, off int, payload []byte) (int, error) {
	need := off + 2 + len(payload)
	if len(buf) < need {
		return 0, newError(CodeConfigError, "buffer too small for MultiApp part", nil)
	}
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(payload)))
	copy(buf[off+2:], payload)
	return need, nil
}

// MultiAppView is a decoded, zero-copy view over an opened MultiApp
// plaintext.
type MultiAppView struct {
	Last      bool
	Timestamp uint32
	buf       []byte
	offsets   [][2]int // start,len pairs into buf
}

// Count returns the number of sub-messages.
func (v *MultiAppView) Count() int { return len(v.offsets) }

// At returns the payload of the i'th sub-message, aliasing the decode
// buffer.
func (v *MultiAppView) At(i int) []byte {
	o := v.offsets[i]
	return v.buf[o[0] : o[0]+o[1]]
}

// DecodeMultiApp parses an opened MultiApp plaintext. maxCount bounds the
// number of sub-messages it is willing to index; 0 disables the bound.
func DecodeMultiApp(buf []byte, maxCount int) (*MultiAppView, error) {
	if len(buf) < bodyHeaderLen+4+2 {
		return nil, parseErr("MultiApp too short")
	}
	if buf[0] != TypeMultiApp {
		return nil, protoErr("expected MultiApp type")
	}
	flags := buf[1]
	ts := binary.LittleEndian.Uint32(buf[bodyHeaderLen:])
	count := int(binary.LittleEndian.Uint16(buf[bodyHeaderLen+4:]))
	if maxCount > 0 && count > maxCount {
		return nil, parseErr("MultiApp count exceeds configured ceiling")
	}

	v := &MultiAppView{
		Last:      flags&FlagLast != 0,
		Timestamp: ts,
		buf:       buf,
	}
	off := bodyHeaderLen + 4 + 2
	for i := 0; i < count; i++ {
		if len(buf) < off+2 {
			return nil, parseErr("MultiApp truncated part length")
		}
		plen := int(binary.LittleEndian.Uint16(buf[off:]))
		off += 2
		if len(buf) < off+plen {
			return nil, parseErr("MultiApp truncated part payload")
		}
		v.offsets = append(v.offsets, [2]int{off, plen})
		off += plen
	}
	if off != len(buf) {
		return nil, parseErr("trailing bytes after MultiApp parts")
	}
	return v, nil
}

// A1 is the pre-handshake protocol-discovery query.
type A1 struct {
	AddressType byte
	Address     []byte
}

// EncodeA1 writes the A1 body into buf.
func EncodeA1(buf []byte, a *A1) (int, error) {
	need := bodyHeaderLen + 1 + 2 + len(a.Address)
	if len(buf) < need {
		return 0, newError(CodeConfigError, "buffer too small for A1", nil)
	}
	buf[0] = TypeA1
	buf[1] = 0
	off := bodyHeaderLen
	buf[off] = a.AddressType
	off++
	binary.LittleEndian.PutUint16(buf[off:], uint16(len(a.Address)))
	off += 2
	copy(buf[off:], a.Address)
	off += len(a.Address)
	return off, nil
}

// DecodeA1 parses an A1 body. The returned Address is a copy, so it stays
// valid after buf is reused (for example by the A2 reply).
func DecodeA1(buf []byte) (*A1, error) {
	if len(buf) < bodyHeaderLen+1+2 {
		return nil, parseErr("A1 too short")
	}
	if buf[0] != TypeA1 {
		return nil, protoErr("expected A1 type")
	}
	off := bodyHeaderLen
	a := &A1{AddressType: buf[off]}
	off++
	alen := int(binary.LittleEndian.Uint16(buf[off:]))
	off += 2
	if len(buf) != off+alen {
		return nil, parseErr("A1 address length mismatch")
	}
	a.Address = append([]byte(nil), buf[off:off+alen]...)
	return a, nil
}

// A2Pair is one (protocol, profile) advertisement in an A2 response.
type A2Pair struct {
	P1 [10]byte
	P2 [10]byte
}

// MaxA2Pairs is the ceiling on the number of pairs a single A2 message may
// carry.
const MaxA2Pairs = 127

// A2 is the host's reply to A1.
type A2 struct {
	Last  bool
	Pairs []A2Pair
}

// EncodeA2 writes the A2 body into buf.
func EncodeA2(buf []byte, a *A2) (int, error) {
	if len(a.Pairs) > MaxA2Pairs {
		return 0, protoErr("too many A2 pairs")
	}
	need := bodyHeaderLen + 1 + len(a.Pairs)*20
	if len(buf) < need {
		return 0, newError(CodeConfigError, "buffer too small for A2", nil)
	}
	buf[0] = TypeA2
	flags := byte(0)
	if a.Last {
		flags |= FlagLast
	}
	buf[1] = flags
	off := bodyHeaderLen
	buf[off] = byte(len(a.Pairs))
	off++
	for _, p := range a.Pairs {
		copy(buf[off:], p.P1[:])
		off += 10
		copy(buf[off:], p.P2[:])
		off += 10
	}
	return off, nil
}

// DecodeA2 parses an A2 body.
func DecodeA2(buf []byte) (*A2, error) {
	if len(buf) < bodyHeaderLen+1 {
		return nil, parseErr("A2 too short")
	}
	if buf[0] != TypeA2 {
		return nil, protoErr("expected A2 type")
	}
	flags := buf[1]
	off := bodyHeaderLen
	count := int(buf[off])
	off++
	if count > MaxA2Pairs {
		return nil, parseErr("A2 exceeds pair ceiling")
	}
	if len(buf) != off+count*20 {
		return nil, parseErr("A2 length mismatch")
	}
	a := &A2{Last: flags&FlagLast != 0}
	for i := 0; i < count; i++ {
		var p A2Pair
		copy(p.P1[:], buf[off:off+10])
		off += 10
		copy(p.P2[:], buf[off:off+10])
		off += 10
		a.Pairs = append(a.Pairs, p)
	}
	return a, nil
}
