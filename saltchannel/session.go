package saltchannel

// Role identifies which side of the handshake a Session plays.
type Role int

const (
	// RoleHost receives M1, sends M2 and M3, receives M4.
	RoleHost Role = iota + 1
	// RoleClient sends M1, receives M2 and M3, sends M4.
	RoleClient
)

// State is the session's position in the handshake/established/closed
// lifecycle.
type State int

const (
	StateInit State = iota
	// StateA1Wait is the host-only pre-handshake state: waiting to see
	// whether the first inbound message is an A1 probe or an M1.
	StateA1Wait
	StateHandshaking
	StateEstablished
	StateClosed
	StateError
)

// Clock supplies a monotonic millisecond counter. It is optional: a
// Session with no Clock transmits zero timestamps. Whether the peer's
// timestamps are checked depends on Config.TimeViolationThresholdMs, not
// on Clock.
type Clock interface {
	NowMillis() uint32
}

// Config configures a Session at Init time. Buffer, AppMax and Crypto are
// mandatory; everything else has a workable default.
type Config struct {
	// Buffer is the single working buffer the session uses for receive
	// assembly and for staging, sealing and opening frames. Plaintext is
	// staged in a region of its own and is not encrypted in place, and the
	// M1/M2 transcript is kept in the Session rather than in Buffer. The
	// caller owns it and it must outlive the session. See BufferSize for
	// the minimum width a given AppMax requires.
	Buffer []byte
	// AppMax is the application payload capacity of one App or MultiApp
	// frame. For a MultiApp batch it bounds all sub-messages together, each
	// counted with its 2-byte length prefix; it is not a per-sub-message
	// limit.
	AppMax int
	// Crypto supplies the DH/Sign/AEAD/Hash/Rand primitives. Zero value is
	// invalid; use DefaultCrypto() for the reference implementation.
	Crypto Crypto
	// Clock is optional; see the Clock doc comment.
	Clock Clock
	// ExpectedPeerKey, if set on a client, pins the host's long-term
	// signing key: the client sends it in M1 and refuses to complete the
	// handshake if the host's M3 key differs. A host session does not use
	// this field; it compares any PeerSigKey carried in M1 with its own
	// signing key and answers a mismatch with a NoSuchServer M2.
	ExpectedPeerKey *[SigPublicSize]byte
	// TimeViolationThresholdMs bounds how far a peer's timestamp may
	// regress from the highest non-zero timestamp seen so far before the
	// session fails with ErrTimeViolation. Zero disables the check
	// entirely (not to be confused with a single message carrying a zero
	// timestamp, which only disables the check for that one message; see
	// DESIGN.md's Open Question decisions).
	TimeViolationThresholdMs uint32
	// MaxMultiAppCount bounds how many sub-messages a MultiApp decode will
	// index (see DESIGN.md's Open Question decisions). Zero selects the default, 127.
	MaxMultiAppCount int
	// Protocols is the static (protocol, profile) list a host advertises
	// in A2. Unused on the client side.
	Protocols []A2Pair
}

// minHandshakeBuf is the smallest buffer width that can hold an M1+M2
// transcript plus M3/M4 scratch.
const minHandshakeBuf = 256

// innerHeaderOverhead is the worst-case width of the plaintext header that
// precedes a payload inside an App/MultiApp frame: MultiApp's type(1) +
// flags(1) + timestamp(4) + count(2).
const innerHeaderOverhead = bodyHeaderLen + 4 + 2

// BufferSize returns the minimum Config.Buffer width for a given AppMax:
// the larger of minHandshakeBuf and FrameHeaderLen + ciphertext region +
// plaintext region. AppMax is the total payload capacity of one App or
// MultiApp frame (for a MultiApp batch, all sub-messages together with
// their 2-byte length prefixes). Because plaintext is not encrypted in
// place, both regions are sized off that capacity, so above the handshake
// floor the result is a little more than twice AppMax.
func BufferSize(appMax int) int {
	plaintextRegion := innerHeaderOverhead + appMax
	ciphertextRegion := bodyHeaderLen + innerHeaderOverhead + appMax + AEADOverhead
	appNeed := FrameHeaderLen + ciphertextRegion + plaintextRegion
	if appNeed < minHandshakeBuf {
		return minHandshakeBuf
	}
	return appNeed
}

// Session is one Salt Channel v2 peer-to-peer channel.
type Session struct {
	role  Role
	state State

	cfg Config

	sigPub [SigPublicSize]byte
	sigSec [SigPrivateSize]byte

	ephPub    [DHKeySize]byte
	ephSec    [DHKeySize]byte
	peerEph   [DHKeySize]byte

	peerSigPub    [SigPublicSize]byte
	peerSigPubSet bool

	sessionKey    [DHKeySize]byte
	sessionKeySet bool

	readNonce  nonce
	writeNonce nonce

	// m1Body/m2Body hold the exact bytes that were sent/received for M1
	// and M2 (type+flags+payload, no frame size prefix) until the
	// transcript hash has been computed into lastTranscriptHash; they are
	// zeroed soon after (client: on receiving M2; host: once M3 has been
	// sent). They are fixed-size scratch rather than a slice
	// into cfg.Buffer: M1/M2 are small and handshake-only, so
	// the "single buffer" requirement is enforced where it actually
	// matters — the high-volume App/MultiApp path below.
	m1Body    [minHandshakeBuf]byte
	m1Len     int
	m2Body    [minHandshakeBuf]byte
	m2Len     int

	hsStep             hsStep
	discStep           discStep
	lastTranscriptHash [HashSize]byte

	// hsWritePrepared/hsWriteBodyLen guard the one-shot encode/derive/seal
	// work in hsHostWriteM3 and hsClientWriteM4: that work must run exactly
	// once per message, not on every resumed poll, since deriveSessionKey
	// destroys the ephemeral secret and sealInner advances the write nonce.
	hsWritePrepared bool
	hsWriteBodyLen  int

	t0         uint32
	haveClock  bool
	lastPeerTS uint32
	sawPeerTS  bool

	lastFlagSent bool
	lastFlagSeen bool

	// plainOff/plainCap delimit the plaintext-staging region of cfg.Buffer
	// that Write uses to assemble an App/MultiApp frame before sealing it
	// into the ciphertext region at the front of cfg.Buffer (see
	// BufferSize). appWritePending/appWriteBodyLen track an in-flight
	// Write across ErrPending retries.
	plainOff  int
	plainCap  int
	appWritePending bool
	appWriteBodyLen int

	rp readPump
	wp writePump

	err *Error

	// a2Result holds the outcome of a client's pre-handshake A1/A2
	// exchange, populated by RequestA1.
	a2Result *A2

	// lastA1 holds the most recent A1 probe a host-role session decoded
	// during Handshake's pre-handshake detour.
	lastA1 *A1
	// pendingA2Len is the encoded length of the A2 reply staged in
	// cfg.Buffer, waiting for hsHostWriteA2 to finish streaming it out.
	pendingA2Len int
}

// LastA1 returns the A1 probe this host-role session most recently
// answered, if Handshake took the A1 detour (State() == StateClosed with a
// nil Handshake error, after having been in StateA1Wait).
func (s *Session) LastA1() *A1 { return s.lastA1 }

// Init creates a Session in the given role with the supplied long-term
// Ed25519 identity keypair and Config. It validates Config (buffer size,
// AppMax, Crypto presence) and returns a ConfigError if it is unusable.
func Init(role Role, sigPub *[SigPublicSize]byte, sigSec *[SigPrivateSize]byte, cfg Config) (*Session, error) {
	if cfg.AppMax <= 0 {
		return nil, newError(CodeConfigError, "AppMax must be positive", nil)
	}
	if len(cfg.Buffer) < BufferSize(cfg.AppMax) {
		return nil, newError(CodeConfigError, "buffer smaller than BufferSize(AppMax)", nil)
	}
	if cfg.Crypto.DH == nil || cfg.Crypto.Sign == nil || cfg.Crypto.AEAD == nil ||
		cfg.Crypto.Hash == nil || cfg.Crypto.Rand == nil {
		return nil, newError(CodeConfigError, "Crypto is incomplete", nil)
	}
	if cfg.MaxMultiAppCount == 0 {
		cfg.MaxMultiAppCount = MaxA2Pairs
	}

	s := &Session{
		role:  role,
		state: StateInit,
		cfg:   cfg,
	}
	copy(s.sigPub[:], sigPub[:])
	copy(s.sigSec[:], sigSec[:])

	ciphertextRegion := bodyHeaderLen + innerHeaderOverhead + cfg.AppMax + AEADOverhead
	s.plainOff = FrameHeaderLen + ciphertextRegion
	s.plainCap = innerHeaderOverhead + cfg.AppMax

	if role == RoleHost {
		s.state = StateA1Wait
	}
	return s, nil
}

// plainRegion returns the plaintext-staging slice of cfg.Buffer that Write
// assembles an outgoing frame into before sealing, and that Read decrypts
// an incoming frame into.
func (s *Session) plainRegion() []byte {
	return s.cfg.Buffer[s.plainOff : s.plainOff+s.plainCap]
}

// State reports the session's current lifecycle state.
func (s *Session) State() State { return s.state }

// Role reports which side of the handshake this session plays.
func (s *Session) Role() Role { return s.role }

// PeerSigningKey returns the authenticated peer's long-term signing key,
// once known (after the handshake completes).
func (s *Session) PeerSigningKey() (key [SigPublicSize]byte, ok bool) {
	return s.peerSigPub, s.peerSigPubSet
}

// fail transitions the session to StateError, zeroizes all secret
// material, and records err as the sticky terminal error for future calls.
func (s *Session) fail(err *Error) *Error {
	s.state = StateError
	s.err = err
	zero(s.ephSec[:], 0)
	zero(s.sessionKey[:], 0)
	zero(s.sigSec[:], 0)
	zero(s.m1Body[:], 0)
	zero(s.m2Body[:], 0)
	s.sessionKeySet = false
	return err
}

// checkUsable returns the sticky terminal error if the session is already
// in StateError or StateClosed, nil otherwise.
func (s *Session) checkUsable() *Error {
	switch s.state {
	case StateError:
		if s.err != nil {
			return s.err
		}
		return newError(CodeProtocolError, "session is in an error state", nil)
	case StateClosed:
		return ErrSessionClosed
	}
	return nil
}

// Teardown zeroizes all cryptographic material and marks the session
// closed. The caller must not use the session afterwards. This is the
// only way to release a session; there is no rekeying and no recovery
// from a terminal error.
func (s *Session) Teardown() {
	zero(s.ephSec[:], 0)
	zero(s.ephPub[:], 0)
	zero(s.sessionKey[:], 0)
	zero(s.sigSec[:], 0)
	zero(s.m1Body[:], 0)
	zero(s.m2Body[:], 0)
	s.sessionKeySet = false
	s.state = StateClosed
}
