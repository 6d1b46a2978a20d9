package saltchannel

// hsStep tracks exactly where a Handshake call sequence is within the
// host or client message sequence. Handshake is called
// repeatedly (possibly returning ErrPending many times per step) until it
// reaches a done or terminal step.
type hsStep int

const (
	hsNotStarted hsStep = iota

	hsHostReadM1
	hsHostWriteA2
	hsHostWriteM2Reject
	hsHostWriteM2
	hsHostWriteM3
	hsHostReadM4

	hsClientWriteM1
	hsClientReadM2
	hsClientReadM3
	hsClientWriteM4

	hsDone
)

// hsScratchHolder is plaintext staging space for the M3/M4 body before it is
// sealed into cfg.Buffer; kept separate from cfg.Buffer (see session.go's
// m1Body/m2Body comment) because it is small, fixed, and handshake-only.
type hsScratchHolder struct {
	buf [minHandshakeBuf]byte
}

// ephPubPeer returns a slice over the peer-ephemeral-key scratch field, for
// copying a freshly-decoded peer ephemeral key into.
func (s *Session) ephPubPeer() []byte { return s.peerEph[:] }

// ephPubPeerPtr returns a pointer to the peer-ephemeral-key scratch field.
func (s *Session) ephPubPeerPtr() *[DHKeySize]byte { return &s.peerEph }

// Handshake drives the session's handshake state machine forward. Call it
// repeatedly until it returns (true, nil) or a non-ErrPending error. After
// (true, nil) the session is StateEstablished, except on the host side when
// the first frame was an A1 probe: Handshake then answers it with A2 and
// leaves the session in StateClosed (see LastA1). A non-ErrPending error
// leaves the session in StateError.
func (s *Session) Handshake(r Reader, w Writer) (bool, error) {
	if err := s.checkUsable(); err != nil {
		return false, err
	}

	if s.hsStep == hsNotStarted {
		if err := s.beginHandshake(); err != nil {
			return false, s.fail(err)
		}
	}

	if s.role == RoleHost {
		return s.hostHandshake(r, w)
	}
	return s.clientHandshake(r, w)
}

func (s *Session) beginHandshake() *Error {
	if err := s.cfg.Crypto.DH.GenerateKeypair(&s.ephPub, &s.ephSec); err != nil {
		return newError(CodeCryptoError, "generating ephemeral keypair", err)
	}
	if s.cfg.Clock != nil {
		s.t0 = s.cfg.Clock.NowMillis()
		s.haveClock = true
	}
	s.state = StateHandshaking
	if s.role == RoleHost {
		s.hsStep = hsHostReadM1
	} else {
		s.hsStep = hsClientWriteM1
	}
	return nil
}

func (s *Session) transcriptHash() [HashSize]byte {
	var h [HashSize]byte
	s.cfg.Crypto.Hash.Sum512(&h, s.m1Body[:s.m1Len], s.m2Body[:s.m2Len])
	return h
}

func (s *Session) deriveSessionKey(peerEph *[DHKeySize]byte) *Error {
	if err := s.cfg.Crypto.DH.SharedKey(&s.sessionKey, peerEph, &s.ephSec); err != nil {
		return newError(CodeCryptoError, "deriving session key", err)
	}
	s.sessionKeySet = true
	zero(s.ephSec[:], 0)
	if s.role == RoleHost {
		s.writeNonce = newNonce(2)
		s.readNonce = newNonce(1)
	} else {
		s.writeNonce = newNonce(1)
		s.readNonce = newNonce(2)
	}
	return nil
}

// sealInner seals an AEAD plaintext (already written at the front of
// plain) using the write nonce, placing the ciphertext at out (which must
// have len(plain)+AEADOverhead capacity) and returns the ciphertext.
func (s *Session) sealInner(out []byte, plain []byte) []byte {
	var n [nonceSize]byte
	nonceBytes(&n, s.writeNonce.next())
	return s.cfg.Crypto.AEAD.Seal(out[:0], &n, plain, &s.sessionKey)
}

// openInner opens an AEAD ciphertext using the read nonce.
func (s *Session) openInner(out []byte, ciphertext []byte) ([]byte, bool) {
	var n [nonceSize]byte
	nonceBytes(&n, s.readNonce.next())
	return s.cfg.Crypto.AEAD.Open(out[:0], &n, ciphertext, &s.sessionKey)
}

// writeFrame writes the size prefix for a frame body (type+flags+body
// already encoded at cfg.Buffer[FrameHeaderLen:]) into cfg.Buffer[0:] and
// drives the write pump.
func (s *Session) writeFrame(w Writer, bodyLen int) (bool, *Error) {
	PutFrameSize(s.cfg.Buffer, bodyLen)
	frame := s.cfg.Buffer[:FrameHeaderLen+bodyLen]
	err := s.wp.poll(w, frame)
	if err == nil {
		return true, nil
	}
	if err == ErrPending {
		return false, nil
	}
	return false, err.(*Error)
}

// readFrame drives the read pump for one whole body into
// cfg.Buffer[FrameHeaderLen:] and returns it once complete.
func (s *Session) readFrame(r Reader) ([]byte, bool, *Error) {
	body, err := s.rp.poll(r, s.cfg.Buffer[FrameHeaderLen:])
	if err == nil {
		return body, true, nil
	}
	if err == ErrPending {
		return nil, false, nil
	}
	return nil, false, err.(*Error)
}

func (s *Session) hostHandshake(r Reader, w Writer) (bool, error) {
	for {
		switch s.hsStep {
		case hsHostReadM1:
			body, done, err := s.readFrame(r)
			if err != nil {
				return false, s.fail(err)
			}
			if !done {
				return false, ErrPending
			}

			if len(body) > 0 && body[0] == TypeA1 {
				a1, derr := DecodeA1(body)
				if derr != nil {
					return false, s.fail(derr.(*Error))
				}
				s.lastA1 = a1
				n, eerr := EncodeA2(s.cfg.Buffer[FrameHeaderLen:], &A2{Last: true, Pairs: s.cfg.Protocols})
				if eerr != nil {
					return false, s.fail(eerr.(*Error))
				}
				s.pendingA2Len = n
				s.hsStep = hsHostWriteA2
				continue
			}

			m1, derr := DecodeM1(body)
			if derr != nil {
				return false, s.fail(derr.(*Error))
			}
			s.m1Len = copy(s.m1Body[:], body)

			if m1.HasPeerSigKey && m1.PeerSigKey != s.sigPub {
				s.hsStep = hsHostWriteM2Reject
				continue
			}

			copy(s.ephPubPeer(), m1.ClientEphemeral[:])
			s.hsStep = hsHostWriteM2

		case hsHostWriteA2:
			done, werr := s.writeFrame(w, s.pendingA2Len)
			if werr != nil {
				return false, s.fail(werr)
			}
			if !done {
				return false, ErrPending
			}
			s.state = StateClosed
			s.hsStep = hsDone
			return true, nil

		case hsHostWriteM2Reject:
			var m2 M2
			m2.NoSuchServer = true
			n, eerr := EncodeM2(s.cfg.Buffer[FrameHeaderLen:], &m2)
			if eerr != nil {
				return false, s.fail(eerr.(*Error))
			}
			s.m2Len = copy(s.m2Body[:], s.cfg.Buffer[FrameHeaderLen:FrameHeaderLen+n])
			done, werr := s.writeFrame(w, n)
			if werr != nil {
				return false, s.fail(werr)
			}
			if !done {
				return false, ErrPending
			}
			return false, s.fail(newError(CodeNoSuchServer, "rejected pinned peer key", nil))

		case hsHostWriteM2:
			var m2 M2
			m2.HostEphemeral = s.ephPub
			n, eerr := EncodeM2(s.cfg.Buffer[FrameHeaderLen:], &m2)
			if eerr != nil {
				return false, s.fail(eerr.(*Error))
			}
			s.m2Len = copy(s.m2Body[:], s.cfg.Buffer[FrameHeaderLen:FrameHeaderLen+n])
			done, werr := s.writeFrame(w, n)
			if werr != nil {
				return false, s.fail(werr)
			}
			if !done {
				return false, ErrPending
			}
			s.hsStep = hsHostWriteM3

		case hsHostWriteM3:
			if !s.hsWritePrepared {
				h := s.transcriptHash()
				s.lastTranscriptHash = h
				if derr := s.deriveSessionKey(s.ephPubPeerPtr()); derr != nil {
					return false, s.fail(derr)
				}

				var scratch hsScratchHolder
				var sig [SignatureSize]byte
				var transcriptIn [8 + HashSize]byte
				s.cfg.Crypto.Sign.Sign(&sig, sigTranscript(transcriptIn[:], sigLabelHost, &h), &s.sigSec)

				m3 := M3Inner{HostSigPub: s.sigPub, Signature: sig}
				plainLen, eerr := EncodeM3Inner(scratch.buf[:], &m3)
				if eerr != nil {
					return false, s.fail(eerr.(*Error))
				}
				cipher := s.sealInner(s.cfg.Buffer[FrameHeaderLen+bodyHeaderLen:], scratch.buf[:plainLen])

				s.cfg.Buffer[FrameHeaderLen] = TypeEncrypted
				s.cfg.Buffer[FrameHeaderLen+1] = 0
				s.hsWriteBodyLen = bodyHeaderLen + len(cipher)
				s.hsWritePrepared = true
			}
			done, werr := s.writeFrame(w, s.hsWriteBodyLen)
			if werr != nil {
				return false, s.fail(werr)
			}
			if !done {
				return false, ErrPending
			}
			s.hsWritePrepared = false
			zero(s.m1Body[:], 0)
			zero(s.m2Body[:], 0)
			s.hsStep = hsHostReadM4

		case hsHostReadM4:
			body, done, err := s.readFrame(r)
			if err != nil {
				return false, s.fail(err)
			}
			if !done {
				return false, ErrPending
			}
			if len(body) < bodyHeaderLen || body[0] != TypeEncrypted {
				return false, s.fail(protoErr("expected encrypted M4"))
			}
			var scratch hsScratchHolder
			plain, ok := s.openInner(scratch.buf[:0], body[bodyHeaderLen:])
			if !ok {
				return false, s.fail(newError(CodeCryptoError, "opening M4", nil))
			}
			m4, derr := DecodeM4Inner(plain)
			if derr != nil {
				return false, s.fail(derr.(*Error))
			}
			h := s.lastTranscriptHash
			var transcriptIn [8 + HashSize]byte
			if !s.cfg.Crypto.Sign.Verify(&m4.Signature, sigTranscript(transcriptIn[:], sigLabelClient, &h), &m4.ClientSigPub) {
				return false, s.fail(newError(CodeCryptoError, "M4 signature verification failed", nil))
			}
			s.peerSigPub = m4.ClientSigPub
			s.peerSigPubSet = true
			s.state = StateEstablished
			s.hsStep = hsDone
			return true, nil
		}
	}
}

func (s *Session) clientHandshake(r Reader, w Writer) (bool, error) {
	for {
		switch s.hsStep {
		case hsClientWriteM1:
			var m1 M1
			m1.ClientEphemeral = s.ephPub
			if s.cfg.ExpectedPeerKey != nil {
				m1.PinningRequested = true
				m1.HasPeerSigKey = true
				m1.PeerSigKey = *s.cfg.ExpectedPeerKey
			}
			n, eerr := EncodeM1(s.cfg.Buffer[FrameHeaderLen:], &m1)
			if eerr != nil {
				return false, s.fail(eerr.(*Error))
			}
			s.m1Len = copy(s.m1Body[:], s.cfg.Buffer[FrameHeaderLen:FrameHeaderLen+n])
			done, werr := s.writeFrame(w, n)
			if werr != nil {
				return false, s.fail(werr)
			}
			if !done {
				return false, ErrPending
			}
			s.hsStep = hsClientReadM2

		case hsClientReadM2:
			body, done, err := s.readFrame(r)
			if err != nil {
				return false, s.fail(err)
			}
			if !done {
				return false, ErrPending
			}
			m2, derr := DecodeM2(body)
			if derr != nil {
				return false, s.fail(derr.(*Error))
			}
			if m2.NoSuchServer {
				return false, s.fail(newError(CodeNoSuchServer, "host rejected pinned key", nil))
			}
			s.m2Len = copy(s.m2Body[:], body)
			copy(s.ephPubPeer(), m2.HostEphemeral[:])
			if derr := s.deriveSessionKey(s.ephPubPeerPtr()); derr != nil {
				return false, s.fail(derr)
			}
			s.lastTranscriptHash = s.transcriptHash()
			zero(s.m1Body[:], 0)
			zero(s.m2Body[:], 0)
			s.hsStep = hsClientReadM3

		case hsClientReadM3:
			body, done, err := s.readFrame(r)
			if err != nil {
				return false, s.fail(err)
			}
			if !done {
				return false, ErrPending
			}
			if len(body) < bodyHeaderLen || body[0] != TypeEncrypted {
				return false, s.fail(protoErr("expected encrypted M3"))
			}
			var scratch hsScratchHolder
			plain, ok := s.openInner(scratch.buf[:0], body[bodyHeaderLen:])
			if !ok {
				return false, s.fail(newError(CodeCryptoError, "opening M3", nil))
			}
			m3, derr := DecodeM3Inner(plain)
			if derr != nil {
				return false, s.fail(derr.(*Error))
			}
			var transcriptIn [8 + HashSize]byte
			if !s.cfg.Crypto.Sign.Verify(&m3.Signature, sigTranscript(transcriptIn[:], sigLabelHost, &s.lastTranscriptHash), &m3.HostSigPub) {
				return false, s.fail(newError(CodeCryptoError, "M3 signature verification failed", nil))
			}
			if s.cfg.ExpectedPeerKey != nil && *s.cfg.ExpectedPeerKey != m3.HostSigPub {
				return false, s.fail(newError(CodeCryptoError, "host key did not match pinned expectation", nil))
			}
			s.peerSigPub = m3.HostSigPub
			s.peerSigPubSet = true
			s.hsStep = hsClientWriteM4

		case hsClientWriteM4:
			if !s.hsWritePrepared {
				var scratch hsScratchHolder
				var sig [SignatureSize]byte
				var transcriptIn [8 + HashSize]byte
				s.cfg.Crypto.Sign.Sign(&sig, sigTranscript(transcriptIn[:], sigLabelClient, &s.lastTranscriptHash), &s.sigSec)

				m4 := M4Inner{ClientSigPub: s.sigPub, Signature: sig}
				plainLen, eerr := EncodeM4Inner(scratch.buf[:], &m4)
				if eerr != nil {
					return false, s.fail(eerr.(*Error))
				}
				cipher := s.sealInner(s.cfg.Buffer[FrameHeaderLen+bodyHeaderLen:], scratch.buf[:plainLen])

				s.cfg.Buffer[FrameHeaderLen] = TypeEncrypted
				s.cfg.Buffer[FrameHeaderLen+1] = 0
				s.hsWriteBodyLen = bodyHeaderLen + len(cipher)
				s.hsWritePrepared = true
			}
			done, werr := s.writeFrame(w, s.hsWriteBodyLen)
			if werr != nil {
				return false, s.fail(werr)
			}
			if !done {
				return false, ErrPending
			}
			s.hsWritePrepared = false
			s.state = StateEstablished
			s.hsStep = hsDone
			return true, nil
		}
	}
}
