package saltchannel

// discStep tracks RequestA1/RespondA1's own small resumable sequence,
// independent of hsStep (a session only ever runs one of the two).
type discStep int

const (
	discIdle discStep = iota
	discClientWriteA1
	discClientReadA2
	discHostWriteA2
	discDone
)

// RequestA1 sends an A1 probe and waits for the A2 response, for a
// client-role session that has not yet called Handshake. Seeing the A2
// reply ends the pre-session: on success the session is left in
// StateClosed and the caller should discard it (dial a fresh connection
// to actually run Handshake against a chosen protocol). Call repeatedly
// on ErrPending.
func RequestA1(s *Session, r Reader, w Writer, addr A1) (*A2, error) {
	if s.role != RoleClient {
		return nil, newError(CodeProtocolError, "RequestA1 is client-only", nil)
	}
	if err := s.checkUsable(); err != nil {
		return nil, err
	}

	if s.discStep == discIdle {
		n, eerr := EncodeA1(s.cfg.Buffer[FrameHeaderLen:], &addr)
		if eerr != nil {
			return nil, s.fail(eerr.(*Error))
		}
		s.pendingA2Len = n
		s.discStep = discClientWriteA1
	}

	if s.discStep == discClientWriteA1 {
		done, werr := s.writeFrame(w, s.pendingA2Len)
		if werr != nil {
			return nil, s.fail(werr)
		}
		if !done {
			return nil, ErrPending
		}
		s.discStep = discClientReadA2
	}

	body, done, rerr := s.readFrame(r)
	if rerr != nil {
		return nil, s.fail(rerr)
	}
	if !done {
		return nil, ErrPending
	}

	a2, derr := DecodeA2(body)
	if derr != nil {
		return nil, s.fail(derr.(*Error))
	}
	s.a2Result = a2
	s.state = StateClosed
	s.discStep = discDone
	return a2, nil
}

// RespondA1 answers a single A1 probe with the static Protocols list from
// Config and closes the session, for a host that only offers discovery
// and never runs the full handshake. (A host that might also receive M1
// on the same listening step should use Handshake instead — it already
// performs this exact detour when the first frame turns out to be A1; see
// Session.LastA1.) Call repeatedly on ErrPending.
func RespondA1(s *Session, r Reader, w Writer) (*A1, error) {
	if s.role != RoleHost {
		return nil, newError(CodeProtocolError, "RespondA1 is host-only", nil)
	}
	if err := s.checkUsable(); err != nil {
		return nil, err
	}

	if s.discStep == discIdle {
		body, done, rerr := s.readFrame(r)
		if rerr != nil {
			return nil, s.fail(rerr)
		}
		if !done {
			return nil, ErrPending
		}
		if len(body) == 0 || body[0] != TypeA1 {
			return nil, s.fail(protoErr("expected A1"))
		}
		a1, derr := DecodeA1(body)
		if derr != nil {
			return nil, s.fail(derr.(*Error))
		}
		s.lastA1 = a1

		n, eerr := EncodeA2(s.cfg.Buffer[FrameHeaderLen:], &A2{Last: true, Pairs: s.cfg.Protocols})
		if eerr != nil {
			return nil, s.fail(eerr.(*Error))
		}
		s.pendingA2Len = n
		s.discStep = discHostWriteA2
	}

	done, werr := s.writeFrame(w, s.pendingA2Len)
	if werr != nil {
		return nil, s.fail(werr)
	}
	if !done {
		return nil, ErrPending
	}
	s.state = StateClosed
	s.discStep = discDone
	return s.lastA1, nil
}
