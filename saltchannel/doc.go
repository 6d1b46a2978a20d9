// Package saltchannel implements the Salt Channel v2 protocol engine: a
// mutually-authenticated, forward-secret secure channel layered on top of an
// untrusted ordered byte stream.
//
// This package reworks the ideas behind libschannel
// (https://github.com/kisom/libschannel) and its Go port, go-schannel, into
// the Salt Channel v2 wire format. Like its ancestor, it authenticates peers
// with long-term Ed25519 identity keys and derives a forward-secret session
// key from an ephemeral X25519 exchange; unlike its ancestor, the engine
// never owns a socket and never blocks: it drives a caller-supplied
// non-blocking transport through an explicit, resumable state machine, and
// performs no allocation of its own on the hot path.
//
// A session is created with Init, specifying a Role (RoleHost or
// RoleClient), a long-term signing keypair, and a Config describing the
// working buffer, the application payload ceiling, and the Crypto backend.
// The caller then drives the handshake to completion with repeated calls to
// Session.Handshake, each of which either completes, returns ErrPending
// (the transport would have blocked; call again once it is ready), or
// returns a terminal *Error.
//
// Once established, Session.Write sends one or more application messages
// (a single message becomes an App frame; more than one becomes a MultiApp
// batch) and Session.Read receives the next frame, returning a cursor over
// its contained messages. Either side may mark its final message with
// LastFlag; once a side has sent it, further Write calls fail with
// ErrSessionClosed, and once a side has read it, further Read calls do.
//
// Before any handshake, a client may probe a host's supported protocols
// with RequestA1; a host answers with RespondA1 and then closes without ever
// entering the handshake state machine.
//
// The Diffie-Hellman, signature, AEAD and hash primitives are not
// implemented by this package — they are consumed through the Crypto
// interface family (DH, Sign, AEAD, Hash, Rand). DefaultCrypto wires these
// to golang.org/x/crypto's NaCl-compatible box/secretbox primitives and the
// standard library's Ed25519 and SHA-512, the same primitives the protocol
// was designed around.
package saltchannel
