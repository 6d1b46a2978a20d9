package saltchannel

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"
)

// Sizes of the key material the engine shuttles around. Named here rather
// than inlined at each call site.
const (
	// DHKeySize is the width of an X25519 public or secret key.
	DHKeySize = 32
	// SigPublicSize is the width of an Ed25519 public key.
	SigPublicSize = ed25519.PublicKeySize
	// SigPrivateSize is the width of an Ed25519 private key.
	SigPrivateSize = ed25519.PrivateKeySize
	// SignatureSize is the width of an Ed25519 signature.
	SignatureSize = ed25519.SignatureSize
	// HashSize is the width of a SHA-512 digest.
	HashSize = sha512.Size
	// AEADOverhead is the number of bytes an AEAD seal adds to its input
	// (the Poly1305 tag, for the NaCl secretbox construction).
	AEADOverhead = secretbox.Overhead
)

// DH is the Diffie-Hellman half of the Crypto interface (C1): ephemeral
// X25519 keypair generation and shared-secret derivation. Out of scope per
// Key generation and derivation are never implemented directly here —
// this package only ever calls through this interface.
type DH interface {
	// GenerateKeypair fills pub and sec with a fresh X25519 keypair.
	GenerateKeypair(pub, sec *[DHKeySize]byte) error
	// SharedKey derives the shared secret between our secret key and the
	// peer's public key (an X25519 scalar multiplication).
	SharedKey(shared *[DHKeySize]byte, peerPub, ourSec *[DHKeySize]byte) error
}

// Sign is the signature half of the Crypto interface: Ed25519-style
// keypair generation, signing, and detached verification.
type Sign interface {
	GenerateKeypair(pub *[SigPublicSize]byte, sec *[SigPrivateSize]byte) error
	Sign(sig *[SignatureSize]byte, msg []byte, sec *[SigPrivateSize]byte)
	Verify(sig *[SignatureSize]byte, msg []byte, pub *[SigPublicSize]byte) bool
}

// AEAD is the symmetric-encryption half of the Crypto interface:
// XSalsa20-Poly1305 (the NaCl secretbox construction) with an explicit
// 24-byte nonce, driven by the monotonic counters in nonce.go rather than a
// random one.
type AEAD interface {
	// Seal appends the sealed form of plaintext (ciphertext with its
	// authentication tag) to dst and returns the extended slice. dst and
	// plaintext may overlap as io-buffer regions but Seal never mutates
	// plaintext itself.
	Seal(dst []byte, nonce *[nonceSize]byte, plaintext []byte, key *[DHKeySize]byte) []byte
	// Open authenticates and decrypts ciphertext, appending the plaintext
	// to dst. It reports false if authentication failed; dst is unchanged
	// in that case.
	Open(dst []byte, nonce *[nonceSize]byte, ciphertext []byte, key *[DHKeySize]byte) ([]byte, bool)
}

// Hash is the hashing half of the Crypto interface: SHA-512 over one or
// more concatenated inputs, plus a streaming form for when the caller
// would rather not hold the whole transcript in memory at once.
type Hash interface {
	Sum512(out *[HashSize]byte, parts ...[]byte)
	NewStream() HashStream
}

// HashStream is the incremental form of Hash.
type HashStream interface {
	io.Writer
	Sum(out *[HashSize]byte)
}

// Rand is the randomness half of the Crypto interface.
type Rand interface {
	io.Reader
}

// Crypto bundles the five primitive interfaces the engine needs. A caller
// assembling a Config may supply any combination of custom backends;
// DefaultCrypto supplies all five from golang.org/x/crypto and the
// standard library.
type Crypto struct {
	DH   DH
	Sign Sign
	AEAD AEAD
	Hash Hash
	Rand Rand
}

// DefaultCrypto returns the reference Crypto implementation: X25519 via
// golang.org/x/crypto/nacl/box, XSalsa20-Poly1305 via
// golang.org/x/crypto/nacl/secretbox, Ed25519 and SHA-512 via the standard
// library, and crypto/rand as the randomness source. This is the same
// primitive family libschannel and its Go port used.
func DefaultCrypto() Crypto {
	return Crypto{
		DH:   naclDH{},
		Sign: ed25519Sign{},
		AEAD: naclSecretbox{},
		Hash: sha512Hash{},
		Rand: rand.Reader,
	}
}

type naclDH struct{}

func (naclDH) GenerateKeypair(pub, sec *[DHKeySize]byte) error {
	p, s, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	copy(pub[:], p[:])
	copy(sec[:], s[:])
	zero(s[:], 0)
	return nil
}

func (naclDH) SharedKey(shared, peerPub, ourSec *[DHKeySize]byte) error {
	box.Precompute(shared, peerPub, ourSec)
	return nil
}

type ed25519Sign struct{}

func (ed25519Sign) GenerateKeypair(pub *[SigPublicSize]byte, sec *[SigPrivateSize]byte) error {
	p, s, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	copy(pub[:], p)
	copy(sec[:], s)
	return nil
}

func (ed25519Sign) Sign(sig *[SignatureSize]byte, msg []byte, sec *[SigPrivateSize]byte) {
	s := ed25519.Sign(sec[:], msg)
	copy(sig[:], s)
}

func (ed25519Sign) Verify(sig *[SignatureSize]byte, msg []byte, pub *[SigPublicSize]byte) bool {
	return ed25519.Verify(pub[:], msg, sig[:])
}

type naclSecretbox struct{}

func (naclSecretbox) Seal(dst []byte, n *[nonceSize]byte, plaintext []byte, key *[DHKeySize]byte) []byte {
	return secretbox.Seal(dst, plaintext, n, key)
}

func (naclSecretbox) Open(dst []byte, n *[nonceSize]byte, ciphertext []byte, key *[DHKeySize]byte) ([]byte, bool) {
	return secretbox.Open(dst, ciphertext, n, key)
}

type sha512Hash struct{}

func (sha512Hash) Sum512(out *[HashSize]byte, parts ...[]byte) {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p) //nolint:errcheck // hash.Hash.Write never errors
	}
	sum := h.Sum(nil)
	copy(out[:], sum)
}

func (sha512Hash) NewStream() HashStream {
	return &sha512Stream{h: sha512.New()}
}

type sha512Stream struct {
	h interface {
		io.Writer
		Sum(b []byte) []byte
	}
}

func (s *sha512Stream) Write(p []byte) (int, error) { return s.h.Write(p) }

func (s *sha512Stream) Sum(out *[HashSize]byte) {
	sum := s.h.Sum(nil)
	copy(out[:], sum)
}
