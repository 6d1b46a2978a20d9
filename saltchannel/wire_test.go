package saltchannel

import (
	"bytes"
	"testing"
)

func TestM1RoundTrip(t *testing.T) {
	var m1 M1
	m1.PinningRequested = true
	m1.TicketRequested = true
	for i := range m1.ClientEphemeral {
		m1.ClientEphemeral[i] = byte(i)
	}
	m1.HasPeerSigKey = true
	for i := range m1.PeerSigKey {
		m1.PeerSigKey[i] = byte(255 - i)
	}

	buf := make([]byte, 256)
	n, err := EncodeM1(buf, &m1)
	if err != nil {
		t.Fatalf("EncodeM1: %v", err)
	}

	got, err := DecodeM1(buf[:n])
	if err != nil {
		t.Fatalf("DecodeM1: %v", err)
	}
	if !got.PinningRequested || !got.TicketRequested || !got.HasPeerSigKey {
		t.Fatal("flags did not round-trip")
	}
	if got.ClientEphemeral != m1.ClientEphemeral {
		t.Fatal("client ephemeral did not round-trip")
	}
	if got.PeerSigKey != m1.PeerSigKey {
		t.Fatal("peer sig key did not round-trip")
	}
}

func TestM1NoPinning(t *testing.T) {
	var m1 M1
	buf := make([]byte, 256)
	n, err := EncodeM1(buf, &m1)
	if err != nil {
		t.Fatalf("EncodeM1: %v", err)
	}
	got, err := DecodeM1(buf[:n])
	if err != nil {
		t.Fatalf("DecodeM1: %v", err)
	}
	if got.HasPeerSigKey {
		t.Fatal("expected no peer sig key")
	}
}

func TestM2RoundTrip(t *testing.T) {
	var m2 M2
	m2.NoSuchServer = true
	m2.ResumeNotSupported = true
	for i := range m2.HostEphemeral {
		m2.HostEphemeral[i] = byte(i)
	}

	buf := make([]byte, 64)
	n, err := EncodeM2(buf, &m2)
	if err != nil {
		t.Fatalf("EncodeM2: %v", err)
	}
	got, err := DecodeM2(buf[:n])
	if err != nil {
		t.Fatalf("DecodeM2: %v", err)
	}
	if !got.NoSuchServer || !got.ResumeNotSupported {
		t.Fatal("flags did not round-trip")
	}
	if got.HostEphemeral != m2.HostEphemeral {
		t.Fatal("host ephemeral did not round-trip")
	}
}

func TestM3InnerRoundTrip(t *testing.T) {
	var m3 M3Inner
	for i := range m3.HostSigPub {
		m3.HostSigPub[i] = byte(i)
	}
	for i := range m3.Signature {
		m3.Signature[i] = byte(i * 2)
	}
	buf := make([]byte, 256)
	n, err := EncodeM3Inner(buf, &m3)
	if err != nil {
		t.Fatalf("EncodeM3Inner: %v", err)
	}
	got, err := DecodeM3Inner(buf[:n])
	if err != nil {
		t.Fatalf("DecodeM3Inner: %v", err)
	}
	if got.HostSigPub != m3.HostSigPub || got.Signature != m3.Signature {
		t.Fatal("M3 did not round-trip")
	}
}

func TestM4InnerRoundTrip(t *testing.T) {
	var m4 M4Inner
	for i := range m4.ClientSigPub {
		m4.ClientSigPub[i] = byte(i)
	}
	for i := range m4.Signature {
		m4.Signature[i] = byte(i * 3)
	}
	buf := make([]byte, 256)
	n, err := EncodeM4Inner(buf, &m4)
	if err != nil {
		t.Fatalf("EncodeM4Inner: %v", err)
	}
	got, err := DecodeM4Inner(buf[:n])
	if err != nil {
		t.Fatalf("DecodeM4Inner: %v", err)
	}
	if got.ClientSigPub != m4.ClientSigPub || got.Signature != m4.Signature {
		t.Fatal("M4 did not round-trip")
	}
}

func TestAppRoundTrip(t *testing.T) {
	payload := []byte("hello salt channel")
	buf := make([]byte, 128)
	n, err := EncodeApp(buf, true, 1234, payload)
	if err != nil {
		t.Fatalf("EncodeApp: %v", err)
	}
	av, err := DecodeApp(buf[:n])
	if err != nil {
		t.Fatalf("DecodeApp: %v", err)
	}
	if !av.Last {
		t.Fatal("expected Last flag")
	}
	if av.Timestamp != 1234 {
		t.Fatalf("timestamp: want 1234, have %d", av.Timestamp)
	}
	if !bytes.Equal(av.Payload, payload) {
		t.Fatal("payload did not round-trip")
	}
}

func TestMultiAppRoundTrip(t *testing.T) {
	msgs := [][]byte{[]byte("one"), []byte("two"), []byte("three")}
	buf := make([]byte, 256)

	off, err := EncodeMultiAppHeader(buf, false, 99, len(msgs), MaxA2Pairs)
	if err != nil {
		t.Fatalf("EncodeMultiAppHeader: %v", err)
	}
	for _, m := range msgs {
		off, err = AppendMultiAppPart(buf, off, m)
		if err != nil {
			t.Fatalf("AppendMultiAppPart: %v", err)
		}
	}

	mv, err := DecodeMultiApp(buf[:off], MaxA2Pairs)
	if err != nil {
		t.Fatalf("DecodeMultiApp: %v", err)
	}
	if mv.Last {
		t.Fatal("did not expect Last flag")
	}
	if mv.Timestamp != 99 {
		t.Fatalf("timestamp: want 99, have %d", mv.Timestamp)
	}
	if mv.Count() != len(msgs) {
		t.Fatalf("count: want %d, have %d", len(msgs), mv.Count())
	}
	for i, m := range msgs {
		if !bytes.Equal(mv.At(i), m) {
			t.Fatalf("sub-message %d did not round-trip", i)
		}
	}
}

func TestA1RoundTrip(t *testing.T) {
	a1 := A1{AddressType: 1, Address: []byte("192.0.2.1:2033")}
	buf := make([]byte, 64)
	n, err := EncodeA1(buf, &a1)
	if err != nil {
		t.Fatalf("EncodeA1: %v", err)
	}
	got, err := DecodeA1(buf[:n])
	if err != nil {
		t.Fatalf("DecodeA1: %v", err)
	}
	if got.AddressType != a1.AddressType {
		t.Fatal("address type did not round-trip")
	}
	if !bytes.Equal(got.Address, a1.Address) {
		t.Fatal("address did not round-trip")
	}
}

func TestA2RoundTrip(t *testing.T) {
	a2 := A2{Last: true, Pairs: []A2Pair{
		{P1: [10]byte{'S', 'C', 'v', '2'}, P2: [10]byte{}},
	}}
	buf := make([]byte, 64)
	n, err := EncodeA2(buf, &a2)
	if err != nil {
		t.Fatalf("EncodeA2: %v", err)
	}
	got, err := DecodeA2(buf[:n])
	if err != nil {
		t.Fatalf("DecodeA2: %v", err)
	}
	if !got.Last {
		t.Fatal("expected Last flag")
	}
	if len(got.Pairs) != 1 || got.Pairs[0] != a2.Pairs[0] {
		t.Fatal("pairs did not round-trip")
	}
}

func TestFrameSizeRoundTrip(t *testing.T) {
	buf := make([]byte, FrameHeaderLen)
	PutFrameSize(buf, 0xabcdef)
	if got := FrameSize(buf); got != 0xabcdef {
		t.Fatalf("FrameSize: want 0xabcdef, have %x", got)
	}
}
