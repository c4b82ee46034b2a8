package authwrap

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Wire constants for the WSMan message-encryption multipart container. A
// Provider that sets RequiresEncryption implements the actual signing and
// encryption; this package only gives it a shared, tested way to frame the
// result, since every mechanism (SPNEGO, Kerberos, CredSSP) uses the same
// envelope shape and differs only in the Content-Type token and the
// plaintext size limit per segment.
const (
	// Boundary is the literal multipart boundary WSMan uses for encrypted
	// bodies.
	Boundary = "Encrypted Boundary"

	// ContentTypeMultipartEncrypted is used when the ciphertext fits in one
	// segment.
	ContentTypeMultipartEncrypted = `multipart/encrypted;protocol="application/HTTP-SPNEGO-session-encrypted";boundary="Encrypted Boundary"`

	// ContentTypeMultipartXMultiEncrypted is used when the ciphertext must
	// be split across more than one segment (CredSSP, which caps plaintext
	// at 16KiB per segment).
	ContentTypeMultipartXMultiEncrypted = `multipart/x-multi-encrypted;protocol="application/HTTP-CredSSP-session-encrypted";boundary="Encrypted Boundary"`

	// CredSSPMaxSegmentSize is the largest plaintext chunk CredSSP will
	// encrypt in a single segment.
	CredSSPMaxSegmentSize = 16 * 1024
)

// EncryptionSchemeContentType returns the per-segment Content-Type header
// for the named scheme ("SPNEGO", "Kerberos", or "CredSSP").
func EncryptionSchemeContentType(scheme string) string {
	return fmt.Sprintf("application/HTTP-%s-session-encrypted", scheme)
}

// Segment is one encrypted chunk of a wrapped body: the signature/header
// bytes a Provider produced plus the ciphertext that follows it.
type Segment struct {
	Header     []byte
	Ciphertext []byte
}

// EncodeSegments frames segments into the multipart/encrypted (or
// x-multi-encrypted, when len(segments) > 1) container body, given the
// original plaintext Content-Type and length: a header part naming the scheme
// and the original content, then per segment a boundary line, an
// application/octet-stream Content-Type line, and directly after it the
// 4-byte little-endian header length, the header and the ciphertext.
// It performs no encryption: segments are assumed already encrypted by the
// caller's Provider.
func EncodeSegments(scheme, originalContentType string, originalLength int, segments []Segment) []byte {
	var buf bytes.Buffer
	schemeCT := EncryptionSchemeContentType(scheme)

	fmt.Fprintf(&buf, "--%s\r\n", Boundary)
	fmt.Fprintf(&buf, "Content-Type: %s\r\n", schemeCT)
	fmt.Fprintf(&buf, "OriginalContent: type=%s;Length=%d\r\n", originalContentType, originalLength)

	for _, seg := range segments {
		fmt.Fprintf(&buf, "--%s\r\n", Boundary)
		fmt.Fprintf(&buf, "Content-Type: application/octet-stream\r\n")

		var lenPrefix [4]byte
		binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(seg.Header)))
		buf.Write(lenPrefix[:])
		buf.Write(seg.Header)
		buf.Write(seg.Ciphertext)
	}
	fmt.Fprintf(&buf, "--%s--\r\n", Boundary)
	return buf.Bytes()
}

// DecodeSegments reverses EncodeSegments, returning the original
// Content-Type, declared plaintext length, and the raw segment bytes
// (header+ciphertext still joined, since the header length only the
// Provider's mechanism knows how to parse further than the 4-byte prefix
// this package frames).
func DecodeSegments(body []byte) (originalContentType string, originalLength int, segments [][]byte, err error) {
	parts := bytes.Split(body, []byte("--"+Boundary))
	if len(parts) < 3 {
		return "", 0, nil, fmt.Errorf("authwrap: malformed multipart-encrypted body (%d parts)", len(parts))
	}

	header := bytes.TrimSpace(parts[1])
	for _, line := range bytes.Split(header, []byte("\r\n")) {
		if bytes.HasPrefix(line, []byte("OriginalContent:")) {
			_, err := fmt.Sscanf(string(line), "OriginalContent: type=%s", &originalContentType)
			_ = err
			if idx := bytes.Index(line, []byte("Length=")); idx >= 0 {
				fmt.Sscanf(string(line[idx:]), "Length=%d", &originalLength)
			}
			if idx := bytes.Index([]byte(originalContentType), []byte(";Length")); idx >= 0 {
				originalContentType = originalContentType[:idx]
			}
		}
	}

	for _, p := range parts[2 : len(parts)-1] {
		p = bytes.TrimPrefix(p, []byte("\r\n"))
		idx := bytes.Index(p, []byte("\r\n"))
		if idx < 0 {
			continue
		}
		segments = append(segments, p[idx+2:])
	}
	return originalContentType, originalLength, segments, nil
}
