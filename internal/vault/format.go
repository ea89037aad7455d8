package vault

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/PyPartners/MindVault/internal/crypto"
)

// On-disk vault layout, all fields fixed length, big-endian:
//
//	[magic "MVLT"][version u8][salt 32][argon time u32][argon memory u32]
//	[argon threads u8][nonce 12][ciphertext||tag]
//
// The header bytes double as AEAD associated data, so tampering with the
// cleartext header fails authentication of the payload.
const (
	Magic   = "MVLT"
	Version = 0x01
)

const (
	headerSize  = len(Magic) + 1 + crypto.SaltSize + 4 + 4 + 1
	blobMinSize = headerSize + crypto.NonceSize + crypto.TagSize
)

var (
	// ErrCorrupt reports a file that is not a vault blob at all.
	ErrCorrupt = errors.New("vault: corrupt vault file")
	// ErrVersionMismatch reports a vault blob written by a format revision
	// this build does not understand.
	ErrVersionMismatch = errors.New("vault: unsupported vault format version")
)

// Header is the unencrypted prefix of every vault file: the format version
// and the KDF inputs needed to replay key derivation on unlock. It is
// written once at vault creation and never modified afterwards; master
// secret rotation writes a whole new header under a fresh salt.
type Header struct {
	Version byte
	Salt    []byte
	Time    uint32
	Memory  uint32
	Threads uint8
}

// NewHeader builds a current-version header from KDF cost parameters.
func NewHeader(p crypto.KDFParams) Header {
	return Header{
		Version: Version,
		Salt:    p.Salt,
		Time:    p.Time,
		Memory:  p.Memory,
		Threads: p.Threads,
	}
}

// KDF reconstructs the derivation parameters this vault was created under.
func (h Header) KDF() crypto.KDFParams {
	return crypto.KDFParams{Time: h.Time, Memory: h.Memory, Threads: h.Threads, Salt: h.Salt}
}

// Encode renders the header in its fixed binary layout.
func (h Header) Encode() []byte {
	if len(h.Salt) != crypto.SaltSize {
		panic("vault: header salt has wrong length")
	}
	buf := bytes.NewBuffer(make([]byte, 0, headerSize))
	buf.WriteString(Magic)
	buf.WriteByte(h.Version)
	buf.Write(h.Salt)
	_ = binary.Write(buf, binary.BigEndian, h.Time)
	_ = binary.Write(buf, binary.BigEndian, h.Memory)
	buf.WriteByte(h.Threads)
	return buf.Bytes()
}

// DecodeHeader parses the header prefix of a vault file without touching the
// ciphertext. Backup import uses it to sanity-check a bundle before the live
// vault is replaced.
func DecodeHeader(raw []byte) (Header, error) {
	var h Header
	if len(raw) < headerSize {
		return h, ErrCorrupt
	}
	if string(raw[:len(Magic)]) != Magic {
		return h, ErrCorrupt
	}
	off := len(Magic)
	h.Version = raw[off]
	if h.Version != Version {
		return Header{}, ErrVersionMismatch
	}
	off++
	h.Salt = append([]byte(nil), raw[off:off+crypto.SaltSize]...)
	off += crypto.SaltSize
	h.Time = binary.BigEndian.Uint32(raw[off:])
	off += 4
	h.Memory = binary.BigEndian.Uint32(raw[off:])
	off += 4
	h.Threads = raw[off]
	if h.Time == 0 || h.Memory == 0 || h.Threads == 0 {
		return Header{}, ErrCorrupt
	}
	return h, nil
}

// EncodeBlob assembles a complete vault file image.
func EncodeBlob(h Header, nonce, ciphertext []byte) []byte {
	head := h.Encode()
	out := make([]byte, 0, len(head)+len(nonce)+len(ciphertext))
	out = append(out, head...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out
}

// DecodeBlob splits a vault file image into header, nonce and ciphertext.
func DecodeBlob(raw []byte) (Header, []byte, []byte, error) {
	if len(raw) < blobMinSize {
		return Header{}, nil, nil, ErrCorrupt
	}
	h, err := DecodeHeader(raw)
	if err != nil {
		return Header{}, nil, nil, err
	}
	nonce := raw[headerSize : headerSize+crypto.NonceSize]
	ct := raw[headerSize+crypto.NonceSize:]
	return h, nonce, ct, nil
}
