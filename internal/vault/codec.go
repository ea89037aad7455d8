package vault

import (
	"fmt"

	"github.com/PyPartners/MindVault/internal/crypto"
)

// Seal serializes the payload and encrypts it under key, returning the
// complete vault file image. A fresh nonce is drawn on every call; the
// encoded header is bound in as associated data.
func Seal(key []byte, h Header, p *Plain) ([]byte, error) {
	pt, err := p.Marshal()
	if err != nil {
		return nil, fmt.Errorf("vault: encode payload: %w", err)
	}
	defer crypto.Zero(pt)

	nonce, ct, err := crypto.Seal(key, pt, h.Encode())
	if err != nil {
		return nil, fmt.Errorf("vault: seal payload: %w", err)
	}
	return EncodeBlob(h, nonce, ct), nil
}

// Open decrypts a vault file image with an already-derived key. The key must
// have been derived from the cost parameters in the blob's own header.
// Verification failures of any kind surface as crypto.ErrAuthFailed.
func Open(key, raw []byte) (Header, *Plain, error) {
	h, nonce, ct, err := DecodeBlob(raw)
	if err != nil {
		return Header{}, nil, err
	}
	pt, err := crypto.Open(key, nonce, ct, h.Encode())
	if err != nil {
		return Header{}, nil, err
	}
	defer crypto.Zero(pt)

	p, err := UnmarshalPlain(pt)
	if err != nil {
		// Payload authenticated but does not parse: treat as corruption.
		return Header{}, nil, ErrCorrupt
	}
	return h, p, nil
}
