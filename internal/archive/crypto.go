package archive

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeySize   = 32
	NonceSize = 24 // XChaCha20-Poly1305
)

// wrappedLen is nonce (24) + sealed K_obj (32 + 16 tag).
const wrappedLen = NonceSize + KeySize + 16

// seal encrypts plaintext with a fresh per-object key, wraps that key
// with the master key, and returns nonce|wrapped|ciphertext.
func seal(master, plaintext []byte) ([]byte, error) {
	if len(master) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes", KeySize)
	}
	kObj := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, kObj); err != nil {
		return nil, err
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	wrapped, err := wrapKey(master, kObj)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(kObj)
	if err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, NonceSize+len(wrapped)+len(ct))
	out = append(out, nonce...)
	out = append(out, wrapped...)
	return append(out, ct...), nil
}

// unseal reverses seal.
func unseal(master, sealed []byte) ([]byte, error) {
	if len(master) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes", KeySize)
	}
	if len(sealed) < NonceSize+wrappedLen {
		return nil, fmt.Errorf("sealed object too short")
	}
	nonce := sealed[:NonceSize]
	wrapped := sealed[NonceSize : NonceSize+wrappedLen]
	ct := sealed[NonceSize+wrappedLen:]

	kObj, err := unwrapKey(master, wrapped)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(kObj)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt object: %w", err)
	}
	return pt, nil
}

// wrapKey wraps kObj with master. Returns nonce|wrapped.
func wrapKey(master, kObj []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(master)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return append(nonce, aead.Seal(nil, nonce, kObj, nil)...), nil
}

func unwrapKey(master, wrapped []byte) ([]byte, error) {
	if len(wrapped) != wrappedLen {
		return nil, fmt.Errorf("wrapped key must be %d bytes, got %d", wrappedLen, len(wrapped))
	}
	aead, err := chacha20poly1305.NewX(master)
	if err != nil {
		return nil, err
	}
	kObj, err := aead.Open(nil, wrapped[:NonceSize], wrapped[NonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap key: %w", err)
	}
	return kObj, nil
}
