package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

const (
	envelopeKeyLength   = 32 // AES-256
	envelopeNonceLength = 16
	envelopeTagLength   = 16
)

// ErrDecrypt reports that an envelope failed to open: the authentication tag
// did not verify or the stored value is not a well-formed envelope. Callers
// must treat the record as corrupted and surface the failure, never retry.
var ErrDecrypt = errors.New("cryptox: decryption failed")

// Envelope seals and opens opaque secret strings (TOTP seeds, recovery codes)
// with AES-256-GCM before they touch storage. The stored form is
// "ivHex:authTagHex:cipherHex" so it survives any text column.
//
// An Envelope constructed without a key operates in pass-through mode: values
// are stored as plaintext and every call logs at error level. The fallback is
// deliberately loud so a missing key never goes unnoticed.
type Envelope struct {
	aead cipher.AEAD
	log  *slog.Logger
}

// NewEnvelope builds an Envelope from a hex-encoded 32-byte key. An empty
// keyHex yields a pass-through Envelope.
func NewEnvelope(keyHex string, log *slog.Logger) (*Envelope, error) {
	if log == nil {
		log = slog.Default()
	}

	if keyHex == "" {
		log.Error("CRITICAL: encryption key not configured, secrets will be stored in plaintext")
		return &Envelope{log: log}, nil
	}

	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("cryptox: encryption key is not valid hex: %w", err)
	}
	if len(key) != envelopeKeyLength {
		return nil, fmt.Errorf("cryptox: encryption key must be %d bytes, got %d", envelopeKeyLength, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, envelopeNonceLength)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}

	return &Envelope{aead: aead, log: log}, nil
}

// Seal encrypts plaintext under a fresh random nonce. Nonces are never reused
// under the same key; each call draws a new one from crypto/rand.
func (e *Envelope) Seal(plaintext string) (string, error) {
	if e.aead == nil {
		e.log.Error("CRITICAL: sealing skipped, encryption key not configured, value stored in plaintext")
		return plaintext, nil
	}

	nonce := make([]byte, envelopeNonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("cryptox: generate nonce: %w", err)
	}

	// Seal returns ciphertext||tag, the tag occupying the final Overhead bytes.
	sealed := e.aead.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - envelopeTagLength
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ciphertext), nil
}

// Open decrypts an envelope produced by Seal. It returns ErrDecrypt when the
// envelope is malformed or the authentication tag does not verify.
func (e *Envelope) Open(envelope string) (string, error) {
	if e.aead == nil {
		e.log.Error("CRITICAL: opening skipped, encryption key not configured, returning stored value as-is")
		return envelope, nil
	}

	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected iv:authTag:ciphertext segments", ErrDecrypt)
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != envelopeNonceLength {
		return "", fmt.Errorf("%w: malformed nonce segment", ErrDecrypt)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != envelopeTagLength {
		return "", fmt.Errorf("%w: malformed tag segment", ErrDecrypt)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext segment", ErrDecrypt)
	}

	plaintext, err := e.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrDecrypt
	}

	return string(plaintext), nil
}
