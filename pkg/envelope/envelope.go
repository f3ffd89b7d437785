// Package envelope provides AEAD sealing of individual secrets using a
// key derived from a caller-supplied master passphrase.
//
// Every seal draws a fresh salt and nonce, so identical plaintexts under the
// same passphrase never produce identical ciphertexts. The derived key never
// leaves this package; callers only ever see an Envelope or a recovered
// plaintext.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/scrypt"
)

// Fixed KDF defaults per the envelope contract. Recorded verbatim on every
// envelope so parameters can be tuned later without breaking old files.
const (
	scryptN     = 1 << 15
	scryptR     = 8
	scryptP     = 1
	scryptDKLen = 32

	saltSize  = 16
	nonceSize = 12

	// Algorithm is the fixed AEAD identifier recorded on every envelope.
	Algorithm = "aes-256-gcm"
)

// ErrWrongKey means the passphrase does not decrypt the envelope's probe, or
// the GCM tag failed to authenticate on an envelope opened before the
// passphrase was confirmed correct (probeChecked false).
var ErrWrongKey = errors.New("envelope: wrong master key")

// ErrCorrupt means the passphrase was confirmed correct elsewhere but this
// particular envelope failed to decrypt — the ciphertext or its metadata is
// structurally damaged.
var ErrCorrupt = errors.New("envelope: corrupt ciphertext")

// KDFParams are the scrypt parameters used to derive the encryption key,
// recorded alongside the ciphertext so old envelopes remain openable even if
// future envelopes are sealed with different tuning.
type KDFParams struct {
	Salt  []byte `json:"salt"`
	N     int    `json:"n"`
	R     int    `json:"r"`
	P     int    `json:"p"`
	DKLen int    `json:"dkLen"`
}

// Envelope is the persisted ciphertext unit. All byte fields are base64 when
// this struct is marshalled to JSON (the default encoding/json behavior for
// []byte).
type Envelope struct {
	Algorithm  string    `json:"algorithm"`
	KDFParams  KDFParams `json:"kdfParams"`
	Nonce      []byte    `json:"nonce"`
	Ciphertext []byte    `json:"ciphertext"`
	Tag        []byte    `json:"tag"`
}

// Seal encrypts plaintext under a key derived from passphrase, using a fresh
// salt and nonce.
func Seal(passphrase, plaintext []byte) (*Envelope, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("envelope: generate salt: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("envelope: generate nonce: %w", err)
	}

	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return nil, fmt.Errorf("envelope: derive key: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	if len(sealed) < gcm.Overhead() {
		return nil, ErrCorrupt
	}
	ciphertext := sealed[:len(sealed)-gcm.Overhead()]
	tag := sealed[len(sealed)-gcm.Overhead():]

	return &Envelope{
		Algorithm: Algorithm,
		KDFParams: KDFParams{
			Salt:  salt,
			N:     scryptN,
			R:     scryptR,
			P:     scryptP,
			DKLen: scryptDKLen,
		},
		Nonce:      nonce,
		Ciphertext: ciphertext,
		Tag:        tag,
	}, nil
}

// Open decrypts an envelope under a key derived from passphrase.
//
// probeChecked indicates whether the passphrase has already been proven
// correct against the store's masterKeyCheck envelope in this call chain; if
// so, a decryption failure here means the envelope itself is damaged
// (ErrCorrupt) rather than the passphrase being wrong (ErrWrongKey).
func Open(passphrase []byte, env *Envelope, probeChecked bool) ([]byte, error) {
	if env == nil {
		return nil, ErrCorrupt
	}
	if env.Algorithm != Algorithm {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrCorrupt, env.Algorithm)
	}

	key, err := deriveKey(passphrase, env.KDFParams.Salt)
	if err != nil {
		return nil, fmt.Errorf("envelope: derive key: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	sealed := append(append([]byte{}, env.Ciphertext...), env.Tag...)
	plaintext, err := gcm.Open(nil, env.Nonce, sealed, nil)
	if err != nil {
		if probeChecked {
			return nil, ErrCorrupt
		}
		return nil, ErrWrongKey
	}
	return plaintext, nil
}

// VerifyProbe opens env and confirms it equals the expected probe plaintext.
// Used at store-open time to validate a passphrase without exposing any
// credential.
func VerifyProbe(passphrase []byte, env *Envelope, probe string) error {
	plaintext, err := Open(passphrase, env, false)
	if err != nil {
		return err
	}
	if string(plaintext) != probe {
		return ErrWrongKey
	}
	return nil
}

func deriveKey(passphrase, salt []byte) ([]byte, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("envelope: empty passphrase")
	}
	if len(salt) == 0 {
		return nil, errors.New("envelope: empty salt")
	}
	return scrypt.Key(passphrase, salt, scryptN, scryptR, scryptP, scryptDKLen)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("envelope: aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("envelope: gcm: %w", err)
	}
	return gcm, nil
}

// EncodeBase64 is a convenience for callers that need a single base64 blob
// representation of an envelope's nonce+ciphertext+tag (e.g. logging a
// fingerprint without leaking plaintext). It never includes the KDF salt.
func (e *Envelope) EncodeBase64() string {
	if e == nil {
		return ""
	}
	joined := append(append(append([]byte{}, e.Nonce...), e.Ciphertext...), e.Tag...)
	return base64.StdEncoding.EncodeToString(joined)
}
