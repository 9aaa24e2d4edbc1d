package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// PrivateKey is an ed25519 private key.
type PrivateKey []byte

// PublicKey is an ed25519 public key. Its hex form is a principal: the
// identity that owns accounts, stakes, streaks and badges.
type PublicKey []byte

// GenerateKeyPair returns a fresh ed25519 key pair.
func GenerateKeyPair() (PrivateKey, PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}
	return PrivateKey(priv), PublicKey(pub), nil
}

func (pub PublicKey) Hex() string   { return hex.EncodeToString(pub) }
func (priv PrivateKey) Hex() string { return hex.EncodeToString(priv) }

// Public derives the public key.
func (priv PrivateKey) Public() PublicKey {
	return PublicKey(ed25519.PrivateKey(priv).Public().(ed25519.PublicKey))
}

// PubKeyFromHex parses a principal.
func PubKeyFromHex(s string) (PublicKey, error) {
	b, err := decodeFixed("pubkey", s, ed25519.PublicKeySize)
	return PublicKey(b), err
}

// IsPubKeyHex reports whether s is a well-formed principal.
func IsPubKeyHex(s string) bool {
	_, err := PubKeyFromHex(s)
	return err == nil
}

// PrivKeyFromHex parses a hex-encoded private key.
func PrivKeyFromHex(s string) (PrivateKey, error) {
	b, err := decodeFixed("privkey", s, ed25519.PrivateKeySize)
	return PrivateKey(b), err
}

func decodeFixed(kind, s string, size int) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s hex: %w", kind, err)
	}
	if len(b) != size {
		return nil, fmt.Errorf("%s must be %d bytes, got %d", kind, size, len(b))
	}
	return b, nil
}
