package service

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"energy-trading-backend/pkg/apperror"

	"github.com/gagliardetto/solana-go"
	"golang.org/x/crypto/scrypt"
)

const (
	custodySaltSize = 32
	custodyIVSize   = 12
	custodyKeySize  = 32

	// scrypt parameters: N=2^15, r=8, p=1
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// ScryptKeyCustody implements ports.KeyCustody using scrypt key derivation
// and AES-256-GCM. Every Encrypt call draws a fresh salt and IV, so the same
// key material never produces the same ciphertext twice.
type ScryptKeyCustody struct {
	secret []byte
}

// NewScryptKeyCustody creates a custody service from the operator passphrase.
func NewScryptKeyCustody(secret string) (*ScryptKeyCustody, error) {
	if secret == "" {
		return nil, fmt.Errorf("custody secret must not be empty")
	}
	return &ScryptKeyCustody{secret: []byte(secret)}, nil
}

// Encrypt seals plaintext under a key derived from the custody secret.
// The returned salt and IV are required for decryption and are safe to
// persist next to the ciphertext.
func (s *ScryptKeyCustody) Encrypt(plaintext []byte) ([]byte, []byte, []byte, error) {
	salt := make([]byte, custodySaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, nil, nil, apperror.ErrEncryptionFailure(fmt.Errorf("generating salt: %w", err))
	}

	iv := make([]byte, custodyIVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, nil, apperror.ErrEncryptionFailure(fmt.Errorf("generating iv: %w", err))
	}

	aesGCM, err := s.gcm(salt)
	if err != nil {
		return nil, nil, nil, apperror.ErrEncryptionFailure(err)
	}

	ciphertext := aesGCM.Seal(nil, iv, plaintext, nil)
	return ciphertext, salt, iv, nil
}

// Decrypt opens a ciphertext sealed by Encrypt. A GCM authentication failure
// means the custody secret does not match the one used at encryption time.
func (s *ScryptKeyCustody) Decrypt(ciphertext, salt, iv []byte) ([]byte, error) {
	if len(salt) != custodySaltSize || len(iv) != custodyIVSize {
		return nil, apperror.ErrAuthenticationFailure(fmt.Errorf("malformed custody blob: salt=%d iv=%d", len(salt), len(iv)))
	}

	aesGCM, err := s.gcm(salt)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(err)
	}

	plaintext, err := aesGCM.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, apperror.ErrAuthenticationFailure(err)
	}
	return plaintext, nil
}

func (s *ScryptKeyCustody) gcm(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.secret, salt, scryptN, scryptR, scryptP, custodyKeySize)
	if err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	defer Zeroize(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return aesGCM, nil
}

// DecodeSigningKey turns decrypted key material into a Solana private key.
// Accepts a 32-byte seed or a 64-byte seed||pubkey expansion; the keypair is
// always re-derived from the seed. A 64-byte blob whose trailing half does
// not match the derived public key is treated as corrupted custody data.
func DecodeSigningKey(material []byte) (solana.PrivateKey, error) {
	switch len(material) {
	case 32:
		return solana.PrivateKey(ed25519.NewKeyFromSeed(material)), nil
	case 64:
		derived := ed25519.NewKeyFromSeed(material[:32])
		if !bytes.Equal(material[32:], derived[32:]) {
			stored := solana.PublicKeyFromBytes(material[32:])
			actual := solana.PublicKeyFromBytes(derived[32:])
			return nil, apperror.ErrCustodyIntegrityViolation(stored.String(), actual.String())
		}
		return solana.PrivateKey(derived), nil
	default:
		return nil, apperror.ErrInvalidKeyMaterial(len(material))
	}
}

// Zeroize overwrites sensitive byte material in place.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
