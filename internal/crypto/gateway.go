package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	keySize   = 32
	nonceSize = 12
	saltSize  = 16
	argonTime = 3
	argonMem  = 64 * 1024
	argonPar  = 4
)

// ErrKeyMismatch means a non-null ciphertext failed to authenticate under the
// configured key. It almost always indicates two deployed components running
// with different keys, so callers log it at the highest severity.
var ErrKeyMismatch = errors.New("ciphertext does not authenticate under configured key")

// Gateway encrypts and decrypts PII columns with a single process-wide key.
// Every component that touches encrypted data goes through the same injected
// Gateway instance; there is no package-level key and no default.
type Gateway struct {
	aead cipher.AEAD
	key  []byte
}

// New creates a Gateway from a raw 32-byte key.
func New(key []byte) (*Gateway, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", keySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}

	k := make([]byte, keySize)
	copy(k, key)
	return &Gateway{aead: gcm, key: k}, nil
}

// LoadGateway derives the process key from a passphrase using Argon2id and a
// random salt persisted in the settings table, generating the salt on first
// boot. An empty passphrase is an error; main treats it as fatal and refuses
// to serve traffic.
func LoadGateway(db *sql.DB, passphrase string) (*Gateway, error) {
	if passphrase == "" {
		return nil, errors.New("encryption key is not configured")
	}

	salt, err := loadOrCreateSalt(db)
	if err != nil {
		return nil, err
	}

	key := argon2.IDKey([]byte(passphrase), salt, argonTime, argonMem, argonPar, keySize)
	return New(key)
}

func loadOrCreateSalt(db *sql.DB) ([]byte, error) {
	var encoded string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = 'encryption_salt'`).Scan(&encoded)
	if err == nil {
		salt, decErr := hex.DecodeString(encoded)
		if decErr != nil || len(salt) != saltSize {
			return nil, fmt.Errorf("stored encryption salt is corrupt")
		}
		return salt, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("load encryption salt: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate encryption salt: %w", err)
	}
	if _, err := db.Exec(
		`INSERT INTO settings (key, value) VALUES ('encryption_salt', ?)`,
		hex.EncodeToString(salt),
	); err != nil {
		return nil, fmt.Errorf("persist encryption salt: %w", err)
	}
	return salt, nil
}

// Encrypt encrypts a plaintext with a random nonce.
// Output format: base64([12-byte nonce][AES-256-GCM ciphertext]).
func (g *Gateway) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	return g.seal(nonce, plaintext), nil
}

// EncryptDeterministic encrypts with a nonce derived from the plaintext, so
// equal plaintexts produce equal ciphertexts. Used only for columns that must
// be equality-searchable (attempted emails, migration destination emails,
// attempt IPs); everything else uses Encrypt.
func (g *Gateway) EncryptDeterministic(plaintext string) (string, error) {
	mac := hmac.New(sha256.New, g.key)
	mac.Write([]byte("nonce:"))
	mac.Write([]byte(plaintext))
	nonce := mac.Sum(nil)[:nonceSize]
	return g.seal(nonce, plaintext), nil
}

func (g *Gateway) seal(nonce []byte, plaintext string) string {
	ciphertext := g.aead.Seal(nil, nonce, []byte(plaintext), nil)

	out := make([]byte, 0, nonceSize+len(ciphertext))
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return base64.StdEncoding.EncodeToString(out)
}

// EncryptNullable encrypts an optional value, passing nil through untouched.
func (g *Gateway) EncryptNullable(plaintext *string) (*string, error) {
	if plaintext == nil {
		return nil, nil
	}
	ct, err := g.Encrypt(*plaintext)
	if err != nil {
		return nil, err
	}
	return &ct, nil
}

// Decrypt decrypts a ciphertext produced by Encrypt or EncryptDeterministic.
// A nil input short-circuits to nil without touching the cipher. A non-nil
// input that fails to decode or authenticate returns ErrKeyMismatch.
func (g *Gateway) Decrypt(ciphertext *string) (*string, error) {
	if ciphertext == nil {
		return nil, nil
	}

	raw, err := base64.StdEncoding.DecodeString(*ciphertext)
	if err != nil || len(raw) < nonceSize {
		return nil, ErrKeyMismatch
	}

	plaintext, err := g.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return nil, ErrKeyMismatch
	}

	s := string(plaintext)
	return &s, nil
}
