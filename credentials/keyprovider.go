package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/argon2"
)

const (
	// keyringService is the service name used in the system keyring.
	keyringService = "lectern"
	// keyringUser is the account name used in the system keyring.
	keyringUser = "encryption-key"
	// keyLength is the required encryption key length (256 bits for AES-256).
	keyLength = 32
)

// Argon2 parameters for passphrase-based key derivation on machines without
// a usable keyring.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
)

// argon2Salt is a fixed application salt; the derived key only protects a
// local file readable by the same user, not a shared secret.
var argon2Salt = []byte("lectern-credentials-v1")

// ErrKeyringUnavailable indicates the system keyring is not available.
var ErrKeyringUnavailable = errors.New("system keyring unavailable")

// KeyProvider is an interface for obtaining the encryption key.
type KeyProvider interface {
	// GetKey returns the 32-byte encryption key, generating and storing a
	// new one if none exists.
	GetKey() ([]byte, error)

	// Description returns a human-readable description of the key storage.
	Description() string
}

// GetDefaultKeyProvider picks the key source in priority order:
// LECTERN_ENCRYPTION_KEY env (CI), the system keyring, then a passphrase
// from LECTERN_PASSPHRASE via argon2.
func GetDefaultKeyProvider() (KeyProvider, error) {
	if os.Getenv("LECTERN_ENCRYPTION_KEY") != "" {
		return &EnvKeyProvider{}, nil
	}

	kp := NewKeyringKeyProvider()
	if _, err := kp.GetKey(); err == nil {
		return kp, nil
	}

	if os.Getenv("LECTERN_PASSPHRASE") != "" {
		return &PassphraseKeyProvider{}, nil
	}

	return nil, fmt.Errorf("%w: set LECTERN_ENCRYPTION_KEY or LECTERN_PASSPHRASE", ErrKeyringUnavailable)
}

// EnvKeyProvider reads the key from LECTERN_ENCRYPTION_KEY (64 hex chars).
type EnvKeyProvider struct{}

// GetKey decodes the environment-provided key.
func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	raw := os.Getenv("LECTERN_ENCRYPTION_KEY")
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("LECTERN_ENCRYPTION_KEY is not valid hex: %w", err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("LECTERN_ENCRYPTION_KEY must decode to %d bytes, got %d", keyLength, len(key))
	}
	return key, nil
}

// Description describes the provider.
func (p *EnvKeyProvider) Description() string {
	return "environment variable (LECTERN_ENCRYPTION_KEY)"
}

// KeyringKeyProvider stores the encryption key in the system keyring.
type KeyringKeyProvider struct {
	mu sync.Mutex
}

// NewKeyringKeyProvider creates a new KeyringKeyProvider.
func NewKeyringKeyProvider() *KeyringKeyProvider {
	return &KeyringKeyProvider{}
}

// GetKey fetches the key from the keyring, generating one on first use.
func (p *KeyringKeyProvider) GetKey() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored, err := keyring.Get(keyringService, keyringUser)
	if err == nil {
		key, decErr := hex.DecodeString(stored)
		if decErr != nil || len(key) != keyLength {
			return nil, fmt.Errorf("stored encryption key is corrupt: %v", decErr)
		}
		return key, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}

	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating encryption key: %w", err)
	}

	if err := keyring.Set(keyringService, keyringUser, hex.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return key, nil
}

// Description describes the provider.
func (p *KeyringKeyProvider) Description() string {
	return "system keyring"
}

// PassphraseKeyProvider derives the key from LECTERN_PASSPHRASE with argon2id.
// Used on headless machines where no keyring daemon is running.
type PassphraseKeyProvider struct{}

// GetKey derives the key from the passphrase.
func (p *PassphraseKeyProvider) GetKey() ([]byte, error) {
	passphrase := os.Getenv("LECTERN_PASSPHRASE")
	if passphrase == "" {
		return nil, errors.New("LECTERN_PASSPHRASE is not set")
	}
	return argon2.IDKey([]byte(passphrase), argon2Salt, argon2Time, argon2Memory, argon2Threads, keyLength), nil
}

// Description describes the provider.
func (p *PassphraseKeyProvider) Description() string {
	return "passphrase-derived key (argon2id)"
}
