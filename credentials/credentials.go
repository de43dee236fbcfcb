// Package credentials provides secure storage for the external-service API
// keys used by lectern (transcription, generation, embedding). Keys are kept
// in ~/.lectern/credentials.yaml encrypted at rest; the encryption key lives
// in the system keyring (macOS Keychain, Windows Credential Manager, Linux
// Secret Service) with a passphrase-derived fallback for headless machines.
//
// For CI/testing environments, set LECTERN_ENCRYPTION_KEY to a 64-character
// hex string (32 bytes).
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Credential storage constants.
const (
	DefaultCredentialsDir  = ".lectern"
	DefaultCredentialsFile = "credentials.yaml"
)

// Service names keys may be stored under.
const (
	ServiceTranscribe = "transcribe"
	ServiceGenerate   = "generate"
	ServiceEmbed      = "embed"
)

// Common errors.
var (
	// ErrNoCredentials is returned when no key is stored for a service.
	ErrNoCredentials = errors.New("no credentials stored")
	// ErrInvalidCredentials is returned when stored credentials are malformed.
	ErrInvalidCredentials = errors.New("invalid credentials format")
	// ErrEncryptionFailed is returned when encryption/decryption fails.
	ErrEncryptionFailed = errors.New("encryption failed")
	// ErrUnknownService is returned for a service name outside the known set.
	ErrUnknownService = errors.New("unknown service")
)

// credentialsFile is the on-disk shape of the credentials store.
type credentialsFile struct {
	// Keys maps service name to the encrypted API key.
	Keys map[string]string `yaml:"keys"`
	// LastUpdated is when the file was last written.
	LastUpdated time.Time `yaml:"last_updated"`
}

// Store manages API key storage operations.
type Store struct {
	credentialsDir string
	encryptionKey  []byte
}

// validService reports whether name is one of the known services.
func validService(name string) bool {
	switch name {
	case ServiceTranscribe, ServiceGenerate, ServiceEmbed:
		return true
	}
	return false
}

// CredentialsDir returns the credentials directory, honoring
// $LECTERN_CONFIG_DIR like the config package does.
func CredentialsDir() (string, error) {
	if dir := os.Getenv("LECTERN_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DefaultCredentialsDir), nil
}

// NewStore creates a credential store backed by the default key provider.
func NewStore() (*Store, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return nil, fmt.Errorf("getting credentials directory: %w", err)
	}

	provider, err := GetDefaultKeyProvider()
	if err != nil {
		return nil, fmt.Errorf("initializing key provider: %w", err)
	}

	key, err := provider.GetKey()
	if err != nil {
		return nil, fmt.Errorf("getting encryption key: %w", err)
	}

	return &Store{credentialsDir: dir, encryptionKey: key}, nil
}

// NewStoreWithKey creates a store with an explicit 32-byte encryption key.
// Intended for tests.
func NewStoreWithKey(dir string, key []byte) (*Store, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("encryption key must be %d bytes", keyLength)
	}
	return &Store{credentialsDir: dir, encryptionKey: key}, nil
}

// SetAPIKey stores the API key for a service, replacing any previous value.
func (s *Store) SetAPIKey(service, apiKey string) error {
	if !validService(service) {
		return fmt.Errorf("%w: %q", ErrUnknownService, service)
	}

	file, err := s.load()
	if err != nil && !errors.Is(err, ErrNoCredentials) {
		return err
	}
	if file == nil {
		file = &credentialsFile{Keys: make(map[string]string)}
	}

	encrypted, err := s.encrypt(apiKey)
	if err != nil {
		return err
	}
	file.Keys[service] = encrypted
	file.LastUpdated = time.Now()

	return s.save(file)
}

// APIKey returns the stored API key for a service.
// An environment variable named LECTERN_<SERVICE>_API_KEY always wins, so
// headless environments can skip the keyring entirely.
func (s *Store) APIKey(service string) (string, error) {
	if !validService(service) {
		return "", fmt.Errorf("%w: %q", ErrUnknownService, service)
	}

	if v := os.Getenv(envKeyName(service)); v != "" {
		return v, nil
	}

	file, err := s.load()
	if err != nil {
		return "", err
	}

	encrypted, ok := file.Keys[service]
	if !ok {
		return "", fmt.Errorf("%w for service %q", ErrNoCredentials, service)
	}

	return s.decrypt(encrypted)
}

// DeleteAPIKey removes the stored key for a service.
func (s *Store) DeleteAPIKey(service string) error {
	if !validService(service) {
		return fmt.Errorf("%w: %q", ErrUnknownService, service)
	}

	file, err := s.load()
	if err != nil {
		return err
	}

	if _, ok := file.Keys[service]; !ok {
		return fmt.Errorf("%w for service %q", ErrNoCredentials, service)
	}
	delete(file.Keys, service)
	file.LastUpdated = time.Now()

	return s.save(file)
}

// Services returns the service names that currently hold a stored key.
func (s *Store) Services() ([]string, error) {
	file, err := s.load()
	if errors.Is(err, ErrNoCredentials) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(file.Keys))
	for _, svc := range []string{ServiceTranscribe, ServiceGenerate, ServiceEmbed} {
		if _, ok := file.Keys[svc]; ok {
			names = append(names, svc)
		}
	}
	return names, nil
}

func envKeyName(service string) string {
	switch service {
	case ServiceTranscribe:
		return "LECTERN_TRANSCRIBE_API_KEY"
	case ServiceGenerate:
		return "LECTERN_GENERATE_API_KEY"
	case ServiceEmbed:
		return "LECTERN_EMBED_API_KEY"
	}
	return ""
}

func (s *Store) path() string {
	return filepath.Join(s.credentialsDir, DefaultCredentialsFile)
}

func (s *Store) load() (*credentialsFile, error) {
	data, err := os.ReadFile(s.path())
	if os.IsNotExist(err) {
		return nil, ErrNoCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var file credentialsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if file.Keys == nil {
		file.Keys = make(map[string]string)
	}
	return &file, nil
}

func (s *Store) save(file *credentialsFile) error {
	if err := os.MkdirAll(s.credentialsDir, 0700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}

	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	if err := os.WriteFile(s.path(), data, 0600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}
	return nil
}

// encrypt seals plaintext with AES-256-GCM and returns base64 ciphertext.
func (s *Store) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// decrypt reverses encrypt.
func (s *Store) decrypt(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}

	if len(sealed) < gcm.NonceSize() {
		return "", ErrInvalidCredentials
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEncryptionFailed, err)
	}
	return string(plaintext), nil
}
