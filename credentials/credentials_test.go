package credentials

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	store, err := NewStoreWithKey(t.TempDir(), key)
	require.NoError(t, err)
	return store
}

func TestStore_SetAndGetAPIKey(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.SetAPIKey(ServiceTranscribe, "sk-trans-123"))
	require.NoError(t, store.SetAPIKey(ServiceGenerate, "sk-gen-456"))

	got, err := store.APIKey(ServiceTranscribe)
	require.NoError(t, err)
	assert.Equal(t, "sk-trans-123", got)

	got, err = store.APIKey(ServiceGenerate)
	require.NoError(t, err)
	assert.Equal(t, "sk-gen-456", got)
}

func TestStore_KeyEncryptedAtRest(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SetAPIKey(ServiceEmbed, "sk-embed-789"))

	raw, err := os.ReadFile(filepath.Join(store.credentialsDir, DefaultCredentialsFile))
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("sk-embed-789")), "plaintext key leaked to disk")
}

func TestStore_EnvOverride(t *testing.T) {
	store := newTestStore(t)
	t.Setenv("LECTERN_TRANSCRIBE_API_KEY", "env-key")

	got, err := store.APIKey(ServiceTranscribe)
	require.NoError(t, err)
	assert.Equal(t, "env-key", got)
}

func TestStore_MissingKey(t *testing.T) {
	store := newTestStore(t)

	_, err := store.APIKey(ServiceGenerate)
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestStore_UnknownService(t *testing.T) {
	store := newTestStore(t)

	assert.ErrorIs(t, store.SetAPIKey("mystery", "x"), ErrUnknownService)
	_, err := store.APIKey("mystery")
	assert.ErrorIs(t, err, ErrUnknownService)
}

func TestStore_DeleteAPIKey(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SetAPIKey(ServiceTranscribe, "sk-1"))

	require.NoError(t, store.DeleteAPIKey(ServiceTranscribe))
	_, err := store.APIKey(ServiceTranscribe)
	assert.ErrorIs(t, err, ErrNoCredentials)

	assert.ErrorIs(t, store.DeleteAPIKey(ServiceTranscribe), ErrNoCredentials)
}

func TestStore_Services(t *testing.T) {
	store := newTestStore(t)

	names, err := store.Services()
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, store.SetAPIKey(ServiceEmbed, "a"))
	require.NoError(t, store.SetAPIKey(ServiceTranscribe, "b"))

	names, err = store.Services()
	require.NoError(t, err)
	assert.Equal(t, []string{ServiceTranscribe, ServiceEmbed}, names)
}

func TestStore_WrongKeyFailsDecrypt(t *testing.T) {
	dir := t.TempDir()
	key1 := make([]byte, 32)
	key2 := make([]byte, 32)
	_, _ = rand.Read(key1)
	_, _ = rand.Read(key2)
	key2[0] = key1[0] + 1 // guarantee different keys

	s1, err := NewStoreWithKey(dir, key1)
	require.NoError(t, err)
	require.NoError(t, s1.SetAPIKey(ServiceGenerate, "secret"))

	s2, err := NewStoreWithKey(dir, key2)
	require.NoError(t, err)
	_, err = s2.APIKey(ServiceGenerate)
	assert.ErrorIs(t, err, ErrEncryptionFailed)
}

func TestEnvKeyProvider(t *testing.T) {
	t.Setenv("LECTERN_ENCRYPTION_KEY", "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff")

	p := &EnvKeyProvider{}
	key, err := p.GetKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestEnvKeyProvider_Invalid(t *testing.T) {
	t.Setenv("LECTERN_ENCRYPTION_KEY", "not-hex")
	p := &EnvKeyProvider{}
	_, err := p.GetKey()
	assert.Error(t, err)

	t.Setenv("LECTERN_ENCRYPTION_KEY", "abcd")
	_, err = p.GetKey()
	assert.Error(t, err)
}

func TestPassphraseKeyProvider_Deterministic(t *testing.T) {
	t.Setenv("LECTERN_PASSPHRASE", "correct horse battery staple")

	p := &PassphraseKeyProvider{}
	k1, err := p.GetKey()
	require.NoError(t, err)
	k2, err := p.GetKey()
	require.NoError(t, err)

	assert.Len(t, k1, 32)
	assert.Equal(t, k1, k2)
}
