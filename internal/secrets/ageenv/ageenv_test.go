package ageenv

import (
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hometree/hometree/internal/herror"
)

func writeIdentityFile(t *testing.T, identity *age.X25519Identity) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "identity.txt")
	require.NoError(t, os.WriteFile(path, []byte(identity.String()+"\n"), 0o600))
	return path
}

func TestEnvelope_EncryptDecryptRoundTrip(t *testing.T) {
	// encrypt then decrypt must round-trip any byte sequence with a
	// matching recipient/identity pair, including empty and binary input.
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	identityPath := writeIdentityFile(t, identity)

	enc, err := New([]string{identity.Recipient().String()}, nil)
	require.NoError(t, err)

	dec, err := New(nil, []string{identityPath})
	require.NoError(t, err)

	plaintexts := [][]byte{
		[]byte("top-secret"),
		[]byte(""),
		[]byte("line one\nline two\x00binary\xff"),
	}

	for _, plaintext := range plaintexts {
		ciphertext, err := enc.Encrypt(plaintext)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, ciphertext)

		roundTripped, err := dec.Decrypt(ciphertext)
		require.NoError(t, err)
		assert.Equal(t, plaintext, roundTripped)
	}
}

func TestEnvelope_EncryptWithoutRecipientsFails(t *testing.T) {
	e, err := New(nil, nil)
	require.NoError(t, err)

	_, err = e.Encrypt([]byte("data"))
	require.Error(t, err)
	assert.True(t, herror.Is(err, herror.Configuration))
}

func TestEnvelope_DecryptWithoutIdentitiesFails(t *testing.T) {
	e, err := New(nil, nil)
	require.NoError(t, err)

	_, err = e.Decrypt([]byte("data"))
	require.Error(t, err)
	assert.True(t, herror.Is(err, herror.Configuration))
}

func TestEnvelope_InvalidRecipientFails(t *testing.T) {
	_, err := New([]string{"not-a-recipient"}, nil)
	require.Error(t, err)
	assert.True(t, herror.Is(err, herror.Configuration))
}

func TestEnvelope_DecryptWrongIdentityFails(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	other, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	enc, err := New([]string{identity.Recipient().String()}, nil)
	require.NoError(t, err)

	ciphertext, err := enc.Encrypt([]byte("top-secret"))
	require.NoError(t, err)

	otherIdentityPath := writeIdentityFile(t, other)
	dec, err := New(nil, []string{otherIdentityPath})
	require.NoError(t, err)

	_, err = dec.Decrypt(ciphertext)
	require.Error(t, err)
	assert.True(t, herror.Is(err, herror.Crypto))
}
