// Package ageenv is the default secrets.Envelope implementation, built on
// filippo.io/age: a multi-recipient, public-key envelope cipher.
package ageenv

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"

	"github.com/hometree/hometree/internal/herror"
)

// Envelope wraps a set of age recipients (for encryption) and identities
// (for decryption).
type Envelope struct {
	recipients []age.Recipient
	identities []age.Identity
}

// New parses the given recipient strings and identity file paths.
// Encryption requires at least one recipient; decryption requires at least
// one identity. Passphrase-based identities (age.ScryptIdentity) found in
// an identity file are refused.
func New(recipientStrs []string, identityFilePaths []string) (*Envelope, error) {
	e := &Envelope{}

	for _, r := range recipientStrs {
		recipient, err := age.ParseX25519Recipient(strings.TrimSpace(r))
		if err != nil {
			return nil, herror.Wrap(herror.Configuration, err, fmt.Sprintf("invalid recipient %q", r))
		}
		e.recipients = append(e.recipients, recipient)
	}

	for _, path := range identityFilePaths {
		f, err := os.Open(path)
		if err != nil {
			return nil, herror.Wrap(herror.Configuration, err, fmt.Sprintf("failed to open identity file %q", path))
		}

		identities, err := age.ParseIdentities(f)
		f.Close()
		if err != nil {
			return nil, herror.Wrap(herror.Configuration, err, fmt.Sprintf("failed to parse identity file %q", path))
		}

		for _, identity := range identities {
			if _, isScrypt := identity.(*age.ScryptIdentity); isScrypt {
				return nil, herror.New(herror.Configuration,
					fmt.Sprintf("identity file %q contains a passphrase-based identity, which is refused", path))
			}
			e.identities = append(e.identities, identity)
		}
	}

	return e, nil
}

// Encrypt encrypts plaintext to every configured recipient.
func (e *Envelope) Encrypt(plaintext []byte) ([]byte, error) {
	if len(e.recipients) == 0 {
		return nil, herror.New(herror.Configuration, "no recipients configured for encryption")
	}

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, e.recipients...)
	if err != nil {
		return nil, herror.Wrap(herror.Crypto, err, "failed to open age encryption stream")
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, herror.Wrap(herror.Crypto, err, "failed to write plaintext to age stream")
	}
	if err := w.Close(); err != nil {
		return nil, herror.Wrap(herror.Crypto, err, "failed to close age encryption stream")
	}

	return buf.Bytes(), nil
}

// Decrypt decrypts ciphertext using the first matching configured identity.
func (e *Envelope) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(e.identities) == 0 {
		return nil, herror.New(herror.Configuration, "no identities configured for decryption")
	}

	r, err := age.Decrypt(bytes.NewReader(ciphertext), e.identities...)
	if err != nil {
		return nil, herror.Wrap(herror.Crypto, err, "failed to decrypt age ciphertext")
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, herror.Wrap(herror.Crypto, err, "failed to read decrypted age plaintext")
	}

	return plaintext, nil
}
