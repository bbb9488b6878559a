package secrets

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/multigit-dev/multigit/pkg/logger"
)

// File format: magic, scrypt salt, XChaCha20-Poly1305 nonce, ciphertext
// of a JSON map[key]secret.
var encMagic = []byte("MGENC1")

const (
	saltSize = 16

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	keySize = 32
)

// FileBackend stores credentials in a passphrase-encrypted file under
// the user config directory. It is the fallback when the OS keyring is
// unavailable.
type FileBackend struct {
	path       string
	passphrase *Passphrase
}

// NewFileBackend creates the encrypted-file backend at path. The backend
// borrows the passphrase; the caller destroys it when done.
func NewFileBackend(path string, passphrase *Passphrase) *FileBackend {
	return &FileBackend{path: path, passphrase: passphrase}
}

// Store persists the credential under its host-bound key.
func (b *FileBackend) Store(provider, host, username, secret string) error {
	store, err := b.load()
	if err != nil {
		return err
	}
	store[key(provider, host, username)] = secret
	return b.save(store)
}

// Retrieve returns the credential, migrating any legacy entry to the
// host-bound key and removing the legacy one.
func (b *FileBackend) Retrieve(provider, host, username string) (string, error) {
	store, err := b.load()
	if err != nil {
		return "", err
	}

	k := key(provider, host, username)
	if secret, ok := store[k]; ok {
		return secret, nil
	}

	lk := legacyKey(provider, username)
	if secret, ok := store[lk]; ok {
		store[k] = secret
		delete(store, lk)
		if err := b.save(store); err != nil {
			logger.Debug("Legacy credential migration failed", logger.Err(err))
		} else {
			logger.Info("Migrated encrypted credential to host-bound key",
				logger.String("provider", provider),
				logger.String("host", host))
		}
		return secret, nil
	}

	return "", ErrNotFound
}

// Delete removes both the host-bound and any legacy entry.
func (b *FileBackend) Delete(provider, host, username string) error {
	store, err := b.load()
	if err != nil {
		return err
	}
	k := key(provider, host, username)
	_, existed := store[k]
	delete(store, k)
	delete(store, legacyKey(provider, username))
	if err := b.save(store); err != nil {
		return err
	}
	if !existed {
		return ErrNotFound
	}
	return nil
}

// ListProviders returns the distinct providers present in the store.
func (b *FileBackend) ListProviders() ([]string, error) {
	store, err := b.load()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for k := range store {
		if provider, _, ok := strings.Cut(k, ":"); ok {
			seen[provider] = struct{}{}
		}
	}
	providers := make([]string, 0, len(seen))
	for p := range seen {
		providers = append(providers, p)
	}
	sort.Strings(providers)
	return providers, nil
}

func (b *FileBackend) load() (map[string]string, error) {
	raw, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, &BackendError{Backend: "encrypted-file", Op: "read", Wrapped: errors.Join(ErrBackendUnavailable, err)}
	}

	if len(raw) < len(encMagic)+saltSize+chacha20poly1305.NonceSizeX {
		return nil, &BackendError{Backend: "encrypted-file", Op: "read", Wrapped: ErrCorrupt}
	}
	if string(raw[:len(encMagic)]) != string(encMagic) {
		return nil, &BackendError{Backend: "encrypted-file", Op: "read", Wrapped: ErrCorrupt}
	}
	raw = raw[len(encMagic):]
	salt := raw[:saltSize]
	nonce := raw[saltSize : saltSize+chacha20poly1305.NonceSizeX]
	ciphertext := raw[saltSize+chacha20poly1305.NonceSizeX:]

	aead, err := b.aead(salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &BackendError{Backend: "encrypted-file", Op: "decrypt", Wrapped: errors.Join(ErrCrypto, err)}
	}

	var store map[string]string
	if err := json.Unmarshal(plaintext, &store); err != nil {
		return nil, &BackendError{Backend: "encrypted-file", Op: "parse", Wrapped: errors.Join(ErrCorrupt, err)}
	}
	return store, nil
}

func (b *FileBackend) save(store map[string]string) error {
	plaintext, err := json.Marshal(store)
	if err != nil {
		return &BackendError{Backend: "encrypted-file", Op: "encode", Wrapped: err}
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return &BackendError{Backend: "encrypted-file", Op: "encrypt", Wrapped: errors.Join(ErrCrypto, err)}
	}
	aead, err := b.aead(salt)
	if err != nil {
		return err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return &BackendError{Backend: "encrypted-file", Op: "encrypt", Wrapped: errors.Join(ErrCrypto, err)}
	}

	out := make([]byte, 0, len(encMagic)+saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, encMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, plaintext, nil)

	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return &BackendError{Backend: "encrypted-file", Op: "write", Wrapped: errors.Join(ErrBackendUnavailable, err)}
	}
	// Temp-and-rename so a crash never leaves a truncated store.
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return &BackendError{Backend: "encrypted-file", Op: "write", Wrapped: errors.Join(ErrBackendUnavailable, err)}
	}
	if err := os.Rename(tmp, b.path); err != nil {
		_ = os.Remove(tmp)
		return &BackendError{Backend: "encrypted-file", Op: "write", Wrapped: errors.Join(ErrBackendUnavailable, err)}
	}
	return nil
}

func (b *FileBackend) aead(salt []byte) (aeadCipher, error) {
	if b.passphrase == nil || len(b.passphrase.Bytes()) == 0 {
		return nil, &BackendError{Backend: "encrypted-file", Op: "derive", Wrapped: fmt.Errorf("%w: empty passphrase", ErrCrypto)}
	}
	derived, err := scrypt.Key(b.passphrase.Bytes(), salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, &BackendError{Backend: "encrypted-file", Op: "derive", Wrapped: errors.Join(ErrCrypto, err)}
	}
	defer zero(derived)
	aead, err := chacha20poly1305.NewX(derived)
	if err != nil {
		return nil, &BackendError{Backend: "encrypted-file", Op: "derive", Wrapped: errors.Join(ErrCrypto, err)}
	}
	return aead, nil
}

type aeadCipher interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	Overhead() int
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
