package secrets

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/multigit-dev/multigit/pkg/logger"
)

// serviceName scopes all keyring entries owned by multigit.
const serviceName = "multigit"

// indexAccount holds the JSON list of keys this service has written.
// OS keyrings cannot enumerate entries, so the backend keeps its own
// index to support ListProviders.
const indexAccount = "__index__"

// KeyringBackend stores credentials in the OS-native keyring.
type KeyringBackend struct {
	service string
}

// NewKeyringBackend creates the OS keyring backend.
func NewKeyringBackend() *KeyringBackend {
	return &KeyringBackend{service: serviceName}
}

// Store persists the credential under the host-bound key.
func (b *KeyringBackend) Store(provider, host, username, secret string) error {
	k := key(provider, host, username)
	if err := gokeyring.Set(b.service, k, secret); err != nil {
		return &BackendError{Backend: "keyring", Op: "store", Wrapped: wrapKeyringErr(err)}
	}
	b.indexAdd(k)
	return nil
}

// Retrieve returns the credential for the host-bound key. When only a
// legacy (host-less) entry exists it is migrated to the host-bound key
// and the legacy entry removed.
func (b *KeyringBackend) Retrieve(provider, host, username string) (string, error) {
	k := key(provider, host, username)
	secret, err := gokeyring.Get(b.service, k)
	if err == nil {
		return secret, nil
	}
	if !errors.Is(err, gokeyring.ErrNotFound) {
		return "", &BackendError{Backend: "keyring", Op: "retrieve", Wrapped: wrapKeyringErr(err)}
	}

	// Legacy key migration.
	lk := legacyKey(provider, username)
	secret, lerr := gokeyring.Get(b.service, lk)
	if lerr != nil {
		if errors.Is(lerr, gokeyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", &BackendError{Backend: "keyring", Op: "retrieve", Wrapped: wrapKeyringErr(lerr)}
	}

	if serr := gokeyring.Set(b.service, k, secret); serr != nil {
		logger.Debug("Legacy credential migration failed",
			logger.String("provider", provider), logger.Err(serr))
	} else {
		_ = gokeyring.Delete(b.service, lk)
		b.indexAdd(k)
		b.indexRemove(lk)
		logger.Info("Migrated credential to host-bound key",
			logger.String("provider", provider),
			logger.String("host", host),
			logger.String("username", username))
	}
	return secret, nil
}

// Delete removes both the host-bound and any legacy entry.
func (b *KeyringBackend) Delete(provider, host, username string) error {
	k := key(provider, host, username)
	err := gokeyring.Delete(b.service, k)
	// Legacy entries are removed opportunistically.
	_ = gokeyring.Delete(b.service, legacyKey(provider, username))
	b.indexRemove(k)
	b.indexRemove(legacyKey(provider, username))

	if err != nil {
		if errors.Is(err, gokeyring.ErrNotFound) {
			return ErrNotFound
		}
		return &BackendError{Backend: "keyring", Op: "delete", Wrapped: wrapKeyringErr(err)}
	}
	return nil
}

// ListProviders returns the distinct providers present in the index.
func (b *KeyringBackend) ListProviders() ([]string, error) {
	keys := b.indexLoad()
	seen := make(map[string]struct{})
	for _, k := range keys {
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

func (b *KeyringBackend) indexLoad() []string {
	raw, err := gokeyring.Get(b.service, indexAccount)
	if err != nil {
		return nil
	}
	var keys []string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil
	}
	return keys
}

func (b *KeyringBackend) indexSave(keys []string) {
	data, err := json.Marshal(keys)
	if err != nil {
		return
	}
	_ = gokeyring.Set(b.service, indexAccount, string(data))
}

func (b *KeyringBackend) indexAdd(k string) {
	keys := b.indexLoad()
	for _, existing := range keys {
		if existing == k {
			return
		}
	}
	b.indexSave(append(keys, k))
}

func (b *KeyringBackend) indexRemove(k string) {
	keys := b.indexLoad()
	out := keys[:0]
	for _, existing := range keys {
		if existing != k {
			out = append(out, existing)
		}
	}
	b.indexSave(out)
}

func wrapKeyringErr(err error) error {
	// The keyring library reports service unavailability as plain
	// errors; treat anything other than not-found as unavailable.
	if errors.Is(err, gokeyring.ErrNotFound) {
		return ErrNotFound
	}
	return errors.Join(ErrBackendUnavailable, err)
}
