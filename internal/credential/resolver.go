package credential

import (
	"errors"
	"strings"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/nhle/studiosync/internal/model"
)

// ErrMissing is returned by callers that cannot proceed without credentials.
// Resolve itself never fails; it returns None.
var ErrMissing = errors.New("no credentials for identity")

// Environment key names. {KEY} is the resolved alias of an identity.
const (
	userKeyPrefix = "IMAP_USER_"
	passKeyPrefix = "IMAP_PASS_"
	hostKey       = "IMAP_HOST"
	portKey       = "IMAP_PORT"
)

// Resolver maps mailbox identities to connection secrets.
type Resolver struct {
	aliases map[string]string
	sources []Source
}

// NewResolver creates a resolver consulting sources in priority order. The
// alias table maps an identity to the key name used in the secret store.
func NewResolver(aliases map[string]string, sources ...Source) *Resolver {
	a := make(map[string]string, len(aliases))
	for id, key := range aliases {
		a[strings.ToLower(id)] = key
	}
	return &Resolver{aliases: a, sources: sources}
}

// Key returns the secret-store key name for an identity. Identities without
// an alias use their upper-cased id.
func (r *Resolver) Key(identity string) string {
	if key, ok := r.aliases[strings.ToLower(identity)]; ok && key != "" {
		return strings.ToUpper(key)
	}
	return strings.ToUpper(identity)
}

// Resolve returns the credentials of an identity, or None when either the
// username or the secret is absent from every source.
func (r *Resolver) Resolve(identity string) fn.Option[model.Credentials] {
	key := r.Key(identity)

	user, ok := r.lookup(userKeyPrefix + key)
	if !ok {
		return fn.None[model.Credentials]()
	}
	secret, ok := r.lookup(passKeyPrefix + key)
	if !ok {
		return fn.None[model.Credentials]()
	}

	host, _ := r.lookup(hostKey)
	port, _ := r.lookup(portKey)

	return fn.Some(model.Credentials{
		Identity: identity,
		Username: user,
		Secret:   secret,
		Host:     host,
		Port:     port,
	})
}

// lookup returns the first value found for key, honouring source priority.
func (r *Resolver) lookup(key string) (string, bool) {
	for _, src := range r.sources {
		if v, ok := src.Lookup(key); ok {
			return v, true
		}
	}
	return "", false
}
