package testutil

import (
	"strings"

	"github.com/nhle/studiosync/internal/credential"
)

// NewTestResolver returns a resolver holding credentials for each identity.
// The username equals the identity so FakeBridge folders can be seeded with
// it directly.
func NewTestResolver(identities ...string) *credential.Resolver {
	src := credential.MapSource{"IMAP_HOST": "imap.example.com"}
	for _, id := range identities {
		key := strings.ToUpper(id)
		src["IMAP_USER_"+key] = id
		src["IMAP_PASS_"+key] = "secret-" + id
	}
	return credential.NewResolver(nil, src)
}
