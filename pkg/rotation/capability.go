package rotation

import (
	"context"
	"time"

	"github.com/systmms/credrotate/internal/validation"
)

// Credential is the material handed to plugins: identity plus one version's
// bytes and metadata. The core never inspects Data.
type Credential struct {
	ID       string
	Version  uint32
	Data     []byte
	Metadata map[string]string
}

// Minted is what a plugin returns when it creates a credential: the new
// bytes and the metadata to store alongside them.
type Minted struct {
	Data     []byte
	Metadata map[string]string
}

// Rotatable mints replacement credentials. Every plugin implements it; the
// other capability interfaces are optional extensions discovered by type
// assertion.
type Rotatable interface {
	// Name identifies the plugin in logs and audit records.
	Name() string

	// Rotate mints a replacement for the given credential. The returned
	// material is stored as a new, non-current version; the old version
	// stays live until commit.
	Rotate(ctx context.Context, cred Credential) (Minted, error)
}

// Testable is implemented by plugins that can probe a minted credential
// against the real service before it becomes current.
type Testable interface {
	Test(ctx context.Context, cred Credential) (validation.Outcome, error)
}

// TestTimeouter optionally overrides the validation probe timeout.
type TestTimeouter interface {
	TestTimeout() time.Duration
}

// DefaultTestTimeout applies to Testable plugins that do not implement
// TestTimeouter.
const DefaultTestTimeout = 30 * time.Second

// TestTimeoutFor returns the plugin's probe timeout, or the default.
func TestTimeoutFor(plugin Rotatable) time.Duration {
	if t, ok := plugin.(TestTimeouter); ok {
		if d := t.TestTimeout(); d > 0 {
			return d
		}
	}
	return DefaultTestTimeout
}

// OldVersionCleaner is implemented by plugins that must deactivate the old
// credential instance at the target service once its grace period ends.
// Plugins without it get storage-only cleanup.
type OldVersionCleaner interface {
	CleanupOld(ctx context.Context, cred Credential) error
}

// TokenRefresher is implemented by plugins whose credentials are renewable
// tokens rather than replaceable secrets. Refresh renews in place and does
// not run through the rotation transaction.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, cred Credential) (Minted, error)

	// GetExpiration reports when the credential was issued and when it
	// expires.
	GetExpiration(ctx context.Context, cred Credential) (issuedAt, expiresAt time.Time, err error)
}

// ShouldRefreshToken decides whether a token needs refreshing at instant
// now, given a lifetime-fraction threshold.
func ShouldRefreshToken(issuedAt, expiresAt, now time.Time, threshold float64, mode validation.RefreshMode) bool {
	return validation.ShouldRefresh(issuedAt, expiresAt, now, threshold, mode)
}
