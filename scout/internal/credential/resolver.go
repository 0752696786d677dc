// Package credential resolves which scrape-API key an execution runs
// with: the user's own key when it is usable, the shared fallback key
// otherwise. The fallback reason is recorded so usage logs can show why
// a run did not bill against the user's key.
package credential

import (
	"context"
	"fmt"

	"github.com/openscouts/scoutd/scout/internal/store"
)

// Fallback reasons, recorded verbatim in usage logs.
const (
	ReasonNoPreferences     = "no_preferences_record"
	ReasonNoAPIKey          = "no_api_key"
	ReasonKeyPending        = "key_pending"
	ReasonKeyCreationFailed = "key_creation_failed"
	ReasonKeyInvalid        = "key_invalid"
)

// Prefs is the slice of the store the resolver reads and degrades.
type Prefs interface {
	GetPreferences(ctx context.Context, userID string) (*store.Preferences, error)
	MarkKeyInvalid(ctx context.Context, userID, reason string) error
}

// Resolution is the outcome of a key lookup.
type Resolution struct {
	APIKey         string
	UsedFallback   bool
	FallbackReason string
}

// Resolver picks the key for a user. FallbackKey is the shared system
// key used when the user has no usable key of their own.
type Resolver struct {
	prefs       Prefs
	fallbackKey string
}

func NewResolver(prefs Prefs, fallbackKey string) *Resolver {
	return &Resolver{prefs: prefs, fallbackKey: fallbackKey}
}

// Resolve returns the key to run with. A user-supplied custom key wins
// outright; a provisioned personal key is used only while its status is
// active; everything else falls back with a reason derived from the
// stored status.
func (r *Resolver) Resolve(ctx context.Context, userID string) (Resolution, error) {
	p, err := r.prefs.GetPreferences(ctx, userID)
	if err != nil {
		return Resolution{}, fmt.Errorf("credential: load preferences: %w", err)
	}
	if p == nil {
		return r.fallback(ReasonNoPreferences), nil
	}
	if p.CustomAPIKey != "" {
		return Resolution{APIKey: p.CustomAPIKey}, nil
	}
	if p.APIKey != "" && p.KeyStatus == store.KeyActive {
		return Resolution{APIKey: p.APIKey}, nil
	}
	return r.fallback(reasonFor(p)), nil
}

// MarkInvalid degrades a user's personal key after the provider rejected
// it. One-way: resolutions fall back until the user re-provisions a key.
func (r *Resolver) MarkInvalid(ctx context.Context, userID, reason string) error {
	return r.prefs.MarkKeyInvalid(ctx, userID, reason)
}

func (r *Resolver) fallback(reason string) Resolution {
	return Resolution{
		APIKey:         r.fallbackKey,
		UsedFallback:   true,
		FallbackReason: reason,
	}
}

func reasonFor(p *store.Preferences) string {
	if p.APIKey == "" {
		return ReasonNoAPIKey
	}
	switch p.KeyStatus {
	case store.KeyPending:
		return ReasonKeyPending
	case store.KeyFailed:
		return ReasonKeyCreationFailed
	case store.KeyInvalid:
		return ReasonKeyInvalid
	default:
		return "status_" + p.KeyStatus
	}
}
