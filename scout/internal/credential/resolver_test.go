package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/openscouts/scoutd/scout/internal/store"
)

type fakePrefs struct {
	p       *store.Preferences
	err     error
	invalid string // reason captured by MarkKeyInvalid
}

func (f *fakePrefs) GetPreferences(ctx context.Context, userID string) (*store.Preferences, error) {
	return f.p, f.err
}

func (f *fakePrefs) MarkKeyInvalid(ctx context.Context, userID, reason string) error {
	f.invalid = reason
	if f.p != nil {
		f.p.KeyStatus = store.KeyInvalid
		f.p.KeyError = reason
	}
	return nil
}

func TestResolveNoPreferences(t *testing.T) {
	r := NewResolver(&fakePrefs{}, "fc-system")

	res, err := r.Resolve(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.UsedFallback || res.FallbackReason != ReasonNoPreferences {
		t.Errorf("got %+v", res)
	}
	if res.APIKey != "fc-system" {
		t.Errorf("key: got %q", res.APIKey)
	}
}

func TestResolveActivePersonalKey(t *testing.T) {
	r := NewResolver(&fakePrefs{p: &store.Preferences{
		UserID:    "user-1",
		APIKey:    "fc-personal",
		KeyStatus: store.KeyActive,
	}}, "fc-system")

	res, _ := r.Resolve(context.Background(), "user-1")
	if res.UsedFallback {
		t.Errorf("active key fell back: %+v", res)
	}
	if res.APIKey != "fc-personal" {
		t.Errorf("key: got %q", res.APIKey)
	}
}

func TestResolveCustomKeyWins(t *testing.T) {
	// A user-supplied custom key is used regardless of the provisioned
	// key's status.
	r := NewResolver(&fakePrefs{p: &store.Preferences{
		UserID:       "user-1",
		APIKey:       "fc-personal",
		CustomAPIKey: "fc-custom",
		KeyStatus:    store.KeyPending,
	}}, "fc-system")

	res, _ := r.Resolve(context.Background(), "user-1")
	if res.UsedFallback || res.APIKey != "fc-custom" {
		t.Errorf("got %+v", res)
	}
}

func TestResolveFallbackReasons(t *testing.T) {
	cases := []struct {
		name  string
		prefs *store.Preferences
		want  string
	}{
		{"empty key", &store.Preferences{}, ReasonNoAPIKey},
		{"pending", &store.Preferences{APIKey: "k", KeyStatus: store.KeyPending}, ReasonKeyPending},
		{"creation failed", &store.Preferences{APIKey: "k", KeyStatus: store.KeyFailed}, ReasonKeyCreationFailed},
		{"invalid", &store.Preferences{APIKey: "k", KeyStatus: store.KeyInvalid}, ReasonKeyInvalid},
		{"unknown status", &store.Preferences{APIKey: "k", KeyStatus: "rotating"}, "status_rotating"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewResolver(&fakePrefs{p: tc.prefs}, "fc-system")
			res, err := r.Resolve(context.Background(), "user-1")
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if !res.UsedFallback || res.FallbackReason != tc.want {
				t.Errorf("got %+v, want reason %q", res, tc.want)
			}
		})
	}
}

func TestMarkInvalidDegradesFutureResolutions(t *testing.T) {
	fp := &fakePrefs{p: &store.Preferences{
		UserID:    "user-1",
		APIKey:    "fc-personal",
		KeyStatus: store.KeyActive,
	}}
	r := NewResolver(fp, "fc-system")

	if res, _ := r.Resolve(context.Background(), "user-1"); res.UsedFallback {
		t.Fatal("precondition: active key should resolve directly")
	}

	if err := r.MarkInvalid(context.Background(), "user-1", "401 from provider"); err != nil {
		t.Fatalf("mark invalid: %v", err)
	}
	if fp.invalid != "401 from provider" {
		t.Errorf("reason not recorded: %q", fp.invalid)
	}

	res, _ := r.Resolve(context.Background(), "user-1")
	if !res.UsedFallback || res.FallbackReason != ReasonKeyInvalid {
		t.Errorf("post-invalidation resolution: %+v", res)
	}
}

func TestResolvePropagatesStoreError(t *testing.T) {
	boom := errors.New("db gone")
	r := NewResolver(&fakePrefs{err: boom}, "fc-system")
	_, err := r.Resolve(context.Background(), "user-1")
	if !errors.Is(err, boom) {
		t.Errorf("got %v", err)
	}
}
