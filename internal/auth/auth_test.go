package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	customhttp "github.com/BenjaminSRussell/scrapedeck/internal/http"
	"github.com/BenjaminSRussell/scrapedeck/internal/storage"
	"github.com/BenjaminSRussell/scrapedeck/internal/types"
)

func setup(t *testing.T, handler http.HandlerFunc, session customhttp.Session) (*Service, *storage.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := customhttp.NewClient(customhttp.Options{BaseURL: srv.URL, Session: session})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	store, err := storage.Open(filepath.Join(t.TempDir(), "auth.db"), nil)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewService(client, store, nil), store
}

func TestLoginStoresToken(t *testing.T) {
	var gotAuth string
	var gotCreds Credentials
	svc, store := setup(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/token/" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotCreds)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"token":"abc123"}`)
	}, customhttp.Session{Token: "stale"})
	ctx := context.Background()

	sess, err := svc.Login(ctx, Credentials{Username: " ann ", Password: "pw"}, "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if sess.Token != "abc123" || sess.Username != "ann" {
		t.Errorf("Unexpected session %+v", sess)
	}
	if gotAuth != "" {
		t.Errorf("Expected no Authorization header on login, got %q", gotAuth)
	}
	if gotCreds.Username != "ann" || gotCreds.Password != "pw" {
		t.Errorf("Unexpected credentials %+v", gotCreds)
	}

	resolved := Resolve(ctx, store, "", "Token")
	if resolved.Authorization() != "Token abc123" {
		t.Errorf("Expected stored token to resolve, got %q", resolved.Authorization())
	}

	if err := svc.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	current, err := svc.Current(ctx)
	if err != nil || current != nil {
		t.Errorf("Expected no session after logout, got %+v %v", current, err)
	}
}

func TestLoginFailures(t *testing.T) {
	svc, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"non_field_errors":["Unable to log in with provided credentials."]}`)
	}, customhttp.Session{})
	ctx := context.Background()

	_, err := svc.Login(ctx, Credentials{Username: "ann", Password: "bad"}, "")
	var apiErr *types.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected APIError 400, got %v", err)
	}

	_, err = svc.Login(ctx, Credentials{Username: "ann"}, "")
	var ve *types.ValidationError
	if !errors.As(err, &ve) || ve.Field != "password" {
		t.Errorf("Expected password validation error, got %v", err)
	}
}

func TestResolvePrefersExplicitToken(t *testing.T) {
	_, store := setup(t, func(w http.ResponseWriter, r *http.Request) {}, customhttp.Session{})
	ctx := context.Background()

	if got := Resolve(ctx, store, "", "Token"); got.Token != "" {
		t.Errorf("Expected empty session when logged out, got %+v", got)
	}

	if err := store.SaveSession(ctx, storage.Session{Token: "stored", Scheme: "Bearer"}); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}
	if got := Resolve(ctx, store, "override", "Token"); got.Authorization() != "Token override" {
		t.Errorf("Expected explicit token to win, got %q", got.Authorization())
	}
	if got := Resolve(ctx, store, "", "Token"); got.Authorization() != "Bearer stored" {
		t.Errorf("Expected stored scheme to be kept, got %q", got.Authorization())
	}
}

func TestWhoami(t *testing.T) {
	svc, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token t1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":7,"username":"ann"}`)
	}, customhttp.Session{Token: "t1"})

	u, err := svc.Whoami(context.Background())
	if err != nil {
		t.Fatalf("Whoami failed: %v", err)
	}
	if u.ID != 7 || u.Username != "ann" {
		t.Errorf("Unexpected user %+v", u)
	}
}
