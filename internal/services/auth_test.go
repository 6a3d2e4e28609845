package services

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/apierr"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/ctxutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

func newTestAuth(t *testing.T, users string, ttl time.Duration) *authService {
	t.Helper()
	svc, err := NewAuthService(logger.Nop(), AuthConfig{Users: users, JWTSecret: "test-secret", AccessTTL: ttl})
	if err != nil {
		t.Fatalf("NewAuthService: %v", err)
	}
	return svc.(*authService)
}

func TestAuthLoginRoundTrip(t *testing.T) {
	svc := newTestAuth(t, " alice : pw:with:colons , bob:hunter2", time.Hour)

	token, err := svc.Login(context.Background(), "alice", "pw:with:colons")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	ctx, err := svc.SetContextFromToken(context.Background(), token)
	if err != nil {
		t.Fatalf("SetContextFromToken: %v", err)
	}
	if got := ctxutil.UserID(ctx); got != "alice" {
		t.Fatalf("user id: want=alice got=%q", got)
	}
	if rd := ctxutil.GetRequestData(ctx); rd == nil || rd.TokenString != token {
		t.Fatalf("request data token not attached: %+v", rd)
	}
}

func TestAuthLoginRejectsBadCredentials(t *testing.T) {
	svc := newTestAuth(t, "bob:hunter2", time.Hour)

	for _, tc := range []struct{ user, pass string }{
		{"bob", "wrong"},
		{"mallory", "hunter2"},
		{"", ""},
	} {
		_, err := svc.Login(context.Background(), tc.user, tc.pass)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Login(%q): want ErrInvalidCredentials got %v", tc.user, err)
		}
		if status, _ := apierr.Status(err); status != http.StatusUnauthorized {
			t.Fatalf("Login(%q): want 401 got %d", tc.user, status)
		}
		if err.Error() != "Invalid username or password" {
			t.Fatalf("message: got %q", err.Error())
		}
	}
}

func TestAuthExpiredToken(t *testing.T) {
	svc := newTestAuth(t, "bob:hunter2", time.Hour)
	issued := time.Now().Add(-2 * time.Hour)
	svc.now = func() time.Time { return issued }
	token, err := svc.Login(context.Background(), "bob", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	svc.now = time.Now

	_, err = svc.SetContextFromToken(context.Background(), token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("want ErrTokenExpired got %v", err)
	}
}

func TestAuthInvalidToken(t *testing.T) {
	svc := newTestAuth(t, "bob:hunter2", time.Hour)
	other := newTestAuth(t, "bob:hunter2", time.Hour)
	other.jwtSecretKey = "another-secret"
	foreign, err := other.Login(context.Background(), "bob", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	for _, tok := range []string{"", "not-a-jwt", foreign} {
		_, err := svc.SetContextFromToken(context.Background(), tok)
		if !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("token %q: want ErrTokenInvalid got %v", tok, err)
		}
	}
}

func TestAuthEmptyUsers(t *testing.T) {
	svc := newTestAuth(t, "", 0)
	if svc.GetAccessTTL() != 24*time.Hour {
		t.Fatalf("default ttl: got %s", svc.GetAccessTTL())
	}
	if _, err := svc.Login(context.Background(), "anyone", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("want ErrInvalidCredentials got %v", err)
	}
}
