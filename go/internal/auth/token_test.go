package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
)

func TestSignAndVerify(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tokens := NewTokens("secret", "livequiz", time.Hour, clock)

	want := Identity{UserID: "u-1", Name: "Ada", Role: RoleTeacher}
	tok, err := tokens.Sign(want)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	got, err := tokens.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("identity mismatch (-want +got):\n%s", diff)
	}
}

func TestVerifyRejects(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tokens := NewTokens("secret", "livequiz", time.Hour, clock)
	tok, err := tokens.Sign(Identity{UserID: "u-1"})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		tokens *Tokens
		token  string
		wait   time.Duration
	}{
		{"garbage", tokens, "not-a-token", 0},
		{"wrong secret", NewTokens("other", "livequiz", time.Hour, clock), tok, 0},
		{"wrong issuer", NewTokens("secret", "elsewhere", time.Hour, clock), tok, 0},
		{"expired", tokens, tok, 2 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock.Advance(tt.wait)
			if _, err := tt.tokens.Verify(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("Verify err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestSignRequiresUser(t *testing.T) {
	if _, err := NewTokens("s", "i", 0, nil).Sign(Identity{}); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := context.Background()
	if _, ok := FromContext(ctx); ok {
		t.Fatal("empty context should carry no identity")
	}
	id := Identity{UserID: "u-2", Role: RoleStudent}
	got, ok := FromContext(WithIdentity(ctx, id))
	if !ok || got != id {
		t.Fatalf("FromContext = %+v, %v", got, ok)
	}
}
