package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/totegamma/jsonkeeper/internal/domain"
)

func newTestGuard() *AccessGuard {
	verifier := &mockVerifier{subjects: map[string]string{"alice-token": "con1alice", "bob-token": "con1bob"}}
	return NewAccessGuard(verifier, 50*time.Millisecond)
}

func TestAccessGuardAuthorize(t *testing.T) {
	guard := newTestGuard()

	cases := []struct {
		name    string
		own     domain.Ownership
		cred    domain.Credential
		allowed bool
	}{
		{"unrestricted without credential", domain.Unrestricted(), domain.Credential{}, true},
		{"unrestricted with any token", domain.Unrestricted(), domain.Credential{AccessToken: "xyz"}, true},
		{"self-managed matching token", domain.SelfManaged(DigestToken("abc")), domain.Credential{AccessToken: "abc"}, true},
		{"self-managed wrong token", domain.SelfManaged(DigestToken("abc")), domain.Credential{AccessToken: "xyz"}, false},
		{"self-managed missing token", domain.SelfManaged(DigestToken("abc")), domain.Credential{}, false},
		{"self-managed with identity token only", domain.SelfManaged(DigestToken("abc")), domain.Credential{IdentityToken: "alice-token"}, false},
		{"verified matching subject", domain.Verified("con1alice"), domain.Credential{IdentityToken: "alice-token"}, true},
		{"verified other subject", domain.Verified("con1alice"), domain.Credential{IdentityToken: "bob-token"}, false},
		{"verified unknown token", domain.Verified("con1alice"), domain.Credential{IdentityToken: "garbage"}, false},
		{"verified missing token", domain.Verified("con1alice"), domain.Credential{}, false},
		{"verified with access token only", domain.Verified("con1alice"), domain.Credential{AccessToken: "con1alice"}, false},
		{"verified with slow verifier", domain.Verified("con1alice"), domain.Credential{IdentityToken: "slow"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := guard.Authorize(context.Background(), tc.own, tc.cred)
			if tc.allowed && err != nil {
				t.Fatalf("expected allowed, got %v", err)
			}
			if !tc.allowed && !errors.Is(err, domain.ErrForbidden) {
				t.Fatalf("expected forbidden, got %v", err)
			}
		})
	}
}

func TestAccessGuardVerificationIsBounded(t *testing.T) {
	guard := newTestGuard()

	start := time.Now()
	err := guard.Authorize(context.Background(), domain.Verified("con1alice"), domain.Credential{IdentityToken: "slow"})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("verification was not bounded: %s", elapsed)
	}
}

func TestAccessGuardResolve(t *testing.T) {
	guard := newTestGuard()
	ctx := context.Background()

	own, err := guard.Resolve(ctx, domain.Credential{})
	if err != nil || own.Mode != domain.OwnershipNone {
		t.Fatalf("expected unrestricted, got %v %v", own, err)
	}

	own, err = guard.Resolve(ctx, domain.Credential{AccessToken: "abc"})
	if err != nil || own != domain.SelfManaged(DigestToken("abc")) {
		t.Fatalf("expected self-managed, got %v %v", own, err)
	}
	if own.Value == "abc" {
		t.Fatalf("access token must not be stored in clear text")
	}

	own, err = guard.Resolve(ctx, domain.Credential{AccessToken: "abc", IdentityToken: "alice-token"})
	if err != nil || own != domain.Verified("con1alice") {
		t.Fatalf("expected verified, got %v %v", own, err)
	}

	_, err = guard.Resolve(ctx, domain.Credential{IdentityToken: "garbage"})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestAccessGuardWithoutVerifierIgnoresIdentityTokens(t *testing.T) {
	guard := NewAccessGuard(nil, time.Second)
	ctx := context.Background()

	own, err := guard.Resolve(ctx, domain.Credential{IdentityToken: "alice-token", AccessToken: "abc"})
	if err != nil || own.Mode != domain.OwnershipSelfManaged {
		t.Fatalf("expected self-managed, got %v %v", own, err)
	}

	own, err = guard.Resolve(ctx, domain.Credential{IdentityToken: "alice-token"})
	if err != nil || own.Mode != domain.OwnershipNone {
		t.Fatalf("expected unrestricted, got %v %v", own, err)
	}

	err = guard.Authorize(ctx, domain.Verified("con1alice"), domain.Credential{IdentityToken: "alice-token"})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	cfg := testConfig().Rewrite

	cases := []struct {
		name  string
		types []string
		want  RewriteDecision
	}{
		{"no types", nil, RewriteDecision{}},
		{"unconfigured type", []string{canvasIRI}, RewriteDecision{}},
		{"configured type", []string{manifestIRI}, RewriteDecision{Applies: true}},
		{"container type", []string{curationIRI}, RewriteDecision{Applies: true, IsContainer: true}},
		{"mixed types", []string{canvasIRI, curationIRI}, RewriteDecision{Applies: true, IsContainer: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.types, cfg); got != tc.want {
				t.Fatalf("expected %+v got %+v", tc.want, got)
			}
		})
	}
}
