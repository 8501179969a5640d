package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/vendaro/vendaro/pkg/db"
)

type fakeDirectory struct {
	accounts map[string]*db.Account // key: role + "/" + id
}

func (d *fakeDirectory) Lookup(role, id string) (*db.Account, error) {
	if a, ok := d.accounts[role+"/"+id]; ok {
		return a, nil
	}
	return nil, ErrAccountUnavailable
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{accounts: map[string]*db.Account{
		"customer/c1": {ID: "c1", Role: db.RoleCustomer, DisplayName: "Carol", Active: true},
		"staff/s1":    {ID: "s1", Role: db.RoleStaff, DisplayName: "Sam", Active: true},
		"vendor/v1":   {ID: "v1", Role: db.RoleVendor, DisplayName: "Vera", Active: false},
	}}
}

func TestResolve_ValidCredential(t *testing.T) {
	r := NewResolver("secret", newFakeDirectory(), time.Hour)

	token, err := r.Issue(db.RoleCustomer, "c1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	identity, err := r.Resolve(token)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if identity.Role != db.RoleCustomer || identity.AccountID != "c1" {
		t.Fatalf("Resolve() = %+v, want customer/c1", identity)
	}
	if identity.DisplayName != "Carol" {
		t.Fatalf("DisplayName = %q, want Carol", identity.DisplayName)
	}
}

func TestResolve_ExpiredCredential(t *testing.T) {
	r := NewResolver("secret", newFakeDirectory(), -time.Minute)

	token, err := r.Issue(db.RoleCustomer, "c1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := r.Resolve(token); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("Resolve() error = %v, want ErrInvalidCredential", err)
	}
}

func TestResolve_MalformedCredential(t *testing.T) {
	r := NewResolver("secret", newFakeDirectory(), time.Hour)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := r.Resolve(token); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("Resolve(%q) error = %v, want ErrInvalidCredential", token, err)
		}
	}
}

func TestResolve_WrongSecret(t *testing.T) {
	issuer := NewResolver("secret-a", newFakeDirectory(), time.Hour)
	verifier := NewResolver("secret-b", newFakeDirectory(), time.Hour)

	token, err := issuer.Issue(db.RoleStaff, "s1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := verifier.Resolve(token); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("Resolve() error = %v, want ErrInvalidCredential", err)
	}
}

func TestResolve_InactiveAccount(t *testing.T) {
	r := NewResolver("secret", newFakeDirectory(), time.Hour)

	token, err := r.Issue(db.RoleVendor, "v1")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := r.Resolve(token); !errors.Is(err, ErrAccountUnavailable) {
		t.Fatalf("Resolve() error = %v, want ErrAccountUnavailable", err)
	}
}

func TestResolve_UnknownAccount(t *testing.T) {
	r := NewResolver("secret", newFakeDirectory(), time.Hour)

	token, err := r.Issue(db.RoleCustomer, "missing")
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := r.Resolve(token); !errors.Is(err, ErrAccountUnavailable) {
		t.Fatalf("Resolve() error = %v, want ErrAccountUnavailable", err)
	}
}
