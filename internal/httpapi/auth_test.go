package httpapi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, store)
	_, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestCreateStaffStoresPasswordHash(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, store)
	staff, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{
		Username: "Packer01",
		Password: "pass12345",
	})
	if err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if staff.Username != "packer01" || staff.Role != domain.RoleStaff {
		t.Fatalf("unexpected staff user %+v", staff)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	var found *domain.UserAccount
	for i := range users {
		if users[i].Username == "packer01" {
			found = &users[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("expected staff user to be saved")
	}
	if found.Password == "pass12345" {
		t.Fatalf("expected staff password to be hashed")
	}
	if !strings.HasPrefix(found.Password, "$2") {
		t.Fatalf("expected bcrypt hash prefix, got %s", found.Password)
	}

	resp, err := manager.Login(context.Background(), domain.LoginRequest{
		Username: "packer01",
		Password: "pass12345",
	})
	if err != nil {
		t.Fatalf("login with hashed staff password failed: %v", err)
	}
	if resp.Role != domain.RoleStaff {
		t.Fatalf("expected staff role in login response, got %s", resp.Role)
	}

	if got := manager.ListStaff(context.Background()); len(got) != 1 || got[0].Username != "packer01" {
		t.Fatalf("expected only the staff account to be listed, got %+v", got)
	}
}

func TestCreateStaffRejectsWeakInput(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{})

	cases := []domain.StaffCreateRequest{
		{Username: "abc", Password: "pass12345"},
		{Username: "with space", Password: "pass12345"},
		{Username: "packer02", Password: "short"},
	}
	for _, req := range cases {
		if _, err := manager.CreateStaff(context.Background(), req); err == nil {
			t.Fatalf("expected %+v to be rejected", req)
		}
	}

	if _, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{Username: "packer02", Password: "pass12345"}); err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	if _, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{Username: "PACKER02", Password: "pass12345"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	store := &userStoreStub{}
	issuer := NewAuthManager("secret-one", time.Hour, store)
	verifier := NewAuthManager("secret-two", time.Hour, store)

	if _, err := issuer.CreateStaff(context.Background(), domain.StaffCreateRequest{Username: "packer03", Password: "pass12345"}); err != nil {
		t.Fatalf("create staff failed: %v", err)
	}
	resp, err := issuer.Login(context.Background(), domain.LoginRequest{Username: "packer03", Password: "pass12345"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := issuer.ParseToken(resp.AccessToken)
	if err != nil || actor.Username != "packer03" || actor.Role != domain.RoleStaff {
		t.Fatalf("expected issuer to accept its token, got %+v %v", actor, err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsUnknownRole(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)

	for _, role := range []string{"owner", "cashier", ""} {
		token, err := manager.sign("someone", role, time.Now().Add(time.Hour))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		if _, err := manager.ParseToken(token); !errors.Is(err, errUnknownRole) {
			t.Fatalf("role %q: expected unknown role rejection, got %v", role, err)
		}
	}

	token, err := manager.sign("someone", domain.RoleAdmin, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if actor, err := manager.ParseToken(token); err != nil || actor.Role != domain.RoleAdmin {
		t.Fatalf("expected admin token to be accepted, got %+v %v", actor, err)
	}
}

func TestParseTokenRequiresLedgerIssuerAndExpiry(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)
	signed := func(claims ledgerClaims) string {
		t.Helper()
		token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return token
	}

	foreign := signed(ledgerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "packer01", Issuer: "pos-backend", ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour))},
		Role:             domain.RoleStaff,
	})
	if _, err := manager.ParseToken(foreign); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected foreign issuer to be rejected, got %v", err)
	}

	noExpiry := signed(ledgerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{Subject: "packer01", Issuer: tokenIssuer},
		Role:             domain.RoleStaff,
	})
	if _, err := manager.ParseToken(noExpiry); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected token without expiry to be rejected, got %v", err)
	}

	expired, err := manager.sign("packer01", domain.RoleStaff, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(expired); !errors.Is(err, errInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestLoginRefusesAccountsOutsideLedgerRoles(t *testing.T) {
	hash, err := hashPassword("pass12345")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"cashier1": {Username: "cashier1", Password: hash, Role: "cashier", Active: true, CreatedAt: time.Now().UTC()},
			"packer09": {Username: "packer09", Password: hash, Role: domain.RoleStaff, Active: false, CreatedAt: time.Now().UTC()},
		},
	}
	manager := NewAuthManager("test-secret", time.Hour, store)

	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "cashier1", Password: "pass12345"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected unknown role to be refused, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "packer09", Password: "pass12345"}); !errors.Is(err, errAccountInactive) {
		t.Fatalf("expected inactive account to be refused, got %v", err)
	}
	if _, err := manager.Login(context.Background(), domain.LoginRequest{Username: "packer09", Password: "wrong-pass"}); !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected wrong password to be refused, got %v", err)
	}
}
