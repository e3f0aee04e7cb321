package httpapi

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/ssujit905/Inventory-sub001/internal/domain"
)

const (
	tokenIssuer = "inventory-ledger"

	// accountReloadTimeout bounds a credential reload so a slow store cannot
	// hang a login.
	accountReloadTimeout = 3 * time.Second

	minUsernameLen = 4
	minPasswordLen = 8
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errAccountInactive    = errors.New("account is inactive")
	errInvalidToken       = errors.New("invalid or expired token")
	errUnknownRole        = errors.New("token carries an unknown role")
)

// UserStore persists ledger accounts. The store package implementations
// satisfy it.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager signs and verifies bearer tokens for the two ledger roles and
// keeps a cache of accounts loaded from the UserStore.
type AuthManager struct {
	mu       sync.RWMutex
	secret   []byte
	tokenTTL time.Duration
	store    UserStore
	accounts map[string]account
}

type account struct {
	hash      string
	role      string
	active    bool
	createdAt time.Time
}

func (acc account) staffUser(username string) domain.StaffUser {
	return domain.StaffUser{Username: username, Role: acc.role, Active: acc.active, CreatedAt: acc.createdAt}
}

type ledgerClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	manager := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		store:    userStore,
		accounts: make(map[string]account),
	}
	manager.reload(context.Background())
	return manager
}

// ledgerRole reports whether role is one the ledger grants.
func ledgerRole(role string) bool {
	return role == domain.RoleAdmin || role == domain.RoleStaff
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// Login reloads accounts first so ones created by another replica can sign in.
// Accounts whose role the ledger does not know are refused.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.reload(ctx)
	username := normalizeUsername(req.Username)
	acc, ok := a.lookup(username)
	if !ok || !ledgerRole(acc.role) || !verifyPassword(acc.hash, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !acc.active {
		return domain.LoginResponse{}, errAccountInactive
	}

	expiresAt := time.Now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, acc.role, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}
	return domain.LoginResponse{
		AccessToken: token,
		Role:        acc.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// ParseToken accepts only HS256 tokens issued by this ledger with an expiry,
// a subject and an admin or staff role.
func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &ledgerClaims{}
	_, err := jwtlib.ParseWithClaims(tokenStr, claims, func(*jwtlib.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Actor{}, errInvalidToken
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errInvalidToken
	}
	if !ledgerRole(claims.Role) {
		return domain.Actor{}, errUnknownRole
	}
	return domain.Actor{Username: sub, Role: claims.Role}, nil
}

func (a *AuthManager) sign(username, role string, expiresAt time.Time) (string, error) {
	claims := ledgerClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwtlib.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
		Role: role,
	}
	return jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
}

// CreateStaff adds an active staff account. Admin accounts only come from the
// store's own seeding.
func (a *AuthManager) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (domain.StaffUser, error) {
	a.reload(ctx)
	username := normalizeUsername(req.Username)
	if err := checkStaffInput(username, req.Password); err != nil {
		return domain.StaffUser{}, err
	}
	if _, taken := a.lookup(username); taken {
		return domain.StaffUser{}, fmt.Errorf("username %s already exists", username)
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.StaffUser{}, errors.New("failed to hash password")
	}
	acc := account{hash: hash, role: domain.RoleStaff, active: true, createdAt: time.Now().UTC()}

	if a.store != nil {
		err := a.store.CreateUser(ctx, domain.UserAccount{
			Username:  username,
			Password:  acc.hash,
			Role:      acc.role,
			Active:    acc.active,
			CreatedAt: acc.createdAt,
		})
		if err != nil {
			return domain.StaffUser{}, err
		}
	}

	a.mu.Lock()
	a.accounts[username] = acc
	a.mu.Unlock()
	return acc.staffUser(username), nil
}

func checkStaffInput(username, password string) error {
	switch {
	case len(username) < minUsernameLen:
		return fmt.Errorf("username must be at least %d characters", minUsernameLen)
	case strings.ContainsAny(username, " \t\r\n"):
		return errors.New("username must not contain spaces")
	case len(strings.TrimSpace(password)) < minPasswordLen:
		return fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	return nil
}

// ListStaff returns staff accounts sorted by username. Admins are not listed.
func (a *AuthManager) ListStaff(ctx context.Context) []domain.StaffUser {
	a.reload(ctx)
	a.mu.RLock()
	result := make([]domain.StaffUser, 0, len(a.accounts))
	for username, acc := range a.accounts {
		if acc.role == domain.RoleStaff {
			result = append(result, acc.staffUser(username))
		}
	}
	a.mu.RUnlock()
	slices.SortFunc(result, func(x, y domain.StaffUser) int {
		return strings.Compare(x.Username, y.Username)
	})
	return result
}

func (a *AuthManager) lookup(username string) (account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	acc, ok := a.accounts[username]
	return acc, ok
}

// reload refreshes the account cache from the store. Plain-text passwords
// left by an older seed are rehashed with bcrypt and written back.
func (a *AuthManager) reload(ctx context.Context) {
	if a.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, accountReloadTimeout)
	defer cancel()

	users, err := a.store.ListUsers(ctx)
	if err != nil || len(users) == 0 {
		return
	}

	loaded := make(map[string]account, len(users))
	for _, user := range users {
		username := normalizeUsername(user.Username)
		if username == "" {
			continue
		}
		hash := user.Password
		if !isPasswordHash(hash) {
			if upgraded, err := hashPassword(hash); err == nil {
				hash = upgraded
				_ = a.store.UpdateUserPassword(ctx, username, upgraded)
			}
		}
		loaded[username] = account{
			hash:      hash,
			role:      strings.ToLower(strings.TrimSpace(user.Role)),
			active:    user.Active,
			createdAt: user.CreatedAt,
		}
	}

	a.mu.Lock()
	for username, acc := range loaded {
		a.accounts[username] = acc
	}
	a.mu.Unlock()
}

func verifyPassword(hash string, input string) bool {
	if hash == "" || strings.TrimSpace(input) == "" || !isPasswordHash(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
