package auth

import (
	"context"
	"crypto/subtle"
	"errors"
)

// 固定の管理者アカウント
const (
	AdminName = "admin"
	AdminRole = "Administrator"
)

var (
	ErrNotConfigured   = errors.New("password is not configured")
	ErrInvalidPassword = errors.New("invalid password")
)

// Principal はログイン済みの利用者を表します。
type Principal struct {
	Name string
	Role string
}

// CredentialStore は資格情報の照合を提供します。
type CredentialStore interface {
	// Configured は照合に必要な設定が揃っているかを返します。
	Configured() bool
	Authenticate(password string) (Principal, error)
}

// SingleAdmin はパスワード1つで管理者を認証する CredentialStore です。
type SingleAdmin struct {
	password string
}

// NewSingleAdmin は設定済みパスワードから SingleAdmin を作成します。
func NewSingleAdmin(password string) *SingleAdmin {
	return &SingleAdmin{password: password}
}

func (s *SingleAdmin) Configured() bool {
	return s.password != ""
}

func (s *SingleAdmin) Authenticate(password string) (Principal, error) {
	if !s.Configured() {
		return Principal{}, ErrNotConfigured
	}
	if !Verify(password, s.password) {
		return Principal{}, ErrInvalidPassword
	}
	return Principal{Name: AdminName, Role: AdminRole}, nil
}

// Verify は submitted が configured と完全一致するかを返します。
// configured が空の場合は常に false です。
func Verify(submitted, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(submitted), []byte(configured)) == 1
}

type principalKey struct{}

// NewContext は p を保持するコンテキストを返します。
func NewContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext はコンテキストからログイン済みの利用者を取り出します。
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
