package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const revokedKeyPrefix = "session:revoked:"

// Revocations はログアウト済みセッションIDの一覧を保持します。
// 登録はセッション本来の有効期限まで保持すれば十分です。
type Revocations interface {
	Revoke(ctx context.Context, id string, until time.Time) error
	IsRevoked(ctx context.Context, id string) (bool, error)
}

// MemoryRevocations はプロセス内メモリに失効リストを保持します。
type MemoryRevocations struct {
	lock    sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocations は MemoryRevocations を作成します。now が nil の場合は time.Now を使います。
func NewMemoryRevocations(now func() time.Time) *MemoryRevocations {
	if now == nil {
		now = time.Now
	}
	return &MemoryRevocations{
		entries: make(map[string]time.Time),
		now:     now,
	}
}

// Revoke は id を until まで失効扱いにします。期限切れのエントリはここで掃除します。
func (r *MemoryRevocations) Revoke(ctx context.Context, id string, until time.Time) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	now := r.now()
	for key, exp := range r.entries {
		if !now.Before(exp) {
			delete(r.entries, key)
		}
	}
	if now.Before(until) {
		r.entries[id] = until
	}
	return nil
}

// IsRevoked は id が失効済みかを返します。
func (r *MemoryRevocations) IsRevoked(ctx context.Context, id string) (bool, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	until, ok := r.entries[id]
	if !ok {
		return false, nil
	}
	return r.now().Before(until), nil
}

// Len は保持しているエントリ数を返します。
func (r *MemoryRevocations) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.entries)
}

// RedisRevocations は失効リストを Redis に保存します。複数プロセスで共有できます。
type RedisRevocations struct {
	rdb *redis.Client
	now func() time.Time
}

// NewRedisRevocations は RedisRevocations を作成します。
func NewRedisRevocations(rdb *redis.Client, now func() time.Time) *RedisRevocations {
	if now == nil {
		now = time.Now
	}
	return &RedisRevocations{
		rdb: rdb,
		now: now,
	}
}

// Revoke は id を until までのTTL付きで保存します。
func (r *RedisRevocations) Revoke(ctx context.Context, id string, until time.Time) error {
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	ttl := until.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	return r.rdb.Set(ctx, revokedKey(id), 1, ttl.Truncate(time.Second)+time.Second).Err()
}

// IsRevoked は id が失効済みかを返します。
func (r *RedisRevocations) IsRevoked(ctx context.Context, id string) (bool, error) {
	n, err := r.rdb.Exists(ctx, revokedKey(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func revokedKey(id string) string {
	return revokedKeyPrefix + id
}
