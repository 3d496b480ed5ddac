package auth

import (
	"sync"
	"time"
)

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

// loginLimiter はIPごとのログイン失敗回数を数え、上限に達したら一定時間ロックします。
type loginLimiter struct {
	maxAttempts  int
	window       time.Duration
	lockDuration time.Duration
	now          func() time.Time

	lock     sync.Mutex
	attempts map[string]*attemptState
}

func newLoginLimiter(maxAttempts int, window, lockDuration time.Duration, now func() time.Time) *loginLimiter {
	if now == nil {
		now = time.Now
	}
	return &loginLimiter{
		maxAttempts:  maxAttempts,
		window:       window,
		lockDuration: lockDuration,
		now:          now,
		attempts:     make(map[string]*attemptState),
	}
}

func (l *loginLimiter) enabled() bool {
	return l != nil && l.maxAttempts > 0
}

// checkLock はロック中なら残り時間を返します。
func (l *loginLimiter) checkLock(ip string) time.Duration {
	if !l.enabled() {
		return 0
	}
	l.lock.Lock()
	defer l.lock.Unlock()

	state, ok := l.attempts[ip]
	if !ok {
		return 0
	}
	now := l.now()
	if !now.Before(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

// recordFailure は失敗を記録し、ロックまでの残り回数を返します。
func (l *loginLimiter) recordFailure(ip string) int {
	if !l.enabled() {
		return 0
	}
	l.lock.Lock()
	defer l.lock.Unlock()

	now := l.now()
	state, ok := l.attempts[ip]
	windowPassed := ok && state.lockedUntil.IsZero() && now.Sub(state.firstAttempt) > l.window
	lockExpired := ok && !state.lockedUntil.IsZero() && !now.Before(state.lockedUntil)
	if !ok || windowPassed || lockExpired {
		state = &attemptState{firstAttempt: now}
		l.attempts[ip] = state
	}

	state.count++
	if state.count >= l.maxAttempts {
		state.lockedUntil = now.Add(l.lockDuration)
		state.count = l.maxAttempts
	}

	remaining := l.maxAttempts - state.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (l *loginLimiter) reset(ip string) {
	if !l.enabled() {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	delete(l.attempts, ip)
}
