package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 场景：管理员在两个窗口同时审批同一用户的两笔提现
//
//   不加锁：两个事务都读到余额 5000，各自判断 3000 <= 5000，
//           靠 WHERE wallet_balance >= ? 兜底才能拦住第二笔
//   加锁：  第二个审批等待第一个提交后再读余额，直接返回余额不足
//
// 加锁：SET key owner NX EX ttl
// 释放：Lua 脚本比较 owner 后再 DEL，避免锁过期后误删别人的锁
//
// ============================================================================

var ErrLockFailed = errors.New("获取分布式锁失败")

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// DistributedLock 单个 key 上的互斥锁
type DistributedLock struct {
	client     redis.Cmdable
	key        string
	value      string // 锁持有者，释放时校验
	expiration time.Duration
}

func NewDistributedLock(client redis.Cmdable, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 非阻塞加锁
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
}

// Lock 阻塞加锁，最多重试 maxRetries 次
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

// Unlock 只释放自己持有的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	return l.client.Eval(ctx, unlockScript, []string{l.key}, l.value).Err()
}

func userLockKey(userID int64) string {
	return fmt.Sprintf("wallet:lock:user:%d", userID)
}

// UserLocker 按用户维度加锁：不同用户的审批可以并发，同一用户串行
type UserLocker struct {
	client        redis.Cmdable
	ttl           time.Duration
	retryInterval time.Duration
	maxRetries    int
}

func NewUserLocker(client redis.Cmdable, ttl, retryInterval time.Duration, maxRetries int) *UserLocker {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &UserLocker{
		client:        client,
		ttl:           ttl,
		retryInterval: retryInterval,
		maxRetries:    maxRetries,
	}
}

// LockUser owner 一般是提现单号，便于排查是谁持有锁
func (u *UserLocker) LockUser(ctx context.Context, userID int64, owner string) (func(), error) {
	l := NewDistributedLock(u.client, userLockKey(userID), owner, u.ttl)
	if err := l.Lock(ctx, u.retryInterval, u.maxRetries); err != nil {
		return nil, err
	}

	unlock := func() {
		// 请求的 ctx 可能已经取消，释放锁单独给一个超时
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := l.Unlock(ctx); err != nil {
			slog.Warn("释放分布式锁失败", "key", l.key, "owner", owner, "err", err)
		}
	}
	return unlock, nil
}
