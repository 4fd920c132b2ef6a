package idgen

import (
	"errors"
	"strconv"
	"sync"
	"time"
)

// ============================================================================
// 雪花算法 ID 生成器
// ============================================================================
//
//   0 - 41位时间戳 - 10位机器ID - 12位序列号
//
// 业务单号 = 前缀 + 十进制雪花ID，同一进程内严格递增，多实例通过 workerID 区分
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

const (
	PrefixOrder       = "ORD"
	PrefixTransaction = "TXN"
	PrefixWithdrawal  = "WDR"
)

var ErrInvalidWorkerID = errors.New("workerID 超出范围")

// Snowflake 雪花算法ID生成器
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, ErrInvalidWorkerID
	}
	return &Snowflake{workerID: workerID}, nil
}

var (
	defaultGenerator *Snowflake
	initOnce         sync.Once
)

// Init 初始化默认ID生成器，只有第一次调用生效
func Init(workerID int64) error {
	var err error
	initOnce.Do(func() {
		defaultGenerator, err = NewSnowflake(workerID)
	})
	return err
}

// NextID 生成下一个ID
func NextID() int64 {
	// 未显式初始化时使用 workerID=1
	_ = Init(1)
	return defaultGenerator.Generate()
}

// Generate 生成ID
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// 序列号用完，等待下一毫秒
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else if now < s.timestamp {
		// 时钟回拨：沿用上一次的时间戳继续递增序列号
		now = s.timestamp
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			now++
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

func generate(prefix string) string {
	return prefix + strconv.FormatInt(NextID(), 10)
}

// GenerateOrderNo 订单号，例如 ORD1234567890123456
func GenerateOrderNo() string {
	return generate(PrefixOrder)
}

// GenerateTransactionNo 流水号
func GenerateTransactionNo() string {
	return generate(PrefixTransaction)
}

// GenerateWithdrawalNo 提现单号
func GenerateWithdrawalNo() string {
	return generate(PrefixWithdrawal)
}
