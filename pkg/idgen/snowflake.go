package idgen

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// ID 布局：41位毫秒 | 10位机器编号 | 12位序列号
const (
	idEpoch     = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerBits  = 10
	seqBits     = 12
	workerLimit = 1<<workerBits - 1
	seqMask     = 1<<seqBits - 1

	requestNoPrefix = "KS"
)

// ErrWorkerRange 机器编号超出范围
var ErrWorkerRange = errors.New("idgen: worker id out of range")

// Generator 单机内单调递增的 ID 生成器
type Generator struct {
	mu       sync.Mutex
	worker   int64
	lastMs   int64
	sequence int64
	now      func() time.Time
}

// NewGenerator 创建生成器，worker 取值 0-1023
func NewGenerator(worker int64) (*Generator, error) {
	if worker < 0 || worker > workerLimit {
		return nil, fmt.Errorf("%w: %d", ErrWorkerRange, worker)
	}
	return &Generator{worker: worker, now: time.Now}, nil
}

// Next 返回下一个 ID
// 时钟回拨时沿用上次的毫秒数继续递增序列号
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms < g.lastMs {
		ms = g.lastMs
	}

	if ms == g.lastMs {
		g.sequence = (g.sequence + 1) & seqMask
		if g.sequence == 0 {
			for ms <= g.lastMs {
				ms = g.now().UnixMilli()
			}
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = ms

	return (ms-idEpoch)<<(workerBits+seqBits) | g.worker<<seqBits | g.sequence
}

// RequestNo 生成印刷在承认单上的申请编号：KS + 年月日 + ID
func (g *Generator) RequestNo() string {
	id := g.Next()
	return requestNoPrefix + g.now().Format("20060102") + strconv.FormatInt(id, 10)
}

var (
	defaultMu  sync.Mutex
	defaultGen *Generator
)

// Init 设置全局生成器的机器编号，重复调用以最后一次为准
func Init(worker int64) error {
	g, err := NewGenerator(worker)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defaultGen = g
	defaultMu.Unlock()
	return nil
}

func generator() *Generator {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultGen == nil {
		defaultGen, _ = NewGenerator(1)
	}
	return defaultGen
}

// NextID 使用全局生成器生成 ID，未初始化时机器编号为 1
func NextID() int64 {
	return generator().Next()
}

// GenerateRequestNo 使用全局生成器生成申请编号
func GenerateRequestNo() string {
	return generator().RequestNo()
}
