package kernel

import (
	"sync"
	"sync/atomic"

	log "github.com/Sirupsen/logrus"
)

// intr 是既不是调度器也不是进程的上下文使用的CPU标识，
// 比如时钟、设备输入和启动代码。不检查它的重入
var intr = &cpu{id: -1}

// Spinlock 是记录持有者CPU的互斥锁。不可重入，释放它的goroutine
// 可以和获取它的不是同一个，只要两者代表同一个CPU运行
type Spinlock struct {
	name   string
	mu     sync.Mutex
	holder atomic.Pointer[cpu]
}

// NewSpinlock 返回一把未加锁的锁
func NewSpinlock(name string) *Spinlock {
	return &Spinlock{name: name}
}

func (lk *Spinlock) acquire(c *cpu) {
	if c != intr && lk.holding(c) {
		log.Panicf("acquire %s: cpu %d already holds it", lk.name, c.id)
	}
	lk.mu.Lock()
	lk.holder.Store(c)
}

func (lk *Spinlock) release(c *cpu) {
	if !lk.holding(c) {
		log.Panicf("release %s: not held by cpu %d", lk.name, c.id)
	}
	lk.holder.Store(nil)
	lk.mu.Unlock()
}

func (lk *Spinlock) holding(c *cpu) bool {
	return c != nil && lk.holder.Load() == c
}

// Acquire 代表p获取锁，p为nil时表示从中断上下文获取
func (lk *Spinlock) Acquire(p *Proc) {
	lk.acquire(cpuOf(p))
}

// Release 释放由同一个p通过Acquire获取的锁
func (lk *Spinlock) Release(p *Proc) {
	lk.release(cpuOf(p))
}

func cpuOf(p *Proc) *cpu {
	if p == nil {
		return intr
	}
	return p.cpu
}
