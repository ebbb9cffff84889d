// Package vm 是内核的内存协作者：固定大小的物理页池、内核栈，以及按页
// 计算的用户地址空间。不统计小于一页的用量
package vm

import (
	"errors"
	"fmt"
	"sync"
)

const (
	// PGSIZE 是一页的字节数
	PGSIZE = 4096
	// KSTACKSIZE 是内核栈的页数
	KSTACKSIZE = 1
)

// ErrNoMem 在页池中没有空闲页时返回
var ErrNoMem = errors.New("out of memory")

// PGROUNDUP 把sz向上取整到页边界
func PGROUNDUP(sz int) int {
	return (sz + PGSIZE - 1) &^ (PGSIZE - 1)
}

func npages(sz int) int {
	return PGROUNDUP(sz) / PGSIZE
}

// Stack 是一个进程项使用的内核栈
type Stack struct {
	pages int
	freed bool
}

// Pagetable 是一个用户地址空间
type Pagetable struct {
	pages int
	freed bool
}

// Pages 返回映射的用户页数
func (pt *Pagetable) Pages() int {
	return pt.pages
}

// Stat 是页池的快照
type Stat struct {
	Total int
	Free  int
}

// Used 返回已分配出去的页数
func (s Stat) Used() int {
	return s.Total - s.Free
}

// UsedBytes 返回已用内存的字节数
func (s Stat) UsedBytes() int {
	return s.Used() * PGSIZE
}

// TotalBytes 返回页池的字节数
func (s Stat) TotalBytes() int {
	return s.Total * PGSIZE
}

// Pool 负责分配页，可以并发使用，阻塞时间不超过一次map更新
type Pool struct {
	mu     sync.Mutex
	total  int
	free   int
	active map[int]*Pagetable
}

// NewPool 创建一个有给定物理页数的页池
func NewPool(pages int) *Pool {
	return &Pool{
		total:  pages,
		free:   pages,
		active: make(map[int]*Pagetable),
	}
}

func (p *Pool) kalloc(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n > p.free {
		return fmt.Errorf("kalloc %d pages: %w", n, ErrNoMem)
	}
	p.free -= n
	return nil
}

func (p *Pool) kfree(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free += n
	if p.free > p.total {
		panic("kfree: pool overflow")
	}
}

// AllocStack 分配一个内核栈
func (p *Pool) AllocStack() (*Stack, error) {
	if err := p.kalloc(KSTACKSIZE); err != nil {
		return nil, err
	}
	return &Stack{pages: KSTACKSIZE}, nil
}

// FreeStack 释放一个内核栈
func (p *Pool) FreeStack(s *Stack) {
	if s.freed {
		panic("kfree: stack freed twice")
	}
	s.freed = true
	p.kfree(s.pages)
}

// Setup 创建一个容纳sz字节的地址空间，用于第一个进程
func (p *Pool) Setup(sz int) (*Pagetable, error) {
	n := npages(sz)
	if err := p.kalloc(n); err != nil {
		return nil, err
	}
	return &Pagetable{pages: n}, nil
}

// Copy 把pt的前sz字节复制到一个新的地址空间
func (p *Pool) Copy(pt *Pagetable, sz int) (*Pagetable, error) {
	if pt == nil || pt.freed {
		return nil, errors.New("copyuvm: no page table")
	}
	n := npages(sz)
	if n > pt.pages {
		return nil, fmt.Errorf("copyuvm: size %d beyond %d mapped pages", sz, pt.pages)
	}
	if err := p.kalloc(n); err != nil {
		return nil, err
	}
	return &Pagetable{pages: n}, nil
}

// Alloc 把pt从oldsz增长到newsz字节，返回新的大小
func (p *Pool) Alloc(pt *Pagetable, oldsz, newsz int) (int, error) {
	if newsz < oldsz {
		return oldsz, nil
	}
	n := npages(newsz) - npages(oldsz)
	if n > 0 {
		if err := p.kalloc(n); err != nil {
			return 0, err
		}
		pt.pages += n
	}
	return newsz, nil
}

// Dealloc 把pt从oldsz缩小到newsz字节，返回新的大小
func (p *Pool) Dealloc(pt *Pagetable, oldsz, newsz int) int {
	if newsz >= oldsz {
		return oldsz
	}
	if newsz < 0 {
		newsz = 0
	}
	n := npages(oldsz) - npages(newsz)
	if n > 0 {
		pt.pages -= n
		p.kfree(n)
	}
	return newsz
}

// Free 释放pt的所有页
func (p *Pool) Free(pt *Pagetable) {
	if pt == nil {
		return
	}
	if pt.freed {
		panic("freevm: page table freed twice")
	}
	pt.freed = true
	p.kfree(pt.pages)
	pt.pages = 0
}

// Switch 把pt设为cpu当前的映射，pt为nil时切回只有内核的映射
func (p *Pool) Switch(cpu int, pt *Pagetable) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pt == nil {
		delete(p.active, cpu)
		return
	}
	p.active[cpu] = pt
}

// Active 返回cpu上当前的用户映射，没有则返回nil
func (p *Pool) Active(cpu int) *Pagetable {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active[cpu]
}

// Stat 返回页池的快照
func (p *Pool) Stat() Stat {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stat{Total: p.total, Free: p.free}
}
