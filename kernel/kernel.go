// Package kernel 是进程管理的核心：进程表、容器表、每个CPU上的调度器
// 以及sleep/wakeup。两张表由同一把锁保护，即进程表锁，所有的状态
// 转换都在持有这把锁时进行。
//
// 每个进程的执行体是一个Task，运行在自己的goroutine中。CPU的调度器
// 和它选中的进程之间通过显式的交接来转移控制权，所以每个CPU上同一
// 时刻最多只有一方在运行。
package kernel

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/wanzhenyu888/xv6c/cgroups/subsystems"
	"github.com/wanzhenyu888/xv6c/fs"
	"github.com/wanzhenyu888/xv6c/vm"

	log "github.com/Sirupsen/logrus"
)

// Memory 是虚拟内存的协作者
type Memory interface {
	AllocStack() (*vm.Stack, error)
	FreeStack(s *vm.Stack)
	Setup(sz int) (*vm.Pagetable, error)
	Copy(pt *vm.Pagetable, sz int) (*vm.Pagetable, error)
	Alloc(pt *vm.Pagetable, oldsz, newsz int) (int, error)
	Dealloc(pt *vm.Pagetable, oldsz, newsz int) int
	Free(pt *vm.Pagetable)
	Switch(cpu int, pt *vm.Pagetable)
	Stat() vm.Stat
}

// FileSystem 是文件系统的协作者
type FileSystem interface {
	Namei(path string) (*fs.Inode, error)
	Idup(ip *fs.Inode) *fs.Inode
	Iput(ip *fs.Inode)
	OpenConsole(tty int) (*fs.File, error)
	Filedup(f *fs.File) *fs.File
	Fileclose(f *fs.File)
	Write(f *fs.File, b []byte) (int, error)
}

// Config 决定内核各张表的大小
type Config struct {
	NCPU   int
	NProc  int
	NCont  int
	NOFile int
	NTTY   int
	// Tick 是时钟周期，为0时不启动时钟，由调用方手动驱动Tick
	Tick time.Duration
	// Limits.Global.MaxProc 不生效，以NProc为准
	Limits subsystems.Limits
}

type Kernel struct {
	cfg Config
	mem Memory
	fs  FileSystem

	// lock 保护procs、conts、每个cpu.proc、nextpid、nextcid以及磁盘计数
	lock    *Spinlock
	procs   []Proc
	conts   []Container
	cpus    []*cpu
	nextpid int
	nextcid int

	initproc *Proc
	started  atomic.Bool

	tickslock *Spinlock
	ticks     atomic.Int64

	diskUsed int
	diskSet  bool
}

// New 分配进程表和容器表
func New(cfg Config, mem Memory, fsys FileSystem) *Kernel {
	cfg.Limits.Global.MaxProc = cfg.NProc
	k := &Kernel{
		cfg:       cfg,
		mem:       mem,
		fs:        fsys,
		lock:      NewSpinlock("ptable"),
		procs:     make([]Proc, cfg.NProc),
		conts:     make([]Container, cfg.NCont),
		cpus:      make([]*cpu, cfg.NCPU),
		nextpid:   1,
		tickslock: NewSpinlock("time"),
	}
	for i := range k.procs {
		k.procs[i] = Proc{k: k, index: i, parent: -1, cont: -1}
	}
	for i := range k.conts {
		k.conts[i] = Container{
			tty:   -1,
			procs: make([]int, 0, cfg.NProc),
			saved: make([]ProcState, 0, cfg.NProc),
		}
	}
	for i := range k.cpus {
		k.cpus[i] = &cpu{id: i, sched: make(chan struct{})}
	}
	return k
}

// Start 创建运行init的第一个进程，为每个CPU启动一个调度器，再启动时钟。
// 全部运行起来后返回，ctx结束时它们一起停止
func (k *Kernel) Start(ctx context.Context, init Task) error {
	if !k.started.CompareAndSwap(false, true) {
		return ErrStarted
	}
	if err := k.userinit(init); err != nil {
		return err
	}
	for _, c := range k.cpus {
		go k.scheduler(ctx, c)
	}
	if k.cfg.Tick > 0 {
		go k.clock(ctx, k.cfg.Tick)
	}
	log.Infof("kernel started with %d cpus, %d procs, %d containers", len(k.cpus), len(k.procs), len(k.conts))
	return nil
}

// Boot 即Start之后等待ctx结束
func (k *Kernel) Boot(ctx context.Context, init Task) error {
	if err := k.Start(ctx, init); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// userinit 创建第一个进程，它退出是致命错误
func (k *Kernel) userinit(task Task) error {
	p, err := k.allocproc(intr, -1, 0, false)
	if err != nil {
		return fmt.Errorf("userinit: %w", err)
	}
	pgdir, err := k.mem.Setup(vm.PGSIZE)
	if err != nil {
		k.revert(intr, p)
		return fmt.Errorf("userinit: setupkvm: %w", err)
	}
	cwd, err := k.fs.Namei("/")
	if err != nil {
		k.mem.Free(pgdir)
		k.revert(intr, p)
		return fmt.Errorf("userinit: %w", err)
	}
	ofile, err := k.openConsole(0)
	if err != nil {
		k.fs.Iput(cwd)
		k.mem.Free(pgdir)
		k.revert(intr, p)
		return fmt.Errorf("userinit: %w", err)
	}

	k.lock.acquire(intr)
	p.pgdir = pgdir
	p.sz = vm.PGSIZE
	p.cwd = cwd
	p.ofile = ofile
	p.name = "init"
	p.task = task
	p.state = Runnable
	k.initproc = p
	k.lock.release(intr)
	return nil
}

// openConsole 返回stdin、stdout、stderr都指向console tty的文件表
func (k *Kernel) openConsole(tty int) ([]*fs.File, error) {
	f, err := k.fs.OpenConsole(tty)
	if err != nil {
		return nil, err
	}
	ofile := make([]*fs.File, k.cfg.NOFile)
	ofile[0] = f
	ofile[1] = k.fs.Filedup(f)
	ofile[2] = k.fs.Filedup(f)
	return ofile, nil
}

func (k *Kernel) clock(ctx context.Context, d time.Duration) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			k.Tick()
		}
	}
}

// Tick 即时钟中断：全局tick加一，唤醒等待tick的进程，
// 并给每个正在运行的进程和它所在的容器记一个tick
func (k *Kernel) Tick() {
	k.tickslock.acquire(intr)
	k.ticks.Add(1)
	k.wakeup(intr, &k.ticks)
	k.tickslock.release(intr)

	k.lock.acquire(intr)
	for _, c := range k.cpus {
		p := c.proc
		if p == nil || p.state != Running {
			continue
		}
		p.ticks++
		if p.cont >= 0 {
			k.conts[p.cont].ticks++
		}
	}
	k.lock.release(intr)
}

// Ticks 返回启动以来的时钟tick数
func (k *Kernel) Ticks() int64 {
	return k.ticks.Load()
}

// Wakeup 在中断上下文中唤醒所有睡在ch上的进程
func (k *Kernel) Wakeup(ch any) {
	k.wakeup(intr, ch)
}

// Tdiskused 记录根文件系统的磁盘用量，由init在启动时统计，只能设置一次
func (k *Kernel) Tdiskused(n int) error {
	k.lock.acquire(intr)
	defer k.lock.release(intr)
	if k.diskSet {
		return fmt.Errorf("tdiskused: %w", ErrAlreadySet)
	}
	k.diskUsed = n
	k.diskSet = true
	return nil
}
