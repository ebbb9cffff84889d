package kernel

import (
	"fmt"
	"sync/atomic"

	"github.com/wanzhenyu888/xv6c/fs"
	"github.com/wanzhenyu888/xv6c/vm"

	log "github.com/Sirupsen/logrus"
)

type ProcState int

const (
	Unused ProcState = iota
	Embryo
	Sleeping
	Runnable
	Running
	Zombie
)

var stateNames = [...]string{
	Unused:   "unused",
	Embryo:   "embryo",
	Sleeping: "sleep",
	Runnable: "runble",
	Running:  "run",
	Zombie:   "zombie",
}

func (s ProcState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "???"
	}
	return stateNames[s]
}

// TrapFrame 保存进入内核时的用户寄存器，Eax存放系统调用的返回值
type TrapFrame struct {
	Eax int
}

// Task 是进程的执行体，返回值即退出状态
type Task func(p *Proc) int

// Proc 是进程表中的一项。标了lock的字段只在持有进程表锁时访问，
// 其余字段在进程运行后只由进程自己访问
type Proc struct {
	k     *Kernel
	index int

	sz     int           // lock; 用户内存大小(字节)
	pgdir  *vm.Pagetable // lock
	kstack *vm.Stack
	state  ProcState // lock
	pid    int       // lock
	parent int       // lock; 父进程在表中的下标，-1表示没有
	tf     TrapFrame
	wchan  any // lock; 睡眠时不为nil
	killed atomic.Bool
	ofile  []*fs.File
	cwd    *fs.Inode
	name   string // lock
	xstate int    // lock

	cont       int // lock; 容器表下标，-1表示根域
	cid        int // lock; 创建时所在容器的Id，0表示根域
	memCharged int // lock; growproc记到容器上的内存字节数

	ticks    int   // lock; 使用的CPU tick
	lastTick int64 // lock; 最近一次被调度时的tick

	cpu  *cpu          // 运行这个进程的CPU
	run  chan struct{} // 恢复进程goroutine的执行
	task Task
}

// domain 是调用者所处的资源域
type domain interface {
	isDomain()
}

// rootDomain 能看到整个系统，可以管理容器
type rootDomain struct{}

// containedDomain 只能操作conts[idx]这个容器
type containedDomain struct {
	idx int
}

// detachedDomain 属于容器已经被停止、自己被杀死而移出容器cid的进程，
// 它什么也看不到，什么也不能做
type detachedDomain struct {
	cid int
}

func (rootDomain) isDomain()      {}
func (containedDomain) isDomain() {}
func (detachedDomain) isDomain()  {}

// domainOf 调用时必须持有k.lock。被杀死的进程在被回收之前
// 一直属于创建它的那个容器的域
func (k *Kernel) domainOf(p *Proc) domain {
	switch {
	case p == nil || p.cid == 0:
		return rootDomain{}
	case p.cont >= 0:
		return containedDomain{idx: p.cont}
	}
	if idx := k.findContainer(p.cid); idx >= 0 {
		return containedDomain{idx: idx}
	}
	return detachedDomain{cid: p.cid}
}

// allocproc 找到一个Unused项并把它置为Embryo。cont不为-1时新进程
// 还要在该容器中占一个位置，容器的Id必须仍是cid，seed为true时优先
// 使用位置0。容器满了就把它标记为待销毁。内核栈在释放锁之后分配，
// 分配失败时该项退回Unused
func (k *Kernel) allocproc(c *cpu, cont, cid int, seed bool) (*Proc, error) {
	k.lock.acquire(c)
	slot := -1
	if cont >= 0 {
		ci := &k.conts[cont]
		if ci.cid != cid || cid == 0 {
			k.lock.release(c)
			return nil, fmt.Errorf("container %d: %w", cid, ErrNoContainer)
		}
		if seed && len(ci.procs) > 0 && ci.procs[0] < 0 {
			slot = 0
		} else {
			slot = ci.freeSlot()
		}
		if slot < 0 || ci.cg.Charge("pids", 1) != nil {
			ci.mustKill = true
			log.WithFields(log.Fields{"cid": ci.cid, "max": ci.cg.Resource.MaxProc}).Warn("container process quota exhausted, marked for termination")
			k.lock.release(c)
			return nil, fmt.Errorf("container %d: %w", ci.cid, ErrContainerFull)
		}
	}

	var p *Proc
	for i := range k.procs {
		if k.procs[i].state == Unused {
			p = &k.procs[i]
			break
		}
	}
	if p == nil {
		if slot >= 0 {
			k.conts[cont].cg.Charge("pids", -1)
		}
		k.lock.release(c)
		return nil, ErrNoProc
	}

	p.state = Embryo
	p.pid = k.nextpid
	k.nextpid++
	p.cont = cont
	p.cid = cid
	if slot >= 0 {
		k.conts[cont].procs[slot] = p.index
		k.conts[cont].saved[slot] = Embryo
	}
	p.run = make(chan struct{})
	p.killed.Store(false)
	run := p.run
	k.lock.release(c)

	stack, err := k.mem.AllocStack()
	if err != nil {
		k.revert(c, p)
		return nil, fmt.Errorf("allocproc: %w", err)
	}
	p.kstack = stack
	go k.forkret(p, run)
	return p, nil
}

// revert 把一个Embryo项退回Unused，释放它的内核栈和在容器中的位置
func (k *Kernel) revert(c *cpu, p *Proc) {
	if p.kstack != nil {
		k.mem.FreeStack(p.kstack)
		p.kstack = nil
	}
	k.lock.acquire(c)
	if p.state != Embryo {
		log.Panicf("revert: pid %d is %v", p.pid, p.state)
	}
	k.detach(p)
	run := p.run
	k.clear(p)
	k.lock.release(c)
	if run != nil {
		close(run)
	}
}

// detach 把p移出容器并退还记在容器上的用量。p.cid保留，
// p仍然受容器的限制。调用时持有k.lock
func (k *Kernel) detach(p *Proc) {
	if p.cont < 0 {
		return
	}
	ci := &k.conts[p.cont]
	if ci.removeProc(p.index) {
		ci.cg.Charge("pids", -1)
		ci.cg.Charge("memory", -p.memCharged)
	}
	p.cont = -1
	p.memCharged = 0
}

// clear 把一项重置为Unused，调用时持有k.lock
func (k *Kernel) clear(p *Proc) {
	p.sz = 0
	p.pgdir = nil
	p.kstack = nil
	p.state = Unused
	p.pid = 0
	p.parent = -1
	p.tf = TrapFrame{}
	p.wchan = nil
	p.killed.Store(false)
	p.ofile = nil
	p.cwd = nil
	p.name = ""
	p.xstate = 0
	p.cont = -1
	p.cid = 0
	p.memCharged = 0
	p.ticks = 0
	p.lastTick = 0
	p.cpu = nil
	p.run = nil
	p.task = nil
}
