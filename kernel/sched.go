package kernel

import (
	"context"
	"runtime"
	"time"

	log "github.com/Sirupsen/logrus"
)

// idle 是CPU没有进程可运行时再次扫描之前等待的时间
const idle = 100 * time.Microsecond

type cpu struct {
	id    int
	proc  *Proc         // 正在这里运行的进程，在调度器中时为nil
	sched chan struct{} // 运行中的进程通过它把CPU交还
}

// scheduler 是每个CPU上的循环。每一轮按顺序遍历进程表，运行找到的
// 每个Runnable项。整轮都持有表锁，被调度的进程一开始运行就释放它，
// 交还CPU时再次持有
func (k *Kernel) scheduler(ctx context.Context, c *cpu) {
	log.Debugf("cpu%d: starting", c.id)
	for {
		if ctx.Err() != nil {
			log.Debugf("cpu%d: stopping", c.id)
			return
		}
		ran := false
		k.lock.acquire(c)
		for i := range k.procs {
			p := &k.procs[i]
			if p.state != Runnable {
				continue
			}
			c.proc = p
			p.cpu = c
			p.state = Running
			p.lastTick = k.ticks.Load()
			k.mem.Switch(c.id, p.pgdir)
			k.swtch(c, p)
			k.mem.Switch(c.id, nil)
			c.proc = nil
			ran = true
		}
		k.lock.release(c)
		if !ran {
			time.Sleep(idle)
		}
	}
}

// swtch 恢复p的执行，阻塞直到p通过sched交还CPU
func (k *Kernel) swtch(c *cpu, p *Proc) {
	p.run <- struct{}{}
	<-c.sched
}

// sched 把CPU交还给调度器。调用者持有表锁，并且已经把p移出Running状态。
// Zombie不会再回来
func (p *Proc) sched() {
	k := p.k
	c := p.cpu
	if !k.lock.holding(c) {
		log.Panicf("sched: pid %d does not hold %s", p.pid, k.lock.name)
	}
	if p.state == Running {
		log.Panicf("sched: pid %d still running", p.pid)
	}
	run := p.run
	zombie := p.state == Zombie
	c.sched <- struct{}{}
	if zombie {
		runtime.Goexit()
	}
	<-run
}

// forkret 是每个新进程开始执行的地方，调度它的调度器仍持有表锁
func (k *Kernel) forkret(p *Proc, run chan struct{}) {
	if _, ok := <-run; !ok {
		// 分配被撤销了
		return
	}
	k.lock.release(p.cpu)
	p.Exit(p.task(p))
}

// Yield 让出CPU一轮
func (p *Proc) Yield() {
	k := p.k
	k.lock.acquire(p.cpu)
	if p.state == Running {
		p.state = Runnable
	}
	p.sched()
	k.lock.release(p.cpu)
}

// onCPU 判断q此刻是否正在某个CPU上执行，不管它的状态是什么。
// 运行中被暂停的容器成员状态是Sleeping，但在调用sched之前仍在CPU上。
// 调用时持有k.lock
func onCPU(q *Proc) bool {
	return q.cpu != nil && q.cpu.proc == q
}
