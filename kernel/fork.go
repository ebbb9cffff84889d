package kernel

import (
	"fmt"

	"github.com/wanzhenyu888/xv6c/fs"
	"github.com/wanzhenyu888/xv6c/vm"

	log "github.com/Sirupsen/logrus"
)

// Fork 创建一个子进程，在p的地址空间副本中运行task。子进程共享p打开的
// 文件和当前目录，并且留在p所在的容器中
func (p *Proc) Fork(task Task) (int, error) {
	k := p.k
	k.lock.acquire(p.cpu)
	// killed是在持有k.lock时设置的，这里检查通过的成员一定还在容器中
	if p.Killed() {
		k.lock.release(p.cpu)
		return -1, fmt.Errorf("fork: %w", ErrKilled)
	}
	cont, cid := p.cont, p.cid
	k.lock.release(p.cpu)

	np, err := k.allocproc(p.cpu, cont, cid, false)
	if err != nil {
		return -1, fmt.Errorf("fork: %w", err)
	}
	pgdir, err := k.mem.Copy(p.pgdir, p.sz)
	if err != nil {
		k.revert(p.cpu, np)
		return -1, fmt.Errorf("fork: copyuvm: %w", err)
	}
	ofile := make([]*fs.File, len(p.ofile))
	for fd, f := range p.ofile {
		if f != nil {
			ofile[fd] = k.fs.Filedup(f)
		}
	}
	cwd := k.fs.Idup(p.cwd)

	pid := k.finishFork(p, np, task, pgdir, ofile, cwd)
	p.tf.Eax = pid
	p.checkKilled()
	return pid, nil
}

// Cfork 创建容器cid的第一个进程，作为p的子进程。位置0空闲时放在位置0，
// 输出写到容器的console，从容器根目录开始运行。只有根域可以调用
func (p *Proc) Cfork(cid int, task Task) (int, error) {
	k := p.k
	k.lock.acquire(p.cpu)
	if err := k.requireRoot(p, "cfork"); err != nil {
		k.lock.release(p.cpu)
		return -1, err
	}
	idx := k.findContainer(cid)
	k.lock.release(p.cpu)
	if idx < 0 {
		return -1, fmt.Errorf("cfork %d: %w", cid, ErrNoContainer)
	}

	np, err := k.allocproc(p.cpu, idx, cid, true)
	if err != nil {
		return -1, fmt.Errorf("cfork: %w", err)
	}
	pgdir, err := k.mem.Copy(p.pgdir, p.sz)
	if err != nil {
		k.revert(p.cpu, np)
		return -1, fmt.Errorf("cfork: copyuvm: %w", err)
	}

	k.lock.acquire(p.cpu)
	ci := &k.conts[idx]
	if ci.cid != cid || np.cont != idx {
		// 复制地址空间期间容器被停止了
		k.lock.release(p.cpu)
		k.mem.Free(pgdir)
		k.revert(p.cpu, np)
		return -1, fmt.Errorf("cfork %d: %w", cid, ErrNoContainer)
	}
	tty := ci.tty
	cwd := k.fs.Idup(ci.root)
	k.lock.release(p.cpu)

	ofile, err := k.openConsole(tty)
	if err != nil {
		k.fs.Iput(cwd)
		k.mem.Free(pgdir)
		k.revert(p.cpu, np)
		return -1, fmt.Errorf("cfork: %w", err)
	}

	pid := k.finishFork(p, np, task, pgdir, ofile, cwd)
	log.WithFields(log.Fields{"cid": cid, "pid": pid}).Info("cfork")
	p.tf.Eax = pid
	p.checkKilled()
	return pid, nil
}

// finishFork 填好子进程的各字段并把它置为Runnable
func (k *Kernel) finishFork(p, np *Proc, task Task, pgdir *vm.Pagetable, ofile []*fs.File, cwd *fs.Inode) int {
	k.lock.acquire(p.cpu)
	np.pgdir = pgdir
	np.sz = p.sz
	np.parent = p.index
	np.tf = p.tf
	// fork returns 0 in the child
	np.tf.Eax = 0
	np.ofile = ofile
	np.cwd = cwd
	np.name = p.name
	np.task = task
	pid := np.pid
	k.setRunnable(np)
	k.lock.release(p.cpu)
	return pid
}

// Exit 以给定状态结束p，不会返回。p的子进程交给init。task中还没执行的
// defer会在p退出之后运行，不能再使用p
func (p *Proc) Exit(status int) {
	k := p.k
	if p == k.initproc {
		log.Panicf("init exiting")
	}

	for fd, f := range p.ofile {
		if f != nil {
			k.fs.Fileclose(f)
			p.ofile[fd] = nil
		}
	}
	if p.cwd != nil {
		k.fs.Iput(p.cwd)
		p.cwd = nil
	}

	k.lock.acquire(p.cpu)

	// parent might be sleeping in wait
	if p.parent >= 0 {
		k.wakeup1(&k.procs[p.parent])
	}
	for i := range k.procs {
		q := &k.procs[i]
		if q.parent != p.index || q.state == Unused {
			continue
		}
		q.parent = k.initproc.index
		if q.state == Zombie {
			k.wakeup1(k.initproc)
		}
	}

	p.xstate = status
	p.state = Zombie
	if p.cont >= 0 && k.conts[p.cont].mustKill {
		log.WithField("cid", k.conts[p.cont].cid).Warn("container over quota, stopping")
		k.killContainerLocked(p.cont)
	}
	log.WithFields(log.Fields{"pid": p.pid, "status": status}).Debug("exit")
	p.sched()
	log.Panicf("zombie exit")
}

// Wait 等待一个子进程退出并返回它的pid
func (p *Proc) Wait() (int, error) {
	pid, _, err := p.WaitStatus()
	return pid, err
}

// WaitStatus 和Wait一样，同时返回子进程的退出状态
func (p *Proc) WaitStatus() (int, int, error) {
	k := p.k
	k.lock.acquire(p.cpu)
	for {
		havekids := false
		for i := range k.procs {
			q := &k.procs[i]
			if q.parent != p.index || q.state == Unused {
				continue
			}
			havekids = true
			if q.state != Zombie {
				continue
			}
			pid, status := q.pid, q.xstate
			kstack, pgdir := q.kstack, q.pgdir
			k.detach(q)
			k.clear(q)
			k.lock.release(p.cpu)

			if kstack != nil {
				k.mem.FreeStack(kstack)
			}
			if pgdir != nil {
				k.mem.Free(pgdir)
			}
			return pid, status, nil
		}

		if !havekids {
			k.lock.release(p.cpu)
			return -1, 0, ErrNoChildren
		}
		if p.Killed() {
			k.lock.release(p.cpu)
			return -1, 0, fmt.Errorf("wait: %w", ErrKilled)
		}
		p.Sleep(p, k.lock)
	}
}
