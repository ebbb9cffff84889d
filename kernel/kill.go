package kernel

import (
	"fmt"
)

// Kill 把进程pid标记为已杀死，但不会立即停止它：睡眠中的目标会被置为
// Runnable，下次检查标记时退出。容器内的进程只能杀死同一容器的成员
func (p *Proc) Kill(pid int) error {
	k := p.k
	k.lock.acquire(p.cpu)
	err := k.kill(k.domainOf(p), pid)
	k.lock.release(p.cpu)
	p.checkKilled()
	return err
}

// kill 调用时必须持有k.lock
func (k *Kernel) kill(d domain, pid int) error {
	switch d := d.(type) {
	case rootDomain:
		for i := range k.procs {
			q := &k.procs[i]
			if q.state != Unused && q.pid == pid {
				k.killLocked(q)
				return nil
			}
		}
	case containedDomain:
		for _, pi := range k.conts[d.idx].procs {
			if pi >= 0 && k.procs[pi].pid == pid {
				k.killLocked(&k.procs[pi])
				return nil
			}
		}
	}
	return fmt.Errorf("kill %d: %w", pid, ErrNotFound)
}

// killLocked 设置killed标记，即使容器已暂停也唤醒目标，并把它移出容器
func (k *Kernel) killLocked(q *Proc) {
	q.killed.Store(true)
	if q.state == Sleeping {
		q.wchan = nil
		q.state = Runnable
		if onCPU(q) {
			q.state = Running
		}
	}
	k.detach(q)
}
