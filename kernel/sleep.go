package kernel

import (
	log "github.com/Sirupsen/logrus"
)

// Sleep 原子地释放lk并睡在ch上，被唤醒后重新获取lk。ch必须可比较，
// 一般用指针。
//
// 调用者检查条件时持有lk，这保证了睡眠是安全的：ch上的wakeup必须先
// 拿到lk或者表锁，而表锁是在释放lk之前获取的
func (p *Proc) Sleep(ch any, lk *Spinlock) {
	k := p.k
	if lk == nil {
		log.Panicf("sleep: pid %d without lock", p.pid)
	}
	if lk != k.lock {
		k.lock.acquire(p.cpu)
		lk.release(p.cpu)
	}

	p.wchan = ch
	p.state = Sleeping
	if ci, slot := k.pausedSlot(p); ci != nil {
		ci.saved[slot] = Sleeping
	}
	p.sched()
	p.wchan = nil

	if lk != k.lock {
		k.lock.release(p.cpu)
		lk.acquire(p.cpu)
	}
}

// Wakeup 唤醒所有睡在ch上的进程
func (p *Proc) Wakeup(ch any) {
	p.k.wakeup(p.cpu, ch)
}

func (k *Kernel) wakeup(c *cpu, ch any) {
	k.lock.acquire(c)
	k.wakeup1(ch)
	k.lock.release(c)
}

// wakeup1 调用时必须持有k.lock
func (k *Kernel) wakeup1(ch any) {
	for i := range k.procs {
		p := &k.procs[i]
		if p.state == Sleeping && p.wchan != nil && p.wchan == ch {
			k.setRunnable(p)
		}
	}
}

// setRunnable 把p置为Runnable。已暂停容器的成员保持Sleeping，
// 等容器恢复时再变为Runnable。调用时持有k.lock
func (k *Kernel) setRunnable(p *Proc) {
	p.wchan = nil
	if ci, slot := k.pausedSlot(p); ci != nil {
		ci.saved[slot] = Runnable
		p.state = Sleeping
		return
	}
	p.state = Runnable
}

// pausedSlot 在p所在容器已暂停时返回该容器和p的位置
func (k *Kernel) pausedSlot(p *Proc) (*Container, int) {
	if p.cont < 0 {
		return nil, -1
	}
	ci := &k.conts[p.cont]
	if ci.awake {
		return nil, -1
	}
	slot := ci.slotOf(p.index)
	if slot < 0 {
		return nil, -1
	}
	return ci, slot
}
