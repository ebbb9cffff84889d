package kernel

import (
	"fmt"

	"github.com/wanzhenyu888/xv6c/vm"

	log "github.com/Sirupsen/logrus"
)

// checkKilled 是返回用户态前的检查
func (p *Proc) checkKilled() {
	if p.Killed() {
		p.Exit(-1)
	}
}

// Kernel 返回p所在的内核
func (p *Proc) Kernel() *Kernel {
	return p.k
}

func (p *Proc) Pid() int {
	return p.pid
}

// Cid 返回p所在容器的Id，根域为0
func (p *Proc) Cid() int {
	k := p.k
	k.lock.acquire(p.cpu)
	defer k.lock.release(p.cpu)
	return p.cid
}

// Killed 判断p是否已被杀死
func (p *Proc) Killed() bool {
	return p.killed.Load()
}

func (p *Proc) Name() string {
	k := p.k
	k.lock.acquire(p.cpu)
	defer k.lock.release(p.cpu)
	return p.name
}

// SetName 设置进程列表中显示的名字
func (p *Proc) SetName(name string) {
	k := p.k
	k.lock.acquire(p.cpu)
	p.name = name
	k.lock.release(p.cpu)
}

// Size 返回p的用户内存大小(字节)
func (p *Proc) Size() int {
	return p.sz
}

// Write 把b写到p的标准输出，这样进程可以当作io.Writer使用
func (p *Proc) Write(b []byte) (int, error) {
	if len(p.ofile) < 2 || p.ofile[1] == nil {
		return 0, fmt.Errorf("write: no stdout")
	}
	return p.k.fs.Write(p.ofile[1], b)
}

// Cwd 返回p当前目录的路径
func (p *Proc) Cwd() string {
	if p.cwd == nil {
		return ""
	}
	return p.cwd.Path
}

// Sbrk 把p的内存增加n字节，n为负数时缩小，返回原来的大小。容器内的增长
// 记到容器的内存配额上。只在这里检查配额：超过内存配额或者进程位置用完
// 的容器，会在之后任一成员第一次调用Sbrk时被停止
func (p *Proc) Sbrk(n int) (int, error) {
	k := p.k
	old := p.sz
	sz := old
	switch {
	case n > 0:
		var err error
		if sz, err = k.mem.Alloc(p.pgdir, old, old+n); err != nil {
			return -1, fmt.Errorf("sbrk %d: %w", n, err)
		}
	case n < 0:
		if old+n < 0 {
			return -1, fmt.Errorf("sbrk %d: below zero", n)
		}
		sz = k.mem.Dealloc(p.pgdir, old, old+n)
	}
	k.mem.Switch(p.cpu.id, p.pgdir)

	k.lock.acquire(p.cpu)
	p.sz = sz
	if p.cont >= 0 {
		k.growproc(p, vm.PGROUNDUP(sz)-vm.PGROUNDUP(old))
	}
	k.lock.release(p.cpu)
	p.checkKilled()
	return old, nil
}

// growproc 把delta字节记到p所在的容器上，容器已被标记时停止它。
// 调用时持有k.lock
func (k *Kernel) growproc(p *Proc, delta int) {
	ci := &k.conts[p.cont]
	if delta < 0 && -delta > p.memCharged {
		delta = -p.memCharged
	}
	if delta != 0 {
		p.memCharged += delta
		if err := ci.cg.Charge("memory", delta); err != nil {
			ci.mustKill = true
		}
	}
	if ci.mustKill {
		log.WithFields(log.Fields{
			"cid":  ci.cid,
			"used": ci.cg.Usage.Mem,
			"max":  ci.cg.Resource.MaxMem,
		}).Warnf("container %d exceeded its quota", ci.cid)
		k.killContainerLocked(p.cont)
	}
}

// SleepTicks 睡眠n个时钟tick，p被杀死时提前返回ErrKilled
func (p *Proc) SleepTicks(n int) error {
	k := p.k
	k.tickslock.acquire(p.cpu)
	t0 := k.ticks.Load()
	for k.ticks.Load()-t0 < int64(n) {
		if p.Killed() {
			k.tickslock.release(p.cpu)
			return fmt.Errorf("sleep: %w", ErrKilled)
		}
		p.Sleep(&k.ticks, k.tickslock)
	}
	k.tickslock.release(p.cpu)
	return nil
}

// Uptime 返回启动以来的tick数
func (p *Proc) Uptime() int64 {
	return p.k.Ticks()
}

// ChargeDisk 记录p写入磁盘的n字节，n可以为负数。超过磁盘总量或者容器
// 配额时失败，不记任何用量
func (p *Proc) ChargeDisk(n int) error {
	k := p.k
	k.lock.acquire(p.cpu)
	defer k.lock.release(p.cpu)
	if _, ok := k.domainOf(p).(detachedDomain); ok {
		return fmt.Errorf("write %d bytes: %w", n, ErrKilled)
	}
	limit := k.cfg.Limits.Global.MaxDisk
	if n > 0 && limit > 0 && k.diskUsed+n > limit {
		return fmt.Errorf("write %d bytes: %w", n, ErrNoSpace)
	}
	if p.cont >= 0 {
		if err := k.conts[p.cont].cg.Charge("disk", n); err != nil {
			return fmt.Errorf("%w: %w", ErrDiskQuota, err)
		}
	}
	k.diskUsed += n
	if k.diskUsed < 0 {
		k.diskUsed = 0
	}
	return nil
}
