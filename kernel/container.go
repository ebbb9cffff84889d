package kernel

import (
	"fmt"
	"path/filepath"

	"github.com/wanzhenyu888/xv6c/cgroups"
	"github.com/wanzhenyu888/xv6c/cgroups/subsystems"
	"github.com/wanzhenyu888/xv6c/fs"

	log "github.com/Sirupsen/logrus"
)

// Container 是容器表中的一项，cid为0表示空闲。所有字段都由进程表锁保护
type Container struct {
	cid  int
	name string
	tty  int
	root *fs.Inode

	// procs 存放进程表下标，-1表示空位，长度即进程配额。saved和它一一
	// 对应，记录容器暂停时每个成员的状态
	procs []int
	saved []ProcState

	awake    bool
	mustKill bool
	ticks    int

	cg *cgroups.CgroupManager
}

// freeSlot 返回第一个空位，没有则返回-1
func (ci *Container) freeSlot() int {
	for i, pi := range ci.procs {
		if pi < 0 {
			return i
		}
	}
	return -1
}

// slotOf 返回存放进程表下标pi的位置，没有则返回-1
func (ci *Container) slotOf(pi int) int {
	for i, v := range ci.procs {
		if v == pi {
			return i
		}
	}
	return -1
}

// removeProc 清空存放pi的位置，返回是否找到
func (ci *Container) removeProc(pi int) bool {
	i := ci.slotOf(pi)
	if i < 0 {
		return false
	}
	ci.procs[i] = -1
	ci.saved[i] = Unused
	return true
}

// members 统计占用的位置数
func (ci *Container) members() int {
	n := 0
	for _, pi := range ci.procs {
		if pi >= 0 {
			n++
		}
	}
	return n
}

func (ci *Container) reset() {
	ci.cid = 0
	ci.name = ""
	ci.tty = -1
	ci.root = nil
	ci.procs = ci.procs[:0]
	ci.saved = ci.saved[:0]
	ci.awake = false
	ci.mustKill = false
	ci.ticks = 0
	if ci.cg != nil {
		ci.cg.Destroy()
		ci.cg = nil
	}
}

// StartRequest 描述要创建的容器，配额字段为0时使用配置中的默认值
type StartRequest struct {
	Tty  int
	Path string
	// SeedDisk 是Path下已有的磁盘用量
	SeedDisk int
	Quota    subsystems.ResourceConfig
}

// findContainer 返回容器cid在表中的下标，没有则返回-1。调用时持有k.lock
func (k *Kernel) findContainer(cid int) int {
	if cid <= 0 {
		return -1
	}
	for i := range k.conts {
		if k.conts[i].cid == cid {
			return i
		}
	}
	return -1
}

// requireRoot 对容器内的调用者返回错误，包括正在退出的被杀死的成员。
// 调用时持有k.lock
func (k *Kernel) requireRoot(p *Proc, op string) error {
	switch k.domainOf(p).(type) {
	case rootDomain:
		return nil
	}
	return fmt.Errorf("%s: %w", op, ErrPermission)
}

// Cstart 创建一个绑定到console req.Tty、根目录为req.Path的容器，返回它的Id
func (p *Proc) Cstart(req StartRequest) (int, error) {
	k := p.k
	if req.Tty < 0 || req.Tty >= k.cfg.NTTY {
		return -1, fmt.Errorf("cstart: console %d: %w", req.Tty, ErrNoConsole)
	}
	// 查找可能阻塞，在拿锁之前做
	root, err := k.fs.Namei(req.Path)
	if err != nil {
		return -1, fmt.Errorf("cstart %s: %w: %w", req.Path, ErrNoPath, err)
	}

	k.lock.acquire(p.cpu)
	cid, err := k.cstart(p, req, root)
	k.lock.release(p.cpu)
	if err != nil {
		k.fs.Iput(root)
		return -1, err
	}
	p.checkKilled()
	return cid, nil
}

// cstart 调用时必须持有k.lock
func (k *Kernel) cstart(p *Proc, req StartRequest, root *fs.Inode) (int, error) {
	if err := k.requireRoot(p, "cstart"); err != nil {
		return -1, err
	}
	free := -1
	for i := range k.conts {
		ci := &k.conts[i]
		if ci.cid == 0 {
			if free < 0 {
				free = i
			}
			continue
		}
		if ci.tty == req.Tty {
			return -1, fmt.Errorf("cstart: console %d: %w", req.Tty, ErrConsoleBusy)
		}
	}
	if free < 0 {
		return -1, fmt.Errorf("cstart: %w", ErrNoContainerSlot)
	}

	k.nextcid++
	ci := &k.conts[free]
	ci.cid = k.nextcid
	ci.name = filepath.Clean("/" + req.Path)
	ci.tty = req.Tty
	ci.root = root
	ci.cg = cgroups.NewCgroupManager(ci.name)
	ci.cg.Set(req.Quota, &k.cfg.Limits)
	ci.cg.Usage.Disk = req.SeedDisk
	n := ci.cg.Resource.MaxProc
	ci.procs = ci.procs[:n]
	ci.saved = ci.saved[:n]
	for i := range ci.procs {
		ci.procs[i] = -1
		ci.saved[i] = Unused
	}
	ci.awake = true
	ci.mustKill = false
	ci.ticks = 0

	log.WithFields(log.Fields{
		"cid":  ci.cid,
		"path": ci.name,
		"tty":  ci.tty,
		"proc": ci.cg.Resource.MaxProc,
		"mem":  ci.cg.Resource.MaxMem,
		"disk": ci.cg.Resource.MaxDisk,
	}).Info("container started")
	return ci.cid, nil
}

// Cpause 让容器cid不再被调度。保存每个成员的状态，Runnable和Running的
// 成员置为Sleeping。暂停已暂停的容器什么也不做
func (p *Proc) Cpause(cid int) error {
	return p.withContainer("cpause", cid, func(k *Kernel, idx int) {
		ci := &k.conts[idx]
		if !ci.awake {
			return
		}
		for slot, pi := range ci.procs {
			if pi < 0 {
				continue
			}
			q := &k.procs[pi]
			ci.saved[slot] = q.state
			if q.state == Runnable || q.state == Running {
				q.state = Sleeping
			}
		}
		ci.awake = false
		log.WithField("cid", cid).Info("container paused")
	})
}

// Cresume 撤销Cpause：被暂停挡住的成员恢复保存的状态，睡在某个channel上
// 的成员继续睡眠。恢复运行中的容器什么也不做
func (p *Proc) Cresume(cid int) error {
	return p.withContainer("cresume", cid, func(k *Kernel, idx int) {
		ci := &k.conts[idx]
		if ci.awake {
			return
		}
		for slot, pi := range ci.procs {
			if pi < 0 {
				continue
			}
			q := &k.procs[pi]
			if q.state != Sleeping || q.wchan != nil {
				continue
			}
			switch ci.saved[slot] {
			case Running:
				if onCPU(q) {
					q.state = Running
				} else {
					q.state = Runnable
				}
			default:
				q.state = Runnable
			}
			ci.saved[slot] = q.state
		}
		ci.awake = true
		log.WithField("cid", cid).Info("container resumed")
	})
}

// Cstop 杀死容器cid的所有成员并释放这一项
func (p *Proc) Cstop(cid int) error {
	return p.withContainer("cstop", cid, func(k *Kernel, idx int) {
		k.killContainerLocked(idx)
	})
}

// withContainer 持有k.lock对容器cid执行fn，只允许根域调用
func (p *Proc) withContainer(op string, cid int, fn func(k *Kernel, idx int)) error {
	k := p.k
	k.lock.acquire(p.cpu)
	if err := k.requireRoot(p, op); err != nil {
		k.lock.release(p.cpu)
		return err
	}
	idx := k.findContainer(cid)
	if idx < 0 {
		k.lock.release(p.cpu)
		return fmt.Errorf("%s %d: %w", op, cid, ErrNoContainer)
	}
	fn(k, idx)
	k.lock.release(p.cpu)
	p.checkKilled()
	return nil
}

// killContainerLocked 杀死conts[idx]的所有成员并释放这一项。调用时持有k.lock
func (k *Kernel) killContainerLocked(idx int) {
	ci := &k.conts[idx]
	cid := ci.cid
	n := 0
	for _, pi := range ci.procs {
		if pi >= 0 {
			k.killLocked(&k.procs[pi])
			n++
		}
	}
	if ci.root != nil {
		k.fs.Iput(ci.root)
	}
	ci.reset()
	log.WithFields(log.Fields{"cid": cid, "killed": n}).Info("container stopped")
}
