package kernel

import (
	"github.com/wanzhenyu888/xv6c/cgroups/subsystems"
	"github.com/wanzhenyu888/xv6c/container"
)

// MemReport 是调用者看到的内存：根域看到整个内存池，容器内看到容器的配额。
// 单位为字节
type MemReport struct {
	Cid   int
	Total int
	Used  int
}

func (r MemReport) Free() int {
	return r.Total - r.Used
}

// DiskReport 是磁盘空间的MemReport
type DiskReport struct {
	Cid   int
	Total int
	Used  int
}

func (r DiskReport) Free() int {
	return r.Total - r.Used
}

// Stats 是Printstats返回的系统概况
type Stats struct {
	Ticks      int64
	Limits     subsystems.ResourceConfig
	Procs      []container.ProcInfo
	Containers int
	Mem        MemReport
	Disk       DiskReport
}

// Writemem 报告调用者所在域的内存用量
func (p *Proc) Writemem() (MemReport, error) {
	k := p.k
	k.lock.acquire(p.cpu)
	defer k.lock.release(p.cpu)
	return k.memReport(k.domainOf(p)), nil
}

func (k *Kernel) memReport(d domain) MemReport {
	switch d := d.(type) {
	case containedDomain:
		ci := &k.conts[d.idx]
		return MemReport{Cid: ci.cid, Total: ci.cg.Resource.MaxMem, Used: ci.cg.Usage.Mem}
	case detachedDomain:
		return MemReport{Cid: d.cid}
	}
	st := k.mem.Stat()
	return MemReport{Total: st.TotalBytes(), Used: st.UsedBytes()}
}

// Dfmem 报告调用者所在域的磁盘用量
func (p *Proc) Dfmem() (DiskReport, error) {
	k := p.k
	k.lock.acquire(p.cpu)
	defer k.lock.release(p.cpu)
	return k.diskReport(k.domainOf(p)), nil
}

func (k *Kernel) diskReport(d domain) DiskReport {
	switch d := d.(type) {
	case containedDomain:
		ci := &k.conts[d.idx]
		return DiskReport{Cid: ci.cid, Total: ci.cg.Resource.MaxDisk, Used: ci.cg.Usage.Disk}
	case detachedDomain:
		return DiskReport{Cid: d.cid}
	}
	return DiskReport{Total: k.cfg.Limits.Global.MaxDisk, Used: k.diskUsed}
}

// Writeprocs 在根域列出所有进程，在容器内只列出本容器的成员
func (p *Proc) Writeprocs() ([]container.ProcInfo, error) {
	k := p.k
	k.lock.acquire(p.cpu)
	defer k.lock.release(p.cpu)
	switch d := k.domainOf(p).(type) {
	case containedDomain:
		return k.members(d.idx), nil
	case detachedDomain:
		return nil, nil
	}
	return k.procList(), nil
}

// Printstats 汇总整个系统的信息，只允许根域调用
func (p *Proc) Printstats() (Stats, error) {
	k := p.k
	k.lock.acquire(p.cpu)
	defer k.lock.release(p.cpu)
	if err := k.requireRoot(p, "printstats"); err != nil {
		return Stats{}, err
	}
	st := Stats{
		Ticks:  k.ticks.Load(),
		Limits: k.cfg.Limits.Global,
		Procs:  k.procList(),
		Mem:    k.memReport(rootDomain{}),
		Disk:   k.diskReport(rootDomain{}),
	}
	for i := range k.conts {
		if k.conts[i].cid != 0 {
			st.Containers++
		}
	}
	return st, nil
}

// Cinfo 描述每个活动的容器，只允许根域调用
func (p *Proc) Cinfo() ([]container.ContainerInfo, error) {
	k := p.k
	k.lock.acquire(p.cpu)
	defer k.lock.release(p.cpu)
	if err := k.requireRoot(p, "cinfo"); err != nil {
		return nil, err
	}
	ticks := int(k.ticks.Load())
	var infos []container.ContainerInfo
	for i := range k.conts {
		ci := &k.conts[i]
		if ci.cid == 0 {
			continue
		}
		status := container.RUNNING
		if !ci.awake {
			status = container.PAUSED
		}
		usage := ci.cg.Usage
		usage.Procs = ci.members()
		infos = append(infos, container.ContainerInfo{
			Cid:        ci.cid,
			Name:       ci.name,
			Tty:        ci.tty,
			Status:     status,
			Quota:      ci.cg.Resource,
			Usage:      usage,
			Ticks:      ci.ticks,
			CPUPercent: percent(ci.ticks, ticks),
			MustKill:   ci.mustKill,
			Procs:      k.members(i),
		})
	}
	return infos, nil
}

func percent(n, total int) int {
	if total <= 0 {
		return 0
	}
	return n * 100 / total
}

// procList 调用时必须持有k.lock
func (k *Kernel) procList() []container.ProcInfo {
	var infos []container.ProcInfo
	for i := range k.procs {
		if k.procs[i].state != Unused {
			infos = append(infos, k.procInfo(&k.procs[i]))
		}
	}
	return infos
}

// members 调用时必须持有k.lock
func (k *Kernel) members(idx int) []container.ProcInfo {
	var infos []container.ProcInfo
	for _, pi := range k.conts[idx].procs {
		if pi >= 0 {
			infos = append(infos, k.procInfo(&k.procs[pi]))
		}
	}
	return infos
}

func (k *Kernel) procInfo(q *Proc) container.ProcInfo {
	info := container.ProcInfo{
		Pid:    q.pid,
		Name:   q.name,
		State:  q.state.String(),
		Size:   q.sz,
		Ticks:  q.ticks,
		Last:   q.lastTick,
		Killed: q.killed.Load(),
	}
	if q.parent >= 0 {
		info.Ppid = k.procs[q.parent].pid
	}
	info.Cid = q.cid
	return info
}
