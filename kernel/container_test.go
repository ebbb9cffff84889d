package kernel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wanzhenyu888/xv6c/cgroups/subsystems"
	"github.com/wanzhenyu888/xv6c/container"
	"github.com/wanzhenyu888/xv6c/vm"
)

func cinfo(t *testing.T, p *Proc, cid int) (container.ContainerInfo, bool) {
	infos, err := p.Cinfo()
	assert.NoError(t, err)
	for _, info := range infos {
		if info.Cid == cid {
			return info, true
		}
	}
	return container.ContainerInfo{}, false
}

func TestCstart(t *testing.T) {
	tk := newTestKernel(t, testConfig())
	var (
		cid, cid2       int
		dupErr, pathErr error
		ttyErr, fullErr error
		quota           subsystems.ResourceConfig
		seeded          int
	)
	tk.boot(t, func(p *Proc) {
		var err error
		cid, err = p.Cstart(StartRequest{Tty: 1, Path: "/c1", SeedDisk: 1234, Quota: subsystems.ResourceConfig{MaxProc: 2}})
		assert.NoError(t, err)
		_, dupErr = p.Cstart(StartRequest{Tty: 1, Path: "/c2"})
		_, pathErr = p.Cstart(StartRequest{Tty: 2, Path: "/nope"})
		_, ttyErr = p.Cstart(StartRequest{Tty: 9, Path: "/c2"})
		cid2, err = p.Cstart(StartRequest{Tty: 2, Path: "/c2"})
		assert.NoError(t, err)
		_, fullErr = p.Cstart(StartRequest{Tty: 3, Path: "/c3"})

		info, ok := cinfo(t, p, cid)
		assert.True(t, ok)
		quota = info.Quota
		seeded = info.Usage.Disk
		assert.Equal(t, "/c1", info.Name)
		assert.Equal(t, container.RUNNING, info.Status)
	})
	assert.Greater(t, cid, 0)
	assert.Greater(t, cid2, cid)
	assert.ErrorIs(t, dupErr, ErrConsoleBusy)
	assert.ErrorIs(t, pathErr, ErrNoPath)
	assert.ErrorIs(t, ttyErr, ErrNoConsole)
	assert.ErrorIs(t, fullErr, ErrNoContainerSlot)
	assert.Equal(t, subsystems.ResourceConfig{MaxProc: 2, MaxMem: 16 * vm.PGSIZE, MaxDisk: 50000}, quota)
	assert.Equal(t, 1234, seeded)
}

func TestCforkMaxProcOne(t *testing.T) {
	tk := newTestKernel(t, testConfig())
	var (
		first, second error
		memberErr     error
		mustKill      bool
		active        bool
		reaped        int
	)
	tk.boot(t, func(p *Proc) {
		cid, err := p.Cstart(StartRequest{Tty: 1, Path: "/c1", Quota: subsystems.ResourceConfig{MaxProc: 1}})
		if !assert.NoError(t, err) {
			return
		}
		var forked atomic.Bool
		_, first = p.Cfork(cid, func(c *Proc) int {
			_, memberErr = c.Fork(exitWith(0))
			forked.Store(true)
			return spin(c)
		})
		waitUntil(p, forked.Load)
		_, second = p.Cfork(cid, spin)

		info, _ := cinfo(t, p, cid)
		mustKill = info.MustKill
		assert.Len(t, info.Procs, 1)

		assert.NoError(t, p.Cstop(cid))
		reaped = len(reapAll(p))
		_, active = cinfo(t, p, cid)
	})
	assert.NoError(t, first)
	assert.ErrorIs(t, second, ErrContainerFull)
	assert.ErrorIs(t, memberErr, ErrContainerFull)
	assert.True(t, mustKill)
	assert.Equal(t, 1, reaped)
	assert.False(t, active)
}

func TestMustKillConsumedOnExit(t *testing.T) {
	tk := newTestKernel(t, testConfig())
	var marked, active bool
	tk.boot(t, func(p *Proc) {
		cid, err := p.Cstart(StartRequest{Tty: 1, Path: "/c1", Quota: subsystems.ResourceConfig{MaxProc: 1}})
		if !assert.NoError(t, err) {
			return
		}
		var forked, checked atomic.Bool
		_, err = p.Cfork(cid, func(c *Proc) int {
			c.Fork(exitWith(0))
			forked.Store(true)
			for !checked.Load() {
				c.Yield()
			}
			return 0
		})
		assert.NoError(t, err)
		waitUntil(p, forked.Load)
		info, _ := cinfo(t, p, cid)
		marked = info.MustKill
		checked.Store(true)
		reapAll(p)
		_, active = cinfo(t, p, cid)
	})
	assert.True(t, marked)
	assert.False(t, active)
}

func TestCstopThreeMembers(t *testing.T) {
	tk := newTestKernel(t, testConfig())
	var (
		cid, cid2 int
		members   int
		reaped    []int
		states    []ProcState
		slot      int
	)
	tk.boot(t, func(p *Proc) {
		var err error
		cid, err = p.Cstart(StartRequest{Tty: 1, Path: "/c1", Quota: subsystems.ResourceConfig{MaxProc: 3}})
		if !assert.NoError(t, err) {
			return
		}
		_, err = p.Cfork(cid, func(c *Proc) int {
			c.Fork(spin)
			c.Fork(spin)
			reapAll(c)
			return 0
		})
		assert.NoError(t, err)
		waitUntil(p, func() bool {
			info, _ := cinfo(t, p, cid)
			return info.Usage.Procs == 3
		})
		info, _ := cinfo(t, p, cid)
		members = len(info.Procs)

		assert.NoError(t, p.Cstop(cid))
		for _, m := range info.Procs {
			states = append(states, tk.stateOf(m.Pid))
		}
		reaped = reapAll(p)
		assert.ErrorIs(t, p.Cstop(cid), ErrNoContainer)

		cid2, err = p.Cstart(StartRequest{Tty: 1, Path: "/c2"})
		assert.NoError(t, err)
		tk.lock.acquire(intr)
		slot = tk.findContainer(cid2)
		tk.lock.release(intr)
	})
	assert.Equal(t, 3, members)
	assert.Len(t, reaped, 3)
	for _, st := range states {
		assert.NotEqual(t, Sleeping, st)
	}
	assert.Greater(t, cid2, cid)
	assert.Equal(t, 0, slot)
}

func TestPauseResume(t *testing.T) {
	tk := newTestKernel(t, testConfig())
	var (
		paused, resumed []ProcState
		saved           []ProcState
		status          string
		sleeperAfter    ProcState
		counterStopped  bool
		again           error
	)
	lk := NewSpinlock("pause")
	var ready bool
	var counter, sleeper, seed atomic.Int64
	tk.boot(t, func(p *Proc) {
		cid, err := p.Cstart(StartRequest{Tty: 1, Path: "/c1"})
		if !assert.NoError(t, err) {
			return
		}
		_, err = p.Cfork(cid, func(c *Proc) int {
			seed.Store(int64(c.Pid()))
			pid, _ := c.Fork(func(s *Proc) int {
				lk.Acquire(s)
				for !ready {
					s.Sleep(&ready, lk)
				}
				lk.Release(s)
				return spin(s)
			})
			sleeper.Store(int64(pid))
			for !c.Killed() {
				counter.Add(1)
				c.Yield()
			}
			return 0
		})
		assert.NoError(t, err)
		waitUntil(p, func() bool {
			return sleeper.Load() > 0 && tk.stateOf(int(sleeper.Load())) == Sleeping
		})

		assert.NoError(t, p.Cpause(cid))
		again = p.Cpause(cid)
		info, _ := cinfo(t, p, cid)
		status = info.Status
		for _, m := range info.Procs {
			paused = append(paused, tk.stateOf(m.Pid))
		}
		tk.lock.acquire(intr)
		saved = append(saved, tk.conts[tk.findContainer(cid)].saved...)
		tk.lock.release(intr)

		// 运行中被暂停的成员在下一次yield时停下
		waitUntil(p, func() bool { return !tk.onCPU(int(seed.Load())) })
		n := counter.Load()
		for i := 0; i < 20; i++ {
			p.Yield()
		}
		counterStopped = counter.Load() == n

		// 暂停期间的wakeup被记下来，而不是直接生效
		lk.Acquire(p)
		ready = true
		p.Wakeup(&ready)
		lk.Release(p)
		sleeperAfter = tk.stateOf(int(sleeper.Load()))

		assert.NoError(t, p.Cresume(cid))
		assert.NoError(t, p.Cresume(cid))
		for _, m := range info.Procs {
			resumed = append(resumed, tk.stateOf(m.Pid))
		}
		assert.True(t, waitUntil(p, func() bool { return counter.Load() > n }))

		assert.NoError(t, p.Cstop(cid))
		reapAll(p)
	})
	assert.NoError(t, again)
	assert.Equal(t, container.PAUSED, status)
	require.Len(t, paused, 2)
	for _, st := range paused {
		assert.Equal(t, Sleeping, st)
	}
	assert.Contains(t, saved, Sleeping)
	assert.True(t, counterStopped)
	assert.Equal(t, Sleeping, sleeperAfter)
	require.Len(t, resumed, 2)
	for _, st := range resumed {
		assert.Contains(t, []ProcState{Runnable, Running}, st)
	}
}

func (k *Kernel) onCPU(pid int) bool {
	k.lock.acquire(intr)
	defer k.lock.release(intr)
	for i := range k.procs {
		if k.procs[i].state != Unused && k.procs[i].pid == pid {
			return onCPU(&k.procs[i])
		}
	}
	return false
}

func TestForkIntoPausedContainer(t *testing.T) {
	tk := newTestKernel(t, testConfig())
	var childState ProcState
	tk.boot(t, func(p *Proc) {
		cid, err := p.Cstart(StartRequest{Tty: 1, Path: "/c1"})
		if !assert.NoError(t, err) {
			return
		}
		var started atomic.Bool
		var child atomic.Int64
		_, err = p.Cfork(cid, func(c *Proc) int {
			started.Store(true)
			// 暂停之前一直占着CPU
			for c.k.stateOf(c.Pid()) != Sleeping {
			}
			pid, _ := c.Fork(spin)
			child.Store(int64(pid))
			return spin(c)
		})
		assert.NoError(t, err)
		waitUntil(p, started.Load)
		assert.NoError(t, p.Cpause(cid))
		waitUntil(p, func() bool { return child.Load() > 0 })
		childState = tk.stateOf(int(child.Load()))
		assert.NoError(t, p.Cresume(cid))
		assert.NoError(t, p.Cstop(cid))
		reapAll(p)
	})
	assert.Equal(t, Sleeping, childState)
}

func TestKillDomains(t *testing.T) {
	tk := newTestKernel(t, testConfig())
	var (
		outside, inside error
		afterInside     int
		afterRoot       int
	)
	tk.boot(t, func(p *Proc) {
		outsider, err := p.Fork(spin)
		if !assert.NoError(t, err) {
			return
		}
		cid, err := p.Cstart(StartRequest{Tty: 1, Path: "/c1"})
		if !assert.NoError(t, err) {
			return
		}
		var done atomic.Bool
		_, err = p.Cfork(cid, func(c *Proc) int {
			outside = c.Kill(outsider)
			pid, _ := c.Fork(spin)
			inside = c.Kill(pid)
			done.Store(true)
			return spin(c)
		})
		assert.NoError(t, err)
		waitUntil(p, done.Load)

		info, _ := cinfo(t, p, cid)
		afterInside = len(info.Procs)
		if assert.NotEmpty(t, info.Procs) {
			assert.NoError(t, p.Kill(info.Procs[0].Pid))
		}
		info, _ = cinfo(t, p, cid)
		afterRoot = len(info.Procs)

		assert.NoError(t, p.Kill(outsider))
		reapAll(p)
	})
	assert.ErrorIs(t, outside, ErrNotFound)
	assert.NoError(t, inside)
	assert.Equal(t, 1, afterInside)
	assert.Equal(t, 0, afterRoot)
}

func TestStoppedMemberStaysConfined(t *testing.T) {
	tk := newTestKernel(t, testConfig())
	var (
		cid, cid2             int
		cidAfter              int
		seen                  []container.ProcInfo
		stopErr, startErr     error
		killErr               error
		others                int
		other2Alive, outAlive bool
	)
	tk.boot(t, func(p *Proc) {
		outsider, err := p.Fork(spin)
		if !assert.NoError(t, err) {
			return
		}
		cid, err = p.Cstart(StartRequest{Tty: 1, Path: "/c1"})
		if !assert.NoError(t, err) {
			return
		}
		cid2, err = p.Cstart(StartRequest{Tty: 2, Path: "/c2"})
		if !assert.NoError(t, err) {
			return
		}
		var done atomic.Bool
		_, err = p.Cfork(cid, func(c *Proc) int {
			for !c.Killed() {
				c.Yield()
			}
			cidAfter = c.Cid()
			seen, _ = c.Writeprocs()
			stopErr = c.Cstop(cid2)
			_, startErr = c.Cstart(StartRequest{Tty: 3, Path: "/c3"})
			done.Store(true)
			killErr = c.Kill(outsider)
			return 0
		})
		assert.NoError(t, err)

		assert.NoError(t, p.Cstop(cid))
		waitUntil(p, done.Load)
		_, other2Alive = cinfo(t, p, cid2)
		infos, _ := p.Cinfo()
		others = len(infos)
		outAlive = tk.stateOf(outsider) != Zombie

		assert.NoError(t, p.Cstop(cid2))
		assert.NoError(t, p.Kill(outsider))
		reapAll(p)
	})
	assert.Equal(t, cid, cidAfter)
	assert.Empty(t, seen)
	assert.ErrorIs(t, stopErr, ErrPermission)
	assert.ErrorIs(t, startErr, ErrPermission)
	assert.ErrorIs(t, killErr, ErrNotFound)
	assert.True(t, other2Alive)
	assert.Equal(t, 1, others)
	assert.True(t, outAlive)
}

func TestKilledMemberStaysConfined(t *testing.T) {
	tk := newTestKernel(t, testConfig())
	var (
		cid      int
		cidAfter int
		seen     []container.ProcInfo
		startErr error
		dfCid    int
	)
	tk.boot(t, func(p *Proc) {
		var err error
		cid, err = p.Cstart(StartRequest{Tty: 1, Path: "/c1"})
		if !assert.NoError(t, err) {
			return
		}
		_, err = p.Cfork(cid, spin)
		assert.NoError(t, err)
		var done atomic.Bool
		victim, err := p.Cfork(cid, func(c *Proc) int {
			for !c.Killed() {
				c.Yield()
			}
			cidAfter = c.Cid()
			seen, _ = c.Writeprocs()
			if df, err := c.Dfmem(); err == nil {
				dfCid = df.Cid
			}
			_, startErr = c.Cstart(StartRequest{Tty: 2, Path: "/c2"})
			done.Store(true)
			return 0
		})
		if !assert.NoError(t, err) {
			return
		}

		assert.NoError(t, p.Kill(victim))
		waitUntil(p, done.Load)
		assert.NoError(t, p.Cstop(cid))
		reapAll(p)
	})
	assert.Equal(t, cid, cidAfter)
	assert.Equal(t, cid, dfCid)
	if assert.Len(t, seen, 1) {
		assert.Equal(t, cid, seen[0].Cid)
	}
	assert.ErrorIs(t, startErr, ErrPermission)
}

func TestContainedCallerRestrictions(t *testing.T) {
	tk := newTestKernel(t, testConfig())
	var (
		cid                        int
		cforkErr, cstartErr        error
		stopErr, infoErr, statsErr error
		gotCid                     int
		cwd                        string
		procs                      int
	)
	tk.boot(t, func(p *Proc) {
		var err error
		cid, err = p.Cstart(StartRequest{Tty: 2, Path: "/c1"})
		if !assert.NoError(t, err) {
			return
		}
		_, err = p.Cfork(cid, func(c *Proc) int {
			gotCid = c.Cid()
			cwd = c.Cwd()
			_, cforkErr = c.Cfork(cid, spin)
			_, cstartErr = c.Cstart(StartRequest{Tty: 3, Path: "/c2"})
			stopErr = c.Cstop(cid)
			_, infoErr = c.Cinfo()
			_, statsErr = c.Printstats()
			list, _ := c.Writeprocs()
			procs = len(list)
			c.Write([]byte("inside\n"))
			return 0
		})
		assert.NoError(t, err)
		reapAll(p)
	})
	assert.Equal(t, cid, gotCid)
	assert.Equal(t, "/c1", cwd)
	assert.ErrorIs(t, cforkErr, ErrPermission)
	assert.ErrorIs(t, cstartErr, ErrPermission)
	assert.ErrorIs(t, stopErr, ErrPermission)
	assert.ErrorIs(t, infoErr, ErrPermission)
	assert.ErrorIs(t, statsErr, ErrPermission)
	assert.Equal(t, 1, procs)
	assert.Equal(t, "inside\n", tk.cons[2].String())
}

func TestMemoryQuotaStopsContainer(t *testing.T) {
	tk := newTestKernel(t, testConfig())
	var (
		grown    []int
		status   int
		active   bool
		memUsed  int
		usedPool int
	)
	tk.boot(t, func(p *Proc) {
		cid, err := p.Cstart(StartRequest{Tty: 1, Path: "/c1", Quota: subsystems.ResourceConfig{MaxMem: 2 * vm.PGSIZE}})
		if !assert.NoError(t, err) {
			return
		}
		usedPool = tk.pool.Stat().Used()
		_, err = p.Cfork(cid, func(c *Proc) int {
			for i := 0; i < 3; i++ {
				if _, err := c.Sbrk(vm.PGSIZE); err != nil {
					return 9
				}
				rep, _ := c.Writemem()
				memUsed = rep.Used
				grown = append(grown, c.Size())
			}
			return 0
		})
		assert.NoError(t, err)
		_, status, _ = p.WaitStatus()
		_, active = cinfo(t, p, cid)
	})
	assert.Equal(t, []int{2 * vm.PGSIZE, 3 * vm.PGSIZE}, grown)
	assert.Equal(t, 2*vm.PGSIZE, memUsed)
	assert.Equal(t, -1, status)
	assert.False(t, active)
	assert.Equal(t, usedPool, tk.pool.Stat().Used())
}

func TestReportsByDomain(t *testing.T) {
	tk := newTestKernel(t, testConfig())
	var (
		rootMem, inMem     MemReport
		rootDisk, inDisk   DiskReport
		stats              Stats
		quotaErr, spaceErr error
		setTwice           error
	)
	tk.boot(t, func(p *Proc) {
		assert.NoError(t, tk.Tdiskused(1000))
		setTwice = tk.Tdiskused(5)
		cid, err := p.Cstart(StartRequest{Tty: 1, Path: "/c1", SeedDisk: 100, Quota: subsystems.ResourceConfig{MaxDisk: 500}})
		if !assert.NoError(t, err) {
			return
		}
		_, err = p.Cfork(cid, func(c *Proc) int {
			inMem, _ = c.Writemem()
			assert.NoError(t, c.ChargeDisk(300))
			quotaErr = c.ChargeDisk(200)
			inDisk, _ = c.Dfmem()
			return 0
		})
		assert.NoError(t, err)
		reapAll(p)
		spaceErr = p.ChargeDisk(1 << 20)
		rootMem, _ = p.Writemem()
		rootDisk, _ = p.Dfmem()
		stats, _ = p.Printstats()
	})
	assert.ErrorIs(t, setTwice, ErrAlreadySet)
	assert.Equal(t, 16*vm.PGSIZE, inMem.Total)
	assert.Equal(t, 0, inMem.Used)
	assert.Equal(t, DiskReport{Cid: inDisk.Cid, Total: 500, Used: 400}, inDisk)
	assert.ErrorIs(t, quotaErr, ErrDiskQuota)
	assert.ErrorIs(t, quotaErr, subsystems.ErrQuotaExceeded)
	assert.ErrorIs(t, spaceErr, ErrNoSpace)
	assert.Equal(t, 512*vm.PGSIZE, rootMem.Total)
	assert.Equal(t, 1300, rootDisk.Used)
	assert.Equal(t, 100000, rootDisk.Total)
	assert.Equal(t, 1, stats.Containers)
	assert.Len(t, stats.Procs, 1)
}

func TestCPUPercent(t *testing.T) {
	assert.Equal(t, 0, percent(5, 0))
	assert.Equal(t, 50, percent(5, 10))
	assert.Equal(t, 100, percent(10, 10))
}
