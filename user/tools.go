package user

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/wanzhenyu888/xv6c/container"
	"github.com/wanzhenyu888/xv6c/kernel"
	"github.com/wanzhenyu888/xv6c/vm"

	"github.com/dustin/go-humanize"
)

func atoi(p *kernel.Proc, prog, s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		fmt.Fprintf(p, "%s: bad number %q\n", prog, s)
		return 0, false
	}
	return n, true
}

// ps 列出进程：根域列出所有进程及其所在容器，容器内只列出本容器的进程
func ps(sys *System, p *kernel.Proc, args []string) int {
	procs, err := p.Writeprocs()
	if err != nil {
		fmt.Fprintf(p, "ps: %v\n", err)
		return 1
	}
	if err := container.PrintProcs(p, procs, p.Cid() == 0); err != nil {
		return 1
	}
	return 0
}

func free(sys *System, p *kernel.Proc, args []string) int {
	r, err := p.Writemem()
	if err != nil {
		fmt.Fprintf(p, "free: %v\n", err)
		return 1
	}
	fmt.Fprintf(p, "total %s used %s free %s\n",
		humanize.Bytes(uint64(r.Total)), humanize.Bytes(uint64(r.Used)), humanize.Bytes(uint64(r.Free())))
	return 0
}

func df(sys *System, p *kernel.Proc, args []string) int {
	r, err := p.Dfmem()
	if err != nil {
		fmt.Fprintf(p, "df: %v\n", err)
		return 1
	}
	fmt.Fprintf(p, "total %s used %s free %s\n",
		humanize.Bytes(uint64(r.Total)), humanize.Bytes(uint64(r.Used)), humanize.Bytes(uint64(r.Free())))
	return 0
}

// stats 打印系统概况，只允许根域调用
func stats(sys *System, p *kernel.Proc, args []string) int {
	st, err := p.Printstats()
	if err != nil {
		fmt.Fprintf(p, "stats: %v\n", err)
		return 1
	}
	fmt.Fprintf(p, "uptime %d ticks, %d containers\n", st.Ticks, st.Containers)
	fmt.Fprintf(p, "max processes %d, max container memory %s, disk %s\n",
		st.Limits.MaxProc, humanize.Bytes(uint64(st.Limits.MaxMem)), humanize.Bytes(uint64(st.Limits.MaxDisk)))
	fmt.Fprintf(p, "memory %s/%s, disk %s/%s\n",
		humanize.Bytes(uint64(st.Mem.Used)), humanize.Bytes(uint64(st.Mem.Total)),
		humanize.Bytes(uint64(st.Disk.Used)), humanize.Bytes(uint64(st.Disk.Total)))
	if err := container.PrintProcs(p, st.Procs, true); err != nil {
		return 1
	}
	return 0
}

// spin 空转直到被杀死
func spin(sys *System, p *kernel.Proc, args []string) int {
	for !p.Killed() {
		p.Yield()
	}
	return 0
}

// memhog 每个tick增长一页内存，给定n时最多增长到n页
func memhog(sys *System, p *kernel.Proc, args []string) int {
	limit := -1
	if len(args) > 1 {
		n, ok := atoi(p, "memhog", args[1])
		if !ok {
			return 1
		}
		limit = n
	}
	for i := 0; limit < 0 || i < limit; i++ {
		if _, err := p.Sbrk(vm.PGSIZE); err != nil {
			fmt.Fprintf(p, "memhog: sbrk: %v\n", err)
			return 1
		}
		if err := p.SleepTicks(1); err != nil {
			return 1
		}
	}
	fmt.Fprintf(p, "memhog: grew to %s\n", humanize.Bytes(uint64(p.Size())))
	return 0
}

// forkbomb 不断fork子进程直到失败，然后回收它们
func forkbomb(sys *System, p *kernel.Proc, args []string) int {
	n := 0
	for {
		_, err := p.Fork(func(c *kernel.Proc) int {
			c.SleepTicks(10)
			return 0
		})
		if err != nil {
			fmt.Fprintf(p, "forkbomb: %d children, then %v\n", n, err)
			break
		}
		n++
	}
	for {
		if _, err := p.Wait(); err != nil {
			break
		}
	}
	return 0
}

func sleep(sys *System, p *kernel.Proc, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(p, "usage: sleep ticks")
		return 1
	}
	n, ok := atoi(p, "sleep", args[1])
	if !ok {
		return 1
	}
	if err := p.SleepTicks(n); err != nil {
		return 1
	}
	return 0
}

func echo(sys *System, p *kernel.Proc, args []string) int {
	for i, a := range args[1:] {
		if i > 0 {
			fmt.Fprint(p, " ")
		}
		fmt.Fprint(p, a)
	}
	fmt.Fprintln(p)
	return 0
}

func kill(sys *System, p *kernel.Proc, args []string) int {
	if len(args) < 2 {
		fmt.Fprintln(p, "usage: kill pid...")
		return 1
	}
	status := 0
	for _, a := range args[1:] {
		pid, ok := atoi(p, "kill", a)
		if !ok {
			status = 1
			continue
		}
		if err := p.Kill(pid); err != nil {
			fmt.Fprintf(p, "kill: %v\n", err)
			status = 1
		}
	}
	return status
}

// fill 在当前目录写一个n字节的文件，写之前先把这些字节记到磁盘配额上
func fill(sys *System, p *kernel.Proc, args []string) int {
	if len(args) < 3 {
		fmt.Fprintln(p, "usage: fill file bytes")
		return 1
	}
	n, ok := atoi(p, "fill", args[2])
	if !ok || n < 0 {
		return 1
	}
	if err := p.ChargeDisk(n); err != nil {
		fmt.Fprintf(p, "fill: %s: %v\n", args[1], err)
		return 1
	}
	path := sys.FS.HostPath(filepath.Join(p.Cwd(), args[1]))
	if err := os.WriteFile(path, make([]byte, n), 0o644); err != nil {
		p.ChargeDisk(-n)
		fmt.Fprintf(p, "fill: %v\n", err)
		return 1
	}
	fmt.Fprintf(p, "fill: wrote %s to %s\n", humanize.Bytes(uint64(n)), args[1])
	return 0
}
