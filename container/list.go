package container

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
)

// PrintContainers 使用tabwriter在控制台打印出容器信息
func PrintContainers(out io.Writer, containers []ContainerInfo) error {
	w := tabwriter.NewWriter(out, 8, 1, 3, ' ', 0)
	// 控制台输出的信息列
	fmt.Fprint(w, "CID\tNAME\tTTY\tSTATUS\tPROCS\tMEM\tDISK\tCPU%\n")
	for _, item := range containers {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d/%d\t%s/%s\t%s/%s\t%d\n",
			item.Cid,
			item.Name,
			item.Tty,
			item.Status,
			item.Usage.Procs, item.Quota.MaxProc,
			humanize.Bytes(uint64(item.Usage.Mem)), humanize.Bytes(uint64(item.Quota.MaxMem)),
			humanize.Bytes(uint64(item.Usage.Disk)), humanize.Bytes(uint64(item.Quota.MaxDisk)),
			item.CPUPercent)
	}
	// 刷新缓冲区，将容器列表打印出来
	return w.Flush()
}

// PrintProcs 打印进程列表，showCid为true时多打印一列容器Id
func PrintProcs(out io.Writer, procs []ProcInfo, showCid bool) error {
	w := tabwriter.NewWriter(out, 6, 1, 2, ' ', 0)
	if showCid {
		fmt.Fprint(w, "PID\tPPID\tCID\tSTATE\tSIZE\tTICKS\tLAST\tNAME\n")
	} else {
		fmt.Fprint(w, "PID\tPPID\tSTATE\tSIZE\tTICKS\tLAST\tNAME\n")
	}
	for _, p := range procs {
		state := p.State
		if p.Killed {
			state += "*"
		}
		if showCid {
			fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\t%d\t%d\t%s\n", p.Pid, p.Ppid, p.Cid, state, humanize.Bytes(uint64(p.Size)), p.Ticks, p.Last, p.Name)
		} else {
			fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%d\t%d\t%s\n", p.Pid, p.Ppid, state, humanize.Bytes(uint64(p.Size)), p.Ticks, p.Last, p.Name)
		}
	}
	return w.Flush()
}
