package user

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wanzhenyu888/xv6c/kernel"
)

// sh 从console 0读取命令，每条命令在子进程中运行。以&结尾的命令在后台
// 运行，以#开头的行是注释
func sh(sys *System, p *kernel.Proc, args []string) int {
	for {
		fmt.Fprint(p, "$ ")
		line, err := sys.Console.ReadLine(p)
		if err != nil {
			return 0
		}
		fields := strings.Fields(line)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "exit":
			return 0
		case "help":
			names := sys.Programs()
			sort.Strings(names)
			fmt.Fprintln(p, strings.Join(names, " "))
			continue
		}
		background := false
		if fields[len(fields)-1] == "&" {
			background = true
			fields = fields[:len(fields)-1]
			if len(fields) == 0 {
				continue
			}
		}

		task, err := sys.Task(fields[0], fields)
		if err != nil {
			fmt.Fprintf(p, "exec %s failed\n", fields[0])
			continue
		}
		pid, err := p.Fork(task)
		if err != nil {
			fmt.Fprintf(p, "sh: fork: %v\n", err)
			continue
		}
		if background {
			fmt.Fprintf(p, "[%d]\n", pid)
			continue
		}
		for {
			wpid, err := p.Wait()
			if err != nil || wpid == pid {
				break
			}
		}
	}
}
