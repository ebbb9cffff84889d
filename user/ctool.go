package user

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/wanzhenyu888/xv6c/cgroups/subsystems"
	"github.com/wanzhenyu888/xv6c/container"
	"github.com/wanzhenyu888/xv6c/kernel"

	"github.com/urfave/cli"
	"gopkg.in/yaml.v3"
)

const ctoolUsage = `ctool manages containers from the root domain.

   ctool start <console#> <dir> [-p N] [-m N] [-d N] prog [args...]`

// ctool 是容器管理工具，每个子命令都只是对一个内核入口的简单包装
func ctool(sys *System, p *kernel.Proc, args []string) int {
	app := cli.NewApp()
	app.Name = "ctool"
	app.Usage = ctoolUsage
	app.HideVersion = true
	app.Writer = p
	app.Commands = []cli.Command{
		startCommand(sys, p),
		createCommand(sys, p),
		infoCommand(p),
		pauseCommand(p),
		resumeCommand(p),
		stopCommand(p),
	}
	status := 0
	for i := range app.Commands {
		app.Commands[i].Action = reportErrors(p, &status, app.Commands[i].Action.(func(*cli.Context) error))
	}
	if len(args) > 1 && args[1] == "start" {
		args = append([]string{args[0], args[1]}, hoistFlags(args[2:])...)
	}
	if err := app.Run(args); err != nil {
		fmt.Fprintf(p, "ctool: %v\n", err)
		return 1
	}
	return status
}

// reportErrors 把action返回的错误打印到p上并记录失败状态。
// cli会把action的错误交给HandleExitCoder，而它会让整个宿主机进程退出，
// 所以action的错误不能返回给cli
func reportErrors(p *kernel.Proc, status *int, action func(*cli.Context) error) func(*cli.Context) error {
	return func(context *cli.Context) error {
		if err := action(context); err != nil {
			fmt.Fprintf(p, "ctool: %v\n", err)
			*status = 1
		}
		return nil
	}
}

// hoistFlags 把prog之前的-p、-m、-d参数移到位置参数前面，prog之后的参数保持不变
func hoistFlags(args []string) []string {
	var flags, pos []string
	i := 0
	for ; i < len(args) && len(pos) < 3; i++ {
		name := strings.TrimLeft(args[i], "-")
		if !strings.HasPrefix(args[i], "-") || name == "" {
			pos = append(pos, args[i])
			continue
		}
		if strings.Contains(name, "=") {
			flags = append(flags, args[i])
			continue
		}
		switch name {
		case "p", "m", "d":
			flags = append(flags, args[i])
			if i+1 < len(args) {
				flags = append(flags, args[i+1])
				i++
			}
		default:
			pos = append(pos, args[i])
		}
	}
	out := append(flags, pos...)
	return append(out, args[i:]...)
}

func cidArg(context *cli.Context) (int, error) {
	if len(context.Args()) < 1 {
		return 0, fmt.Errorf("missing container id")
	}
	cid, err := strconv.Atoi(context.Args().First())
	if err != nil {
		return 0, fmt.Errorf("bad container id %q", context.Args().First())
	}
	return cid, nil
}

func startCommand(sys *System, p *kernel.Proc) cli.Command {
	return cli.Command{
		Name:           "start",
		Usage:          "create a container and run prog as its first process",
		ArgsUsage:      "<console#> <dir> prog [args...]",
		SkipArgReorder: true,
		Flags: []cli.Flag{
			cli.IntFlag{
				Name:  "p",
				Usage: "max processes",
			},
			cli.IntFlag{
				Name:  "m",
				Usage: "max memory in bytes",
			},
			cli.IntFlag{
				Name:  "d",
				Usage: "max disk in bytes",
			},
		},
		/*
		 * 1. 只能在根容器里执行
		 * 2. 统计容器根目录的磁盘用量，作为容器的初始用量
		 * 3. cstart创建容器，cfork在容器里启动prog
		 */
		Action: func(context *cli.Context) error {
			if p.Cid() != 0 {
				return fmt.Errorf("start must be run from the root container")
			}
			if len(context.Args()) < 3 {
				return fmt.Errorf("missing arguments, usage: start %s", "<console#> <dir> prog [args...]")
			}
			tty, err := strconv.Atoi(context.Args().Get(0))
			if err != nil {
				return fmt.Errorf("bad console %q", context.Args().Get(0))
			}
			dir := context.Args().Get(1)
			progArgs := context.Args()[2:]

			task, err := sys.Task(progArgs[0], progArgs)
			if err != nil {
				return err
			}
			used, err := container.ScanDiskUsage(sys.FS.HostPath(dir))
			if err != nil {
				return fmt.Errorf("scan %s: %v", dir, err)
			}
			cid, err := p.Cstart(kernel.StartRequest{
				Tty:      tty,
				Path:     dir,
				SeedDisk: used,
				Quota: subsystems.ResourceConfig{
					MaxProc: context.Int("p"),
					MaxMem:  context.Int("m"),
					MaxDisk: context.Int("d"),
				},
			})
			if err != nil {
				return err
			}
			pid, err := p.Cfork(cid, task)
			if err != nil {
				p.Cstop(cid)
				return err
			}
			fmt.Fprintf(p, "container %d started on console %d, pid %d\n", cid, tty, pid)
			return nil
		},
	}
}

func createCommand(sys *System, p *kernel.Proc) cli.Command {
	return cli.Command{
		Name:      "create",
		Usage:     "create a directory holding copies of files",
		ArgsUsage: "<dir> [file...]",
		Action: func(context *cli.Context) error {
			if len(context.Args()) < 1 {
				return fmt.Errorf("missing directory")
			}
			dir := context.Args().First()
			var files []string
			for _, f := range context.Args().Tail() {
				files = append(files, sys.FS.HostPath(f))
			}
			dirURL := sys.FS.HostPath(dir)
			if exist, _ := container.PathExists(dirURL); exist {
				return fmt.Errorf("%s already exists", dir)
			}
			n, err := container.CreateWorkspace(dirURL, files)
			if err != nil {
				container.DeleteWorkspace(dirURL)
				return err
			}
			if err := p.ChargeDisk(n); err != nil {
				container.DeleteWorkspace(dirURL)
				return err
			}
			fmt.Fprintf(p, "created %s with %d files\n", dir, len(files))
			return nil
		},
	}
}

func infoCommand(p *kernel.Proc) cli.Command {
	return cli.Command{
		Name:  "info",
		Usage: "show every container",
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "o",
				Value: "table",
				Usage: "output format: table, json or yaml",
			},
		},
		Action: func(context *cli.Context) error {
			infos, err := p.Cinfo()
			if err != nil {
				return err
			}
			switch context.String("o") {
			case "json":
				b, err := json.MarshalIndent(infos, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(p, string(b))
			case "yaml":
				b, err := yaml.Marshal(infos)
				if err != nil {
					return err
				}
				p.Write(b)
			case "table":
				if err := container.PrintContainers(p, infos); err != nil {
					return err
				}
				for _, info := range infos {
					fmt.Fprintf(p, "\ncontainer %d:\n", info.Cid)
					if err := container.PrintProcs(p, info.Procs, false); err != nil {
						return err
					}
				}
			default:
				return fmt.Errorf("unknown output format %q", context.String("o"))
			}
			return nil
		},
	}
}

func pauseCommand(p *kernel.Proc) cli.Command {
	return cli.Command{
		Name:      "pause",
		Usage:     "stop scheduling the processes of a container",
		ArgsUsage: "<cid>",
		Action: func(context *cli.Context) error {
			cid, err := cidArg(context)
			if err != nil {
				return err
			}
			return p.Cpause(cid)
		},
	}
}

func resumeCommand(p *kernel.Proc) cli.Command {
	return cli.Command{
		Name:      "resume",
		Usage:     "resume a paused container",
		ArgsUsage: "<cid>",
		Action: func(context *cli.Context) error {
			cid, err := cidArg(context)
			if err != nil {
				return err
			}
			return p.Cresume(cid)
		},
	}
}

func stopCommand(p *kernel.Proc) cli.Command {
	return cli.Command{
		Name:      "stop",
		Usage:     "kill every process of a container and remove it",
		ArgsUsage: "<cid>",
		Action: func(context *cli.Context) error {
			cid, err := cidArg(context)
			if err != nil {
				return err
			}
			return p.Cstop(cid)
		},
	}
}
