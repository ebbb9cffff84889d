package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/wanzhenyu888/xv6c/container"

	log "github.com/Sirupsen/logrus"
	"github.com/urfave/cli"
)

// 这里定义了bootCommand的Flags，其作用类似于运行命令时使用--来指定参数
var bootCommand = cli.Command{
	Name: "boot",
	Usage: `Boot the kernel and run a shell on console 0
			xv6c boot [--script file]`,
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "script",
			Usage: "read shell input from file instead of stdin",
		},
		cli.StringFlag{
			Name:  "logdir",
			Usage: "also write console N to logdir/consoleN.log",
		},
	},
	/*
	 * 这里是boot命令执行的真正函数
	 * 1. 准备shell的输入
	 * 2. 调用Run启动内核，shell退出后返回
	 */
	Action: func(context *cli.Context) error {
		in := os.Stdin
		if script := context.String("script"); script != "" {
			f, err := os.Open(script)
			if err != nil {
				return fmt.Errorf("open script %s: %v", script, err)
			}
			defer f.Close()
			in = f
		}
		return Run(conf, in, context.String("logdir"))
	},
}

// createCommand在宿主机上准备容器目录，和ctool create做的事情一样，
// 但是不经过内核，也不记账
var createCommand = cli.Command{
	Name:  "create",
	Usage: "create a container directory under the fs root: xv6c create <dir> [file...]",
	Action: func(context *cli.Context) error {
		if len(context.Args()) < 1 {
			return fmt.Errorf("Missing container directory")
		}
		dirURL := filepath.Join(conf.FS.Root, filepath.Clean("/"+context.Args().First()))
		n, err := container.CreateWorkspace(dirURL, context.Args().Tail())
		if err != nil {
			return err
		}
		log.Infof("created %s, %d bytes", dirURL, n)
		return nil
	},
}

var listCommand = cli.Command{
	Name:  "ls",
	Usage: "list the container directories under the fs root",
	Action: func(context *cli.Context) error {
		return listWorkspaces(os.Stdout, conf.FS.Root)
	},
}

var logCommand = cli.Command{
	Name:  "logs",
	Usage: "print the log of a console: xv6c logs --logdir dir <console#>",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "logdir",
			Value: "./logs",
			Usage: "directory given to boot --logdir",
		},
	},
	Action: func(context *cli.Context) error {
		if len(context.Args()) < 1 {
			return fmt.Errorf("Please input console number")
		}
		tty, err := strconv.Atoi(context.Args().First())
		if err != nil {
			return fmt.Errorf("bad console %q", context.Args().First())
		}
		return logConsole(os.Stdout, context.String("logdir"), tty)
	},
}
