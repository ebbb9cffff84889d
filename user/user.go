// Package user 包含运行在内核上的用户程序：init、shell以及shell启动的工具
package user

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wanzhenyu888/xv6c/container"
	"github.com/wanzhenyu888/xv6c/fs"
	"github.com/wanzhenyu888/xv6c/kernel"

	log "github.com/Sirupsen/logrus"
)

// Program 是用户程序的执行体，args[0]是程序名
type Program func(sys *System, p *kernel.Proc, args []string) int

var ErrNoProgram = errors.New("no such program")

// System 是用户程序共享的东西：文件系统、console输入和程序表
type System struct {
	FS      *fs.HostFS
	Console *Console
	// Done 在console 0上的shell退出时关闭
	Done chan struct{}

	once     sync.Once
	programs map[string]Program
}

func NewSystem(fsys *fs.HostFS, console *Console) *System {
	s := &System{
		FS:      fsys,
		Console: console,
		Done:    make(chan struct{}),
	}
	s.programs = map[string]Program{
		"sh":       sh,
		"ctool":    ctool,
		"ps":       ps,
		"free":     free,
		"df":       df,
		"stats":    stats,
		"spin":     spin,
		"memhog":   memhog,
		"forkbomb": forkbomb,
		"sleep":    sleep,
		"echo":     echo,
		"kill":     kill,
		"fill":     fill,
	}
	return s
}

// Programs 返回所有程序的名字
func (s *System) Programs() []string {
	names := make([]string, 0, len(s.programs))
	for name := range s.programs {
		names = append(names, name)
	}
	return names
}

// Task 返回一个以args运行程序name的task，args[0]应当是程序名
func (s *System) Task(name string, args []string) (kernel.Task, error) {
	prog, ok := s.programs[name]
	if !ok {
		return nil, fmt.Errorf("exec %s: %w", name, ErrNoProgram)
	}
	if len(args) == 0 {
		args = []string{name}
	}
	return func(p *kernel.Proc) int {
		p.SetName(name)
		return prog(s, p, args)
	}, nil
}

func (s *System) shutdown() {
	s.once.Do(func() {
		close(s.Done)
	})
}

// Init 返回第一个进程的task。它记录根文件系统的磁盘用量，启动shell，
// 之后一直回收孤儿进程
func (s *System) Init() kernel.Task {
	return func(p *kernel.Proc) int {
		k := p.Kernel()
		used, err := container.ScanDiskUsage(s.FS.HostPath("/"))
		if err != nil {
			log.Errorf("init: scan disk usage error %v", err)
		} else if err := k.Tdiskused(used); err != nil {
			log.Errorf("init: tdiskused error %v", err)
		}

		shell, _ := s.Task("sh", nil)
		shpid, err := p.Fork(shell)
		if err != nil {
			log.Errorf("init: fork sh error %v", err)
			s.shutdown()
		}
		log.Infof("init: starting sh pid %d", shpid)

		for {
			pid, status, err := p.WaitStatus()
			if err != nil {
				if !errors.Is(err, kernel.ErrNoChildren) {
					log.Errorf("init: wait error %v", err)
				}
				p.SleepTicks(1)
				continue
			}
			if pid == shpid {
				log.Infof("init: sh exited with status %d", status)
				s.shutdown()
				continue
			}
			log.Debugf("init: reaped zombie %d", pid)
		}
	}
}
