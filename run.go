package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/wanzhenyu888/xv6c/cgroups/subsystems"
	"github.com/wanzhenyu888/xv6c/config"
	"github.com/wanzhenyu888/xv6c/fs"
	"github.com/wanzhenyu888/xv6c/kernel"
	"github.com/wanzhenyu888/xv6c/user"
	"github.com/wanzhenyu888/xv6c/vm"

	log "github.com/Sirupsen/logrus"
)

// Run 启动cfg描述的内核，从in读到的行输入到console 0的shell。
// shell退出或者收到SIGINT/SIGTERM时返回
func Run(cfg *config.Config, in io.Reader, logDir string) error {
	tick, err := cfg.Kernel.TickInterval()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.FS.Root, 0o755); err != nil {
		log.Errorf("Mkdir fs root %s error %v", cfg.FS.Root, err)
		return err
	}

	consoles, closeLogs, err := openConsoles(cfg.Kernel.NTTY, logDir)
	if err != nil {
		return err
	}
	defer closeLogs()

	pool := vm.NewPool(cfg.Kernel.PhysPages)
	fsys := fs.NewHostFS(cfg.FS.Root, consoles...)
	k := kernel.New(kernel.Config{
		NCPU:   cfg.Kernel.NCPU,
		NProc:  cfg.Kernel.NProc,
		NCont:  cfg.Kernel.NCont,
		NOFile: cfg.Kernel.NOFile,
		NTTY:   cfg.Kernel.NTTY,
		Tick:   tick,
		Limits: subsystems.Limits{
			Global: subsystems.ResourceConfig{
				MaxMem:  cfg.Kernel.GlobalMaxMem(vm.PGSIZE),
				MaxDisk: cfg.Kernel.MaxDisk,
			},
			Default: subsystems.ResourceConfig{
				MaxProc: cfg.Quota.MaxProc,
				MaxMem:  cfg.Quota.MaxMem,
				MaxDisk: cfg.Quota.MaxDisk,
			},
		},
	}, pool, fsys)
	console := user.NewConsole(k)
	sys := user.NewSystem(fsys, console)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := k.Start(ctx, sys.Init()); err != nil {
		return err
	}

	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			console.Feed(scanner.Text())
		}
		console.Close()
	}()

	select {
	case <-sys.Done:
		log.Infof("shell exited, halting after %d ticks", k.Ticks())
	case <-ctx.Done():
		log.Infof("interrupted, halting after %d ticks", k.Ticks())
	}
	return nil
}

// openConsoles 返回每个console背后的writer。console 0就是终端，其他console
// 加上前缀后也显示在终端上。logDir不为空时每个console还会写到
// logDir/consoleN.log
func openConsoles(n int, logDir string) ([]io.Writer, func(), error) {
	var files []*os.File
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, nil, err
		}
	}

	var consoles []io.Writer
	for i := 0; i < n; i++ {
		var w io.Writer = os.Stdout
		if i > 0 {
			w = &prefixWriter{prefix: fmt.Sprintf("[console %d] ", i), out: os.Stdout, bol: true}
		}
		if logDir != "" {
			f, err := os.Create(consoleLog(logDir, i))
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			files = append(files, f)
			w = io.MultiWriter(w, f)
		}
		consoles = append(consoles, w)
	}
	return consoles, closeAll, nil
}

func consoleLog(logDir string, tty int) string {
	return filepath.Join(logDir, fmt.Sprintf("console%d.log", tty))
}

// prefixWriter 在输出的每一行前面加上prefix
type prefixWriter struct {
	mu     sync.Mutex
	prefix string
	out    io.Writer
	bol    bool
}

func (w *prefixWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var buf bytes.Buffer
	for _, c := range b {
		if w.bol {
			buf.WriteString(w.prefix)
		}
		buf.WriteByte(c)
		w.bol = c == '\n'
	}
	if _, err := w.out.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(b), nil
}
