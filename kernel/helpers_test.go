package kernel

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wanzhenyu888/xv6c/cgroups/subsystems"
	"github.com/wanzhenyu888/xv6c/fs"
	"github.com/wanzhenyu888/xv6c/vm"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

type testKernel struct {
	*Kernel
	pool *vm.Pool
	fsys *fs.HostFS
	cons []*syncBuffer
}

func testConfig() Config {
	return Config{
		NCPU:   2,
		NProc:  16,
		NCont:  2,
		NOFile: 8,
		NTTY:   4,
		Limits: subsystems.Limits{
			Global:  subsystems.ResourceConfig{MaxMem: 256 * vm.PGSIZE, MaxDisk: 100000},
			Default: subsystems.ResourceConfig{MaxProc: 4, MaxMem: 16 * vm.PGSIZE, MaxDisk: 50000},
		},
	}
}

func newTestKernel(t *testing.T, cfg Config) *testKernel {
	root := t.TempDir()
	for _, dir := range []string{"c1", "c2", "c3"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0755))
	}
	tk := &testKernel{pool: vm.NewPool(512)}
	var writers []io.Writer
	for i := 0; i < cfg.NTTY; i++ {
		tk.cons = append(tk.cons, &syncBuffer{})
		writers = append(writers, tk.cons[i])
	}
	tk.fsys = fs.NewHostFS(root, writers...)
	tk.Kernel = New(cfg, tk.pool, tk.fsys)
	return tk
}

// boot 以body作为init运行，body返回后返回。之后init一直回收孤儿进程，直到测试结束
func (tk *testKernel) boot(t *testing.T, body func(p *Proc)) {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan struct{})
	err := tk.Start(ctx, func(p *Proc) int {
		body(p)
		close(done)
		for {
			if _, err := p.Wait(); err != nil {
				p.Yield()
			}
		}
	})
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for init")
	}
}

// stateOf 返回pid对应进程的状态，没有该进程时返回Unused
func (k *Kernel) stateOf(pid int) ProcState {
	k.lock.acquire(intr)
	defer k.lock.release(intr)
	for i := range k.procs {
		if k.procs[i].state != Unused && k.procs[i].pid == pid {
			return k.procs[i].state
		}
	}
	return Unused
}

// waitUntil 不断yield直到cond成立，几秒后放弃
func waitUntil(p *Proc, cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			return false
		}
		p.Yield()
	}
	return true
}

func spin(c *Proc) int {
	for !c.Killed() {
		c.Yield()
	}
	return 1
}

func exitWith(status int) Task {
	return func(c *Proc) int {
		return status
	}
}

// reapAll 一直等待子进程，直到没有子进程为止
func reapAll(p *Proc) []int {
	var pids []int
	for {
		pid, err := p.Wait()
		if err != nil {
			return pids
		}
		pids = append(pids, pid)
	}
}
