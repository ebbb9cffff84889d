package user

import (
	"errors"

	"github.com/wanzhenyu888/xv6c/kernel"
)

// ErrEOF 在console关闭且已读完后由ReadLine返回
var ErrEOF = errors.New("console closed")

// Console 是console 0的输入端。宿主机写入一行行输入，进程读取，
// 没有可读内容时进程睡眠
type Console struct {
	k      *kernel.Kernel
	lk     *kernel.Spinlock
	lines  []string
	closed bool
}

func NewConsole(k *kernel.Kernel) *Console {
	return &Console{k: k, lk: kernel.NewSpinlock("cons")}
}

// Feed 放入一行输入并唤醒读者，运行在中断上下文
func (c *Console) Feed(line string) {
	c.lk.Acquire(nil)
	c.lines = append(c.lines, line)
	c.k.Wakeup(c)
	c.lk.Release(nil)
}

// Close 标记输入结束
func (c *Console) Close() {
	c.lk.Acquire(nil)
	c.closed = true
	c.k.Wakeup(c)
	c.lk.Release(nil)
}

// ReadLine 返回下一行，没有时睡眠等待
func (c *Console) ReadLine(p *kernel.Proc) (string, error) {
	c.lk.Acquire(p)
	defer c.lk.Release(p)
	for len(c.lines) == 0 {
		if c.closed {
			return "", ErrEOF
		}
		if p.Killed() {
			return "", kernel.ErrKilled
		}
		p.Sleep(c, c.lk)
	}
	line := c.lines[0]
	c.lines = c.lines[1:]
	return line, nil
}
