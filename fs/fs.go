// Package fs 是内核的文件系统协作者。路径在一个宿主机目录中解析，
// 这个目录相当于磁盘，console就是普通的writer
package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

var (
	ErrNotExist  = errors.New("no such file or directory")
	ErrNoConsole = errors.New("no such console")
)

// Inode 是一个带引用计数的路径句柄
type Inode struct {
	Path string
	ref  int
}

// File 是带引用计数的打开文件，只有console可写
type File struct {
	Name string
	w    io.Writer
	ref  int
}

// HostFS 在宿主机目录下解析内核路径
type HostFS struct {
	mu       sync.Mutex
	root     string
	consoles []io.Writer
}

// NewHostFS 创建以宿主机目录root为根的文件系统，
// 写到console i的内容都交给consoles[i]
func NewHostFS(root string, consoles ...io.Writer) *HostFS {
	return &HostFS{
		root:     root,
		consoles: consoles,
	}
}

// HostPath 把内核路径映射为宿主机上的路径
func (f *HostFS) HostPath(path string) string {
	return filepath.Join(f.root, filepath.Clean("/"+path))
}

// Namei 查找path并返回它inode的一个新引用
func (f *HostFS) Namei(path string) (*Inode, error) {
	if _, err := os.Stat(f.HostPath(path)); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("namei %s: %w", path, ErrNotExist)
		}
		return nil, err
	}
	return &Inode{Path: filepath.Clean("/" + path), ref: 1}, nil
}

// Idup 增加ip的引用计数
func (f *HostFS) Idup(ip *Inode) *Inode {
	f.mu.Lock()
	defer f.mu.Unlock()
	ip.ref++
	return ip
}

// Iput 释放ip的一个引用
func (f *HostFS) Iput(ip *Inode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ip.ref < 1 {
		panic("iput: no references")
	}
	ip.ref--
}

// Refs 返回ip当前的引用计数
func (f *HostFS) Refs(ip *Inode) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ip.ref
}

// OpenConsole 以写方式打开console tty
func (f *HostFS) OpenConsole(tty int) (*File, error) {
	if tty < 0 || tty >= len(f.consoles) {
		return nil, fmt.Errorf("console %d: %w", tty, ErrNoConsole)
	}
	return &File{Name: fmt.Sprintf("console%d", tty), w: f.consoles[tty], ref: 1}, nil
}

// Consoles 返回console的数量
func (f *HostFS) Consoles() int {
	return len(f.consoles)
}

// Filedup 增加fl的引用计数
func (f *HostFS) Filedup(fl *File) *File {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fl.ref < 1 {
		panic("filedup")
	}
	fl.ref++
	return fl
}

// Fileclose 释放fl的一个引用
func (f *HostFS) Fileclose(fl *File) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fl.ref < 1 {
		panic("fileclose")
	}
	fl.ref--
}

// Write 把b写到文件，最后一次关闭之后的写会失败
func (f *HostFS) Write(fl *File, b []byte) (int, error) {
	f.mu.Lock()
	ref, w := fl.ref, fl.w
	f.mu.Unlock()
	if ref < 1 || w == nil {
		return 0, fmt.Errorf("write %s: file not open", fl.Name)
	}
	return w.Write(b)
}
