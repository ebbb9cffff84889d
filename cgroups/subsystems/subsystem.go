package subsystems

import (
	"errors"
	"fmt"
)

// ErrQuotaExceeded 是所有配额错误的根错误，可以用 errors.Is 判断
var ErrQuotaExceeded = errors.New("quota exceeded")

// ResourceConfig 用于传递容器配额的结构体，包含进程数上限，
// 内存上限(字节)，磁盘上限(字节)
type ResourceConfig struct {
	MaxProc int `json:"maxProc" yaml:"maxProc"`
	MaxMem  int `json:"maxMem" yaml:"maxMem"`
	MaxDisk int `json:"maxDisk" yaml:"maxDisk"`
}

// ResourceUsage 容器当前的资源用量
type ResourceUsage struct {
	Procs int `json:"procs" yaml:"procs"`
	Mem   int `json:"mem" yaml:"mem"`
	Disk  int `json:"disk" yaml:"disk"`
}

// Limits 全局上限以及请求为0或越界时使用的默认配额
type Limits struct {
	Global  ResourceConfig
	Default ResourceConfig
}

// QuotaError 记录一次越界的记账
type QuotaError struct {
	Subsystem string
	Limit     int
	Used      int
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s quota exceeded: used %d, limit %d", e.Subsystem, e.Used, e.Limit)
}

func (e *QuotaError) Unwrap() error {
	return ErrQuotaExceeded
}

// Subsystem接口，每种受限资源实现下面的4个方法。
// 调用者负责加锁，subsystem本身不做同步
type Subsystem interface {
	// 返回subsystem的名字，比如pids、memory
	Name() string
	// 按照全局上限修正配额，请求值为0或越界时使用默认值
	Set(res *ResourceConfig, lim *Limits)
	// 记账delta，超出配额时返回*QuotaError
	Charge(res *ResourceConfig, use *ResourceUsage, delta int) error
	// 清空用量
	Reset(use *ResourceUsage)
}

// 通过不同的subsystem初始化实例创建资源限制处理链数组
var (
	SubsystemIns = []Subsystem{
		&PidsSubSystem{},
		&MemorySubSystem{},
		&DiskSubSystem{},
	}
)

// Get 按名字查找subsystem，找不到返回nil
func Get(name string) Subsystem {
	for _, s := range SubsystemIns {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// clamp 返回v，v不在(0, global]内时返回def，def同样不超过global
func clamp(v, def, global int) int {
	if global > 0 && def > global {
		def = global
	}
	if v <= 0 || (global > 0 && v > global) {
		return def
	}
	return v
}
