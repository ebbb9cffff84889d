package container

import (
	"github.com/wanzhenyu888/xv6c/cgroups/subsystems"
)

var (
	RUNNING string = "running"
	PAUSED  string = "paused"
)

// ContainerInfo 是cinfo返回的一条容器记录
type ContainerInfo struct {
	Cid        int                       `json:"cid" yaml:"cid"`               // 容器Id
	Name       string                    `json:"name" yaml:"name"`             // 容器名，即根目录
	Tty        int                       `json:"tty" yaml:"tty"`               // 绑定的console
	Status     string                    `json:"status" yaml:"status"`         // 容器状态
	Quota      subsystems.ResourceConfig `json:"quota" yaml:"quota"`           // 配额
	Usage      subsystems.ResourceUsage  `json:"usage" yaml:"usage"`           // 用量
	Ticks      int                       `json:"ticks" yaml:"ticks"`           // 容器内进程累计的CPU tick
	CPUPercent int                       `json:"cpuPercent" yaml:"cpuPercent"` // ticks * 100 / 全局ticks
	MustKill   bool                      `json:"mustKill" yaml:"mustKill"`     // 是否等待被销毁
	Procs      []ProcInfo                `json:"procs" yaml:"procs"`           // 容器内的进程
}

// ProcInfo 是进程列表中的一行
type ProcInfo struct {
	Pid    int    `json:"pid" yaml:"pid"`
	Ppid   int    `json:"ppid" yaml:"ppid"`
	Cid    int    `json:"cid" yaml:"cid"` // 0表示不属于任何容器
	Name   string `json:"name" yaml:"name"`
	State  string `json:"state" yaml:"state"`
	Size   int    `json:"size" yaml:"size"` // 用户内存大小(字节)
	Ticks  int    `json:"ticks" yaml:"ticks"`
	Last   int64  `json:"last" yaml:"last"` // 最近一次被调度时的全局tick
	Killed bool   `json:"killed" yaml:"killed"`
}
