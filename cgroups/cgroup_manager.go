package cgroups

import (
	"fmt"

	"github.com/wanzhenyu888/xv6c/cgroups/subsystems"

	log "github.com/Sirupsen/logrus"
)

// CgroupManager 保存一个容器的配额和用量，记账的操作
// 交给各个subsystem去处理。调用者持有进程表锁
type CgroupManager struct {
	// 容器根目录的路径
	Path string
	// 资源配额
	Resource subsystems.ResourceConfig
	// 当前用量
	Usage subsystems.ResourceUsage
}

// CgroupManager初始化
func NewCgroupManager(path string) *CgroupManager {
	return &CgroupManager{
		Path: path,
	}
}

// 设置配额，请求中为0或越界的项由各个subsystem换成默认值
func (c *CgroupManager) Set(res subsystems.ResourceConfig, lim *subsystems.Limits) {
	for _, subSysIns := range subsystems.SubsystemIns {
		subSysIns.Set(&res, lim)
	}
	c.Resource = res
}

// 在名为name的subsystem上记账delta
func (c *CgroupManager) Charge(name string, delta int) error {
	subSysIns := subsystems.Get(name)
	if subSysIns == nil {
		return fmt.Errorf("unknown subsystem %s", name)
	}
	if err := subSysIns.Charge(&c.Resource, &c.Usage, delta); err != nil {
		log.Debugf("cgroup %s charge %d: %v", c.Path, delta, err)
		return err
	}
	return nil
}

// 释放cgroup，清空所有用量和配额
func (c *CgroupManager) Destroy() {
	for _, subSysIns := range subsystems.SubsystemIns {
		subSysIns.Reset(&c.Usage)
	}
	c.Resource = subsystems.ResourceConfig{}
	c.Path = ""
}
