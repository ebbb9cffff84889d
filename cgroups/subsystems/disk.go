package subsystems

// disk subsystem，限制容器根目录下的磁盘用量
type DiskSubSystem struct{}

func (s *DiskSubSystem) Set(res *ResourceConfig, lim *Limits) {
	res.MaxDisk = clamp(res.MaxDisk, lim.Default.MaxDisk, lim.Global.MaxDisk)
}

// 写入会超出配额时拒绝，用量不变
func (s *DiskSubSystem) Charge(res *ResourceConfig, use *ResourceUsage, delta int) error {
	n := use.Disk + delta
	if delta > 0 && n > res.MaxDisk {
		return &QuotaError{Subsystem: s.Name(), Limit: res.MaxDisk, Used: n}
	}
	if n < 0 {
		n = 0
	}
	use.Disk = n
	return nil
}

func (s *DiskSubSystem) Reset(use *ResourceUsage) {
	use.Disk = 0
}

func (s *DiskSubSystem) Name() string {
	return "disk"
}
