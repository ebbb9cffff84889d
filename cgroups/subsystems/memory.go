package subsystems

// memory subsystem的实现
type MemorySubSystem struct{}

// 设置内存配额，0或者超过全局内存上限时使用默认值
func (s *MemorySubSystem) Set(res *ResourceConfig, lim *Limits) {
	res.MaxMem = clamp(res.MaxMem, lim.Default.MaxMem, lim.Global.MaxMem)
}

// 内存的检查是滞后的：用量总是先记下来，超出配额只返回错误，
// 由调用者决定什么时候处理
func (s *MemorySubSystem) Charge(res *ResourceConfig, use *ResourceUsage, delta int) error {
	use.Mem += delta
	if use.Mem < 0 {
		use.Mem = 0
	}
	if delta > 0 && use.Mem > res.MaxMem {
		return &QuotaError{Subsystem: s.Name(), Limit: res.MaxMem, Used: use.Mem}
	}
	return nil
}

func (s *MemorySubSystem) Reset(use *ResourceUsage) {
	use.Mem = 0
}

// 返回subsystem的名字
func (s *MemorySubSystem) Name() string {
	return "memory"
}
