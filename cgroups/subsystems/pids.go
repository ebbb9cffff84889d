package subsystems

// pids subsystem，限制容器内同时存在的进程数
type PidsSubSystem struct{}

func (s *PidsSubSystem) Set(res *ResourceConfig, lim *Limits) {
	res.MaxProc = clamp(res.MaxProc, lim.Default.MaxProc, lim.Global.MaxProc)
}

// 进程数超限时拒绝记账，用量保持不变
func (s *PidsSubSystem) Charge(res *ResourceConfig, use *ResourceUsage, delta int) error {
	n := use.Procs + delta
	if delta > 0 && n > res.MaxProc {
		return &QuotaError{Subsystem: s.Name(), Limit: res.MaxProc, Used: n}
	}
	if n < 0 {
		n = 0
	}
	use.Procs = n
	return nil
}

func (s *PidsSubSystem) Reset(use *ResourceUsage) {
	use.Procs = 0
}

func (s *PidsSubSystem) Name() string {
	return "pids"
}
