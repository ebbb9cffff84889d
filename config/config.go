package config

import (
	"fmt"
	"strings"
	"time"

	log "github.com/Sirupsen/logrus"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	DefaultNCPU      = 2
	DefaultNProc     = 64
	DefaultNCont     = 4
	DefaultNOFile    = 16
	DefaultNTTY      = 4
	DefaultTick      = "10ms"
	DefaultPhysPages = 57344 // 224MB
	DefaultMaxDisk   = 512000

	DefaultQuotaMaxProc = 20
	DefaultQuotaMaxMem  = 20000
	DefaultQuotaMaxDisk = 200000

	DefaultFSRoot    = "./fsroot"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"

	EnvPrefix = "XV6C_"
)

type Config struct {
	Kernel KernelConfig `koanf:"kernel"`
	Quota  QuotaConfig  `koanf:"quota"`
	FS     FSConfig     `koanf:"fs"`
	Log    LogConfig    `koanf:"log"`
}

// KernelConfig 决定启动时分配的固定表的大小
type KernelConfig struct {
	NCPU      int    `koanf:"ncpu"`
	NProc     int    `koanf:"nproc"`
	NCont     int    `koanf:"ncont"`
	NOFile    int    `koanf:"nofile"`
	NTTY      int    `koanf:"ntty"`
	Tick      string `koanf:"tick"`
	PhysPages int    `koanf:"phys_pages"`
	// MaxMem 是所有容器内存配额的上限，0表示整个页池
	MaxMem  int `koanf:"max_mem"`
	MaxDisk int `koanf:"max_disk"`
}

// QuotaConfig 是cstart传入0或者超出范围的值时使用的配额
type QuotaConfig struct {
	MaxProc int `koanf:"max_proc"`
	MaxMem  int `koanf:"max_mem"`
	MaxDisk int `koanf:"max_disk"`
}

type FSConfig struct {
	Root string `koanf:"root"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Load 依次从默认值、path指定的yaml文件(path不为空时)和XV6C_开头的环境变量
// 构建配置。变量名中的双下划线分隔各节：XV6C_KERNEL__PHYS_PAGES设置
// kernel.phys_pages
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]interface{}{
		"kernel.ncpu":       DefaultNCPU,
		"kernel.nproc":      DefaultNProc,
		"kernel.ncont":      DefaultNCont,
		"kernel.nofile":     DefaultNOFile,
		"kernel.ntty":       DefaultNTTY,
		"kernel.tick":       DefaultTick,
		"kernel.phys_pages": DefaultPhysPages,
		"kernel.max_mem":    0,
		"kernel.max_disk":   DefaultMaxDisk,
		"quota.max_proc":    DefaultQuotaMaxProc,
		"quota.max_mem":     DefaultQuotaMaxMem,
		"quota.max_disk":    DefaultQuotaMaxDisk,
		"fs.root":           DefaultFSRoot,
		"log.level":         DefaultLogLevel,
		"log.format":        DefaultLogFormat,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		log.Warnf("Load environment error %v", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 拒绝内核无法启动的表大小
func (c *Config) Validate() error {
	kc := c.Kernel
	switch {
	case kc.NCPU < 1:
		return fmt.Errorf("kernel.ncpu must be positive, got %d", kc.NCPU)
	case kc.NProc < 2:
		return fmt.Errorf("kernel.nproc must be at least 2, got %d", kc.NProc)
	case kc.NCont < 1:
		return fmt.Errorf("kernel.ncont must be positive, got %d", kc.NCont)
	case kc.NTTY < 1:
		return fmt.Errorf("kernel.ntty must be positive, got %d", kc.NTTY)
	case kc.NOFile < 3:
		return fmt.Errorf("kernel.nofile must be at least 3, got %d", kc.NOFile)
	case kc.PhysPages < kc.NProc:
		return fmt.Errorf("kernel.phys_pages %d is smaller than nproc", kc.PhysPages)
	}
	if _, err := kc.TickInterval(); err != nil {
		return err
	}
	return nil
}

// TickInterval 解析Tick，为空时使用DefaultTick
func (c KernelConfig) TickInterval() (time.Duration, error) {
	candidate := strings.TrimSpace(c.Tick)
	if candidate == "" {
		candidate = DefaultTick
	}
	d, err := time.ParseDuration(candidate)
	if err != nil {
		return 0, fmt.Errorf("parse kernel.tick %q: %w", candidate, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("kernel.tick must be positive, got %s", d)
	}
	return d, nil
}

// GlobalMaxMem 返回容器内存配额的上限(字节)
func (c KernelConfig) GlobalMaxMem(pgsize int) int {
	if c.MaxMem > 0 {
		return c.MaxMem
	}
	return c.PhysPages * pgsize
}
