package container

import (
	"io/fs"
	"path/filepath"

	log "github.com/Sirupsen/logrus"
)

// ScanDiskUsage 统计root目录下所有普通文件的大小之和。
// init进程启动时用它得到整个磁盘的用量(tdiskused)，cstart前
// 用它得到容器根目录的初始磁盘用量。这里会做文件IO，所以必须在
// 进程表锁之外调用
func ScanDiskUsage(root string) (int, error) {
	total := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += int(info.Size())
		return nil
	})
	if err != nil {
		log.Errorf("Scan disk usage of %s error %v", root, err)
		return 0, err
	}
	return total, nil
}
