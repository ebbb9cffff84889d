package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/wanzhenyu888/xv6c/container"

	log "github.com/Sirupsen/logrus"
	"github.com/dustin/go-humanize"
)

// listWorkspaces 列出fs root下的每个目录，也就是可以用作容器根目录的目录，
// 以及它们的磁盘用量
func listWorkspaces(out io.Writer, root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		log.Errorf("Read dir %s error %v", root, err)
		return err
	}

	// 使用tabwriter.NewWriter在控制台打印出目录信息
	w := tabwriter.NewWriter(out, 12, 1, 3, ' ', 0)
	fmt.Fprint(w, "DIR\tFILES\tSIZE\n")
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		used, err := container.ScanDiskUsage(dir)
		if err != nil {
			continue
		}
		files, err := os.ReadDir(dir)
		if err != nil {
			log.Errorf("Read dir %s error %v", dir, err)
			continue
		}
		fmt.Fprintf(w, "/%s\t%d\t%s\n", entry.Name(), len(files), humanize.Bytes(uint64(used)))
	}
	// 刷新标准输出流缓冲区，将目录列表打印出来
	if err := w.Flush(); err != nil {
		log.Errorf("Flush error %v", err)
		return err
	}
	return nil
}
