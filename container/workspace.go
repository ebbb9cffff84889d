package container

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/Sirupsen/logrus"
)

// CreateWorkspace 创建一个新的容器目录，并把files拷贝进去。
// 返回拷贝的总字节数，调用者用它给磁盘记账
func CreateWorkspace(dirURL string, files []string) (int, error) {
	exist, err := PathExists(dirURL)
	if err != nil {
		log.Errorf("Fail to judge whether dir %s exists. %v", dirURL, err)
		return 0, err
	}
	if exist {
		return 0, fmt.Errorf("dir %s already exists", dirURL)
	}
	if err := os.MkdirAll(dirURL, 0o755); err != nil {
		log.Errorf("Mkdir dir %s error. %v", dirURL, err)
		return 0, err
	}

	total := 0
	for _, file := range files {
		n, err := copyFile(file, filepath.Join(dirURL, filepath.Base(file)))
		if err != nil {
			log.Errorf("Copy %s into %s error %v", file, dirURL, err)
			return total, err
		}
		total += n
	}
	return total, nil
}

func copyFile(src, dst string) (int, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return int(n), err
}

// 删除容器目录
func DeleteWorkspace(dirURL string) {
	if err := os.RemoveAll(dirURL); err != nil {
		log.Errorf("Remove dir %s error %v", dirURL, err)
	}
}

// 判断文件路径是否存在
func PathExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
