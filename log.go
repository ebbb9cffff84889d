package main

import (
	"fmt"
	"io"
	"os"

	"github.com/wanzhenyu888/xv6c/config"

	log "github.com/Sirupsen/logrus"
)

// setupLogging 按照配置设置logrus的级别和格式，日志输出到stderr，
// 不和console 0的输出混在一起
func setupLogging(cfg config.LogConfig) error {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("log level %q: %v", cfg.Level, err)
	}
	log.SetLevel(level)
	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	log.SetOutput(os.Stderr)
	return nil
}

func logConsole(out io.Writer, logDir string, tty int) error {
	// 找到对应console的日志文件
	logFileLocation := consoleLog(logDir, tty)
	// 打开日志文件
	file, err := os.Open(logFileLocation)
	if err != nil {
		log.Errorf("Log console open file %s error %v", logFileLocation, err)
		return err
	}
	defer file.Close()
	// 将文件内的内容都读取出来，输出到out
	if _, err := io.Copy(out, file); err != nil {
		log.Errorf("Log console read file %s error %v", logFileLocation, err)
		return err
	}
	return nil
}
