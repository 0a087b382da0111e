package ksched

import (
	"io"
	stdos "os"

	log "github.com/sirupsen/logrus"
)

// newLogger 给一个 OS 配一个自己的 logrus Logger。
// 每个 OS 一个，这样测试里同时起好几个 OS 也不会互相改全局的日志级别。
func newLogger(level string, out io.Writer) *log.Logger {
	logger := log.New()
	//logger.SetReportCaller(true)
	logger.SetFormatter(&log.TextFormatter{
		ForceColors: true,
	})
	if out == nil {
		out = stdos.Stderr
	}
	logger.SetOutput(out)

	lvl, err := log.ParseLevel(level)
	if err != nil {
		logger.WithError(err).WithField("log_level", level).
			Warn("[OS] bad log level, fall back to info")
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
