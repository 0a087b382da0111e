package ksched

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
)

// 时钟与调度的默认参数
const (
	// DefaultTimerFreq 每秒多少个 tick
	DefaultTimerFreq = 100
	// DefaultTimeSlice 每个线程一次最多跑多少个 tick
	DefaultTimeSlice = 4
)

// ErrBadConfig 表示配置不合法
var ErrBadConfig = errors.New("ksched: bad config")

// Config 是启动 OS 时的配置。
// 启动之后就不能改了，尤其是 MLFQS：选了就是一辈子。
type Config struct {
	// MLFQS 为 true 时使用多级反馈队列调度，优先级完全由 nice/recent_cpu 算出来；
	// 为 false 时使用优先级调度 + 优先级捐赠。
	MLFQS bool `json:"mlfqs"`
	// TimerFreq 每秒的 tick 数 (TIMER_FREQ)，MLFQS 每秒刷新一次 load_avg
	TimerFreq int `json:"timer_freq"`
	// TimeSlice 时间片长度 (tick)
	TimeSlice int `json:"time_slice"`
	// LogLevel 是 logrus 的日志级别：trace, debug, info, warn, error...
	LogLevel string `json:"log_level"`
	// CheckDeadlock 为 true 时，每次在锁上阻塞之前检查等待图里有没有环
	CheckDeadlock bool `json:"check_deadlock"`

	// LogOutput 日志写到哪，nil 就是 stderr
	LogOutput io.Writer `json:"-"`
}

// DefaultConfig 返回默认配置：优先级调度，100Hz，时间片 4 tick
func DefaultConfig() Config {
	return Config{
		MLFQS:     false,
		TimerFreq: DefaultTimerFreq,
		TimeSlice: DefaultTimeSlice,
		LogLevel:  "warn",
	}
}

// LoadConfig 从 JSON 文件读配置，文件里没写的字段用默认值
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := ioutil.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate 检查配置
func (c Config) Validate() error {
	// 19 Hz 以下 8254 分频不够，1000 Hz 以上没意义
	if c.TimerFreq < 19 || c.TimerFreq > 1000 {
		return fmt.Errorf("%w: timer_freq %d not in [19, 1000]", ErrBadConfig, c.TimerFreq)
	}
	if c.TimeSlice < 1 {
		return fmt.Errorf("%w: time_slice %d < 1", ErrBadConfig, c.TimeSlice)
	}
	return nil
}
