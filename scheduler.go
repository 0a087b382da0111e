package ksched

import log "github.com/sirupsen/logrus"

// Scheduler 是调度策略。启动时选定，之后不变。
// 就绪队列、分派、抢占检查对两种策略都一样；
// 策略决定的是优先级从哪来、每个 tick 要做什么、有没有优先级捐赠。
type Scheduler interface {
	// Name 策略名
	Name() string

	// initThread 新线程第一次进就绪队列之前，设置它的优先级等调度状态
	initThread(os *OS, t *Thread)
	// tick 每个时钟中断调用一次，在中断上下文里
	tick(os *OS)
	// setPriority 当前线程设置自己的优先级
	setPriority(os *OS, priority int)
	// setNice 当前线程设置自己的 nice
	setNice(os *OS, nice int)
	// donation 是否启用优先级捐赠
	donation() bool
}

// PriorityScheduler 优先级调度：总是跑有效优先级最高的线程，同级轮转。
// 锁上启用优先级捐赠；nice 和 recent_cpu 不起作用。
type PriorityScheduler struct{}

func (p PriorityScheduler) Name() string { return "priority" }

func (p PriorityScheduler) initThread(os *OS, t *Thread) {}

func (p PriorityScheduler) tick(os *OS) {}

// setPriority 改基础优先级，重新算有效优先级（可能还有别人捐的），
// 自己正在等锁的话沿着持有者链往上传，最后看要不要让出 CPU。
func (p PriorityScheduler) setPriority(os *OS, priority int) {
	cur := os.CPU.Thread
	cur.basePriority = priority
	os.refreshPriority(cur)
	os.propagateDonation(cur)

	os.log.WithField("thread", cur).Debug("[SCHED] SetPriority")
	os.maybePreempt()
}

func (p PriorityScheduler) setNice(os *OS, nice int) {
	os.CPU.Thread.nice = nice
}

func (p PriorityScheduler) donation() bool { return true }

// MLFQSScheduler 多级反馈队列调度：优先级完全由 recent_cpu、nice 算出来，
// 显式设置优先级会被忽略，也没有优先级捐赠。
type MLFQSScheduler struct{}

func (m MLFQSScheduler) Name() string { return "mlfqs" }

func (m MLFQSScheduler) initThread(os *OS, t *Thread) {
	t.nice = NiceDefault
	t.recentCPU = 0
	os.mlfqsPriority(t)
}

// tick: 每个 tick 给正在跑的线程 recent_cpu 加一；
// 每秒刷新 load_avg 和所有线程的 recent_cpu；每 4 个 tick 重算所有线程的优先级。
// 两个同时到的时候先刷 recent_cpu，优先级用的是衰减后的值。
func (m MLFQSScheduler) tick(os *OS) {
	os.mlfqsIncrementRecentCPU()

	if os.ticks%int64(os.cfg.TimerFreq) == 0 {
		os.mlfqsRefreshLoadAvg()
		os.mlfqsRefreshRecentCPU()
	}
	if os.ticks%PriorityRefreshTicks == 0 {
		os.mlfqsRefreshPriority()
		os.maybePreempt()
	}
}

func (m MLFQSScheduler) setPriority(os *OS, priority int) {
	os.log.WithFields(log.Fields{
		"thread":   os.CPU.Thread,
		"priority": priority,
	}).Debug("[MLFQS] SetPriority ignored")
}

// setNice 改 nice 马上重算自己的优先级，变低了就可能让出 CPU
func (m MLFQSScheduler) setNice(os *OS, nice int) {
	cur := os.CPU.Thread
	cur.nice = nice
	os.mlfqsPriority(cur)

	os.log.WithField("thread", cur).WithField("nice", nice).Debug("[MLFQS] SetNice")
	os.maybePreempt()
}

func (m MLFQSScheduler) donation() bool { return false }
