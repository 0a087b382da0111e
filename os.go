package ksched

import (
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"

	log "github.com/sirupsen/logrus"

	"ksched/fixedpoint"
)

// ErrDeadlock 所有活着的线程都阻塞了，而且没有睡着的线程能把谁叫醒
var ErrDeadlock = errors.New("ksched: deadlock: every live thread is blocked")

// PanicError 是「内核 panic」：调用方违反了调度器的约定
// （解除一个没阻塞的线程、释放不是自己持有的锁……）。
// 出了这种事整个机器就停了，Boot 返回它。
type PanicError struct {
	Tid     Tid
	Thread  string
	Message string
	Stack   []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("kernel panic in thread %s#%d: %s", e.Thread, e.Tid, e.Message)
}

func kernelPanic(format string, args ...interface{}) *PanicError {
	return &PanicError{Message: fmt.Sprintf(format, args...)}
}

// OS 是模拟的「操作系统」的调度部分：持有 CPU、所有线程、就绪队列、睡眠队列
// 和 MLFQS 的 load_avg。单核。
// 所有对这些东西的修改都在关中断的情况下由正在运行的线程完成。
type OS struct {
	CPU       *CPU
	Scheduler Scheduler

	cfg Config
	log *log.Logger

	threads  *threadTable
	ready    *threadQueue
	sleepers sleepQueue
	sleepSeq uint64
	idle     *Thread

	ticks   int64
	loadAvg fixedpoint.Value

	interrupts map[string]InterruptHandler
	stats      stats

	booted bool
	done   chan struct{}
	err    error
}

// NewOS 按配置构建一个「操作系统」。
// cfg.MLFQS 决定调度器：MLFQSScheduler 或者 PriorityScheduler（带优先级捐赠）。
func NewOS(cfg Config) (*OS, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	os := &OS{
		CPU:       newCPU(),
		Scheduler: PriorityScheduler{},
		cfg:       cfg,
		log:       newLogger(cfg.LogLevel, cfg.LogOutput),
		threads:   newThreadTable(),
		ready:     newThreadQueue(),
		stats:     newStats(),
		done:      make(chan struct{}),
	}
	if cfg.MLFQS {
		os.Scheduler = MLFQSScheduler{}
	}
	os.interrupts = map[string]InterruptHandler{
		ClockInterrupt: HandleClockInterrupt,
	}
	return os, nil
}

// Config 返回启动配置
func (os *OS) Config() Config {
	return os.cfg
}

// Boot 启动操作系统：当前上下文变成 main 线程（优先级 PriDefault）去跑 main，
// 同时准备好 idle 线程。Boot 一直等到关机才返回：
//   - 所有线程都结束了：返回 nil；
//   - 所有线程都阻塞着、谁也叫不醒：返回 ErrDeadlock；
//   - 有线程违反约定（或者 panic 了）：返回 *PanicError。
//
// 启动之前用 CreateThread 建的线程已经在就绪队列里了，main 让出 CPU 后它们才跑。
// main 为 nil 时 main 线程什么也不做直接结束。
func (os *OS) Boot(main Runnable) error {
	if os.booted {
		return errors.New("ksched: OS already booted")
	}
	os.booted = true

	os.log.WithFields(log.Fields{
		"scheduler":  os.Scheduler.Name(),
		"timer_freq": os.cfg.TimerFreq,
		"time_slice": os.cfg.TimeSlice,
	}).Info("[OS] OS Boot: start scheduler")

	if main == nil {
		main = func(*OS) {}
	}
	m := newThread(os.threads.allocTid(), "main", PriDefault, main)
	os.Scheduler.initThread(os, m)
	os.threads.add(m)
	os.stats.account(m)

	os.idle = newThread(os.threads.allocTid(), "idle", PriMin, idleLoop)
	os.stats.account(os.idle)

	os.start(m)
	os.start(os.idle)

	m.status = StatusRunning
	os.CPU.Thread = m
	m.sched <- struct{}{}

	<-os.done
	return os.err
}

// start 为 t 起一个 goroutine，停在 t 的许可上，拿到许可才开始跑。
func (os *OS) start(t *Thread) {
	go func() {
		defer os.threadExit(t)
		os.CPU.park(t)
		os.CPU.Enable()
		t.runnable(os)
	}()
}

// threadExit 是线程 goroutine 最后执行的东西：
// 正常返回（或者 Exit）时把线程变成 Dying 并调度下一个；
// panic 了就停机，把 panic 变成 Boot 的返回值。
func (os *OS) threadExit(t *Thread) {
	if r := recover(); r != nil {
		os.halt(toPanicError(t, r))
		return
	}
	if os.CPU.Halted() || t == os.idle {
		return
	}
	os.CPU.Disable()
	os.runningToDying()
}

func toPanicError(t *Thread, r interface{}) *PanicError {
	pe, ok := r.(*PanicError)
	if !ok {
		pe = &PanicError{Message: fmt.Sprint(r)}
	}
	if pe.Tid == NoTid {
		pe.Tid = t.id
		pe.Thread = t.name
	}
	if pe.Stack == nil {
		pe.Stack = debug.Stack()
	}
	return pe
}

// halt 停机。err 为 nil 是正常关机。
func (os *OS) halt(err error) {
	if os.CPU.Halted() {
		return
	}
	entry := os.log.WithFields(log.Fields{
		"ticks":    os.ticks,
		"switches": os.stats.switches,
	})
	var pe *PanicError
	switch {
	case err == nil:
		entry.Info("[OS] No thread to run. Shutdown OS.")
	case errors.As(err, &pe):
		entry.WithError(err).WithField("stack", string(pe.Stack)).Error("[OS] Kernel panic. Halt.")
	default:
		entry.WithError(err).Error("[OS] Halt.")
	}

	os.err = err
	os.CPU.level = IntrOff
	close(os.CPU.halted)
	close(os.done)
}

/********* 👇 SYSTEM CALLS 👇 ***************/

// CreateThread 创建一个线程，放进就绪队列，返回它的 Tid。
// 新线程比当前线程优先级高的话，当前线程马上让出 CPU。
// MLFQS 下 priority 被忽略，优先级由调度策略算出来。
func (os *OS) CreateThread(name string, priority int, runnable Runnable) Tid {
	if priority < PriMin || priority > PriMax {
		panic(kernelPanic("create thread %q: priority %d out of range [%d, %d]", name, priority, PriMin, PriMax))
	}
	if runnable == nil {
		panic(kernelPanic("create thread %q: nil runnable", name))
	}

	old := os.CPU.Disable()
	defer os.CPU.Restore(old)

	t := newThread(os.threads.allocTid(), name, priority, runnable)
	os.Scheduler.initThread(os, t)
	os.threads.add(t)
	os.stats.account(t)
	os.start(t)

	os.log.WithField("thread", t).Debug("[OS] CreateThread")

	os.blockedToReady(t)
	os.maybePreempt()
	return t.id
}

// Current 返回正在运行的线程
func (os *OS) Current() *Thread {
	return os.CPU.Thread
}

// Thread 按 Tid 找线程，找不到（或者已经结束了）返回 nil
func (os *OS) Thread(id Tid) *Thread {
	return os.threads.lookup(id)
}

// Yield 让出 CPU：当前线程回到就绪队列，调度一次。
// 当前线程仍然是最高优先级（同级里排第一）的话会马上又被选中。
func (os *OS) Yield() {
	if os.CPU.inInterrupt {
		panic(kernelPanic("yield in interrupt context"))
	}
	old := os.CPU.Disable()
	os.runningToReady()
	os.CPU.Restore(old)
}

// Exit 结束当前线程，不返回
func (os *OS) Exit() {
	if os.CPU.inInterrupt {
		panic(kernelPanic("exit in interrupt context"))
	}
	runtime.Goexit()
}

// Block 阻塞当前线程，直到别人对它调用 Unblock。
// 调用方自己负责记住这个线程（放到自己的等待队列里）。
func (os *OS) Block() {
	os.assertCanBlock("block")
	old := os.CPU.Disable()
	os.runningToBlocked()
	os.CPU.Restore(old)
}

// Unblock 把阻塞的线程 t 变为就绪。t 不是 Blocked 状态是违反约定的。
func (os *OS) Unblock(t *Thread) {
	old := os.CPU.Disable()
	defer os.CPU.Restore(old)
	os.blockedToReady(t)
	os.maybePreempt()
}

/********* 👆 SYSTEM CALLS 👆 ***************/

/********* 👇 线程状态转换 👇 ***************/
// 以下都要求已经关中断

// runningToBlocked 阻塞当前运行的线程，并调度下一个
func (os *OS) runningToBlocked() {
	os.assertIntrOff("RunningToBlocked")
	cur := os.CPU.Thread

	os.log.WithField("thread", cur).Trace("[OS] RunningToBlocked")
	cur.status = StatusBlocked
	os.schedule()
}

// runningToReady 把当前运行的线程变成就绪，并调度。
// idle 线程不进就绪队列：就绪队列空了调度器自然会选它。
func (os *OS) runningToReady() {
	os.assertIntrOff("RunningToReady")
	cur := os.CPU.Thread

	os.log.WithField("thread", cur).Trace("[OS] RunningToReady")
	if cur == os.idle {
		cur.status = StatusBlocked
	} else {
		cur.status = StatusReady
		os.enqueueReady(cur)
	}
	os.schedule()
}

// runningToDying 把当前运行的线程标示成结束，从登记表里移除，并调度下一个
func (os *OS) runningToDying() {
	os.assertIntrOff("RunningToDying")
	cur := os.CPU.Thread

	os.log.WithField("thread", cur).Debug("[OS] RunningToDying")
	if len(cur.donors) > 0 {
		os.log.WithFields(log.Fields{
			"thread": cur,
			"donors": cur.Donors(),
		}).Warn("[OS] thread exits while still holding contended locks")
	}
	cur.status = StatusDying
	os.threads.remove(cur)
	os.schedule()
}

// blockedToReady 把阻塞中的线程 t 变为就绪状态。不会抢占，调用方自己决定要不要 maybePreempt。
func (os *OS) blockedToReady(t *Thread) {
	os.assertIntrOff("BlockedToReady")
	if t.status != StatusBlocked {
		panic(kernelPanic("unblock of thread %v which is not blocked", t))
	}

	os.log.WithField("thread", t).Trace("[OS] BlockedToReady")
	t.status = StatusReady
	os.enqueueReady(t)
}

// readyToRunning 即 dispatch：从就绪队列里取出有效优先级最高的线程
// （同级先来先走）变成运行状态；就绪队列空就是 idle。
func (os *OS) readyToRunning() *Thread {
	next := os.ready.popBest()
	if next == nil {
		next = os.idle
	}
	next.status = StatusRunning
	return next
}

/********* 👆 线程状态转换 👆 ***************/

// enqueueReady 放入就绪队列。线程必须已经是 Ready，且不在任何队列里。
func (os *OS) enqueueReady(t *Thread) {
	if t.status != StatusReady {
		panic(kernelPanic("enqueue of thread %v which is not ready", t))
	}
	os.ready.push(t)
}

// schedule 当前线程已经不是 Running 了（或者要让出），选下一个线程上 CPU
func (os *OS) schedule() {
	cur := os.CPU.Thread
	next := os.readyToRunning()
	os.CPU.Clock = 0
	if next == cur {
		return
	}

	os.stats.switches++
	os.log.WithFields(log.Fields{
		"from": cur,
		"to":   next,
	}).Trace("[CPU] Switch")
	os.CPU.Switch(cur, next)
}

// maybePreempt 就绪队列里最好的线程比正在跑的线程优先级严格更高的话，让出 CPU。
// 在中断处理程序里只做标记，等中断返回时再让。
// idle 线程遇到任何就绪线程都让。
func (os *OS) maybePreempt() {
	cur := os.CPU.Thread
	if cur == nil {
		return
	}
	best := os.ready.best()
	if best == nil {
		return
	}
	if cur != os.idle && best.priority <= cur.priority {
		return
	}
	if os.CPU.inInterrupt {
		os.CPU.yieldOnReturn = true
		return
	}
	os.Yield()
}

func (os *OS) assertIntrOff(where string) {
	if os.CPU.level != IntrOff {
		panic(kernelPanic("%s with interrupts on", where))
	}
}

func (os *OS) assertCanBlock(where string) {
	if os.CPU.inInterrupt {
		panic(kernelPanic("%s in interrupt context", where))
	}
	if os.CPU.Thread == os.idle {
		panic(kernelPanic("%s on the idle thread", where))
	}
}
