package ksched

import log "github.com/sirupsen/logrus"

// InterruptHandler 是「中断处理程序」。
// 运行在被打断的线程的上下文里，中断是关着的，不能阻塞。
type InterruptHandler func(os *OS)

// 内置的中断类型
const (
	ClockInterrupt = "ClockInterrupt"
)

// RegisterInterrupt 注册（或替换）一种中断的处理程序。
// 给外面的子系统（设备之类）用；时钟中断启动时就注册好了。
func (os *OS) RegisterInterrupt(typ string, handler InterruptHandler) {
	if handler == nil {
		panic(kernelPanic("register interrupt %q: nil handler", typ))
	}
	os.interrupts[typ] = handler
}

// Interrupt 在当前线程上触发一次 typ 中断：关中断，跑处理程序，恢复。
// 处理程序里要求让出 CPU 的（唤醒了更高优先级的线程、时间片用完），
// 在中断返回时让。
//
// 中断被关着的时候来中断，是调用方的错：真的硬件会等到开中断才送进来。
func (os *OS) Interrupt(typ string) {
	handler, ok := os.interrupts[typ]
	if !ok {
		panic(kernelPanic("unknown interrupt %q", typ))
	}
	if os.CPU.inInterrupt {
		panic(kernelPanic("nested interrupt %q", typ))
	}
	if os.CPU.level == IntrOff {
		panic(kernelPanic("interrupt %q raised with interrupts off", typ))
	}

	old := os.CPU.Disable()
	os.CPU.inInterrupt = true
	os.CPU.yieldOnReturn = false

	handler(os)

	os.CPU.inInterrupt = false
	yield := os.CPU.yieldOnReturn
	os.CPU.yieldOnReturn = false
	os.CPU.Restore(old)

	if yield {
		os.Yield()
	}
}

// Tick 是一次时钟中断。
// 模拟里没有真的硬件时钟：时间只在线程（或者 idle）调用 Tick 的时候往前走，
// 就像每执行完一条「指令」时钟走一格。
func (os *OS) Tick() {
	os.Interrupt(ClockInterrupt)
}

// HandleClockInterrupt 处理时钟中断：
// 计时、记账、调度策略的周期性工作、叫醒到点的睡眠线程、时间片轮转。
func HandleClockInterrupt(os *OS) {
	os.ticks++
	cur := os.CPU.Thread
	os.stats.tick(cur, cur == os.idle)

	os.Scheduler.tick(os)
	os.wakeSleepers()

	os.CPU.Clock++
	if os.CPU.Clock >= uint(os.cfg.TimeSlice) && os.ready.Len() > 0 {
		os.log.WithFields(log.Fields{
			"thread": cur,
			"ticks":  os.ticks,
		}).Trace("[INT] Handle ClockInterrupt: time slice used up")
		os.CPU.yieldOnReturn = true
	}
}
