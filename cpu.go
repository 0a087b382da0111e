package ksched

import (
	"runtime"
)

// IntrLevel 中断开关状态
type IntrLevel bool

const (
	IntrOff IntrLevel = false
	IntrOn  IntrLevel = true
)

func (l IntrLevel) String() string {
	if l {
		return "on"
	}
	return "off"
}

// CPU 处理器：是一个模拟的「CPU」。
// CPU 在某一时刻只能跑一个线程。每个线程是一个 goroutine，
// 但只有拿着「运行许可」的那个在跑，其余的都停在自己的 sched chan 上。
// 许可在 goroutine 之间一次只有一个，所以调度器的数据不用再加锁，
// 「关中断」就是它的临界区。
type CPU struct {
	// Thread 指向正在运行的线程
	Thread *Thread
	// Clock 是当前线程这次上 CPU 以来的 tick 数，到时间片长度就该让出
	Clock uint

	level         IntrLevel
	inInterrupt   bool
	yieldOnReturn bool

	// halted 关机（或者内核 panic）时关闭，所有停着的线程都会醒来退出
	halted chan struct{}
}

func newCPU() *CPU {
	return &CPU{
		level:  IntrOff,
		halted: make(chan struct{}),
	}
}

// Disable 关中断，返回之前的状态。
// 用法: old := cpu.Disable(); defer cpu.Restore(old)
func (c *CPU) Disable() IntrLevel {
	old := c.level
	c.level = IntrOff
	return old
}

// Enable 开中断，返回之前的状态
func (c *CPU) Enable() IntrLevel {
	old := c.level
	c.level = IntrOn
	return old
}

// Restore 把中断状态恢复为 old。
// 关机以后什么也不做：那时候停着的 goroutine 正在退出，不能再碰 CPU。
func (c *CPU) Restore(old IntrLevel) {
	if c.Halted() {
		return
	}
	c.level = old
}

// Level 当前中断状态
func (c *CPU) Level() IntrLevel {
	return c.level
}

// InInterrupt 是否正在中断处理程序里
func (c *CPU) InInterrupt() bool {
	return c.inInterrupt
}

// Halted 是否已经停机
func (c *CPU) Halted() bool {
	select {
	case <-c.halted:
		return true
	default:
		return false
	}
}

// Switch 把 CPU 从 cur 切换给 next：把许可交给 next，然后 cur 停下来等许可。
// cur 已经死了的话就不等了，直接返回，由它的 goroutine 自己结束。
//
// 交出许可以后，cur 这边就不能再碰任何共享的东西了，
// 所以 cur 死没死要在交出去之前看。
func (c *CPU) Switch(cur, next *Thread) {
	dying := cur.status == StatusDying
	c.Thread = next
	c.Clock = 0
	next.sched <- struct{}{}
	if dying {
		return
	}
	c.park(cur)
}

// park 让 t 的 goroutine 停下来等许可。停机了就直接结束这个 goroutine。
func (c *CPU) park(t *Thread) {
	select {
	case <-t.sched:
	case <-c.halted:
		runtime.Goexit()
	}
}
