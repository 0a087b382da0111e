package ksched

import (
	"container/list"
	"fmt"
	"sort"

	"ksched/fixedpoint"
)

// Runnable 是线程实际要跑的内容。
// 跑在线程自己的 goroutine 里，通过 os 调「系统调用」。返回即线程结束。
type Runnable func(os *OS)

// Tid 线程号
type Tid int

// NoTid 表示「没有线程」，合法的 Tid 从 1 开始
const NoTid Tid = 0

// Status 线程状态
type Status int

const (
	StatusRunning Status = iota
	StatusReady
	StatusBlocked
	StatusDying
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "Running"
	case StatusReady:
		return "Ready"
	case StatusBlocked:
		return "Blocked"
	case StatusDying:
		return "Dying"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// 优先级范围，数字越大越优先
const (
	PriMin     = 0
	PriDefault = 31
	PriMax     = 63
)

// nice 的范围（只有 MLFQS 用）
const (
	NiceMin     = -20
	NiceDefault = 0
	NiceMax     = 20
)

// threadNameMax 线程名最长多少字节，多了截掉
const threadNameMax = 16

// Thread 线程控制块：调度需要知道的关于一个线程的全部。
type Thread struct {
	id     Tid
	name   string
	status Status

	// priority 是有效优先级，调度只看这个；
	// basePriority 是线程自己（或创建者）设的，捐赠结束后回到这个值。
	priority     int
	basePriority int

	// donors 是正在给我捐优先级的线程：它们都阻塞在我持有的某把锁上
	donors map[Tid]struct{}
	// waitingOn 是我正阻塞着想拿的锁
	waitingOn *Lock

	// wakeTime 睡眠线程该醒的 tick
	wakeTime int64

	nice      int
	recentCPU fixedpoint.Value

	// elem 非 nil 表示在就绪队列或某个等待队列上；
	// sleepIdx >= 0 表示在睡眠队列（堆）上。两个不会同时成立。
	elem     *list.Element
	sleepIdx int
	seq      uint64

	runnable Runnable
	// sched 是这个线程的「运行许可」：拿到了才能跑
	sched chan struct{}
}

func newThread(id Tid, name string, priority int, runnable Runnable) *Thread {
	if len(name) > threadNameMax {
		name = name[:threadNameMax]
	}
	return &Thread{
		id:           id,
		name:         name,
		status:       StatusBlocked,
		priority:     priority,
		basePriority: priority,
		donors:       map[Tid]struct{}{},
		nice:         NiceDefault,
		sleepIdx:     -1,
		runnable:     runnable,
		sched:        make(chan struct{}, 1),
	}
}

// Id 线程号
func (t *Thread) Id() Tid { return t.id }

// Name 线程名
func (t *Thread) Name() string { return t.name }

// Status 线程当前状态
func (t *Thread) Status() Status { return t.status }

// Priority 有效优先级
func (t *Thread) Priority() int { return t.priority }

// BasePriority 不算捐赠的优先级
func (t *Thread) BasePriority() int { return t.basePriority }

// Nice 线程的 nice 值
func (t *Thread) Nice() int { return t.nice }

// RecentCPU 线程的 recent_cpu（定点数原值）
func (t *Thread) RecentCPU() fixedpoint.Value { return t.recentCPU }

// WakeTime 睡眠线程的唤醒时刻，只有睡着的时候有意义
func (t *Thread) WakeTime() int64 { return t.wakeTime }

// WaitingOn 线程正在等的锁，没有就是 nil
func (t *Thread) WaitingOn() *Lock { return t.waitingOn }

// Donors 返回给这个线程捐优先级的线程号，从小到大
func (t *Thread) Donors() []Tid {
	ds := make([]Tid, 0, len(t.donors))
	for id := range t.donors {
		ds = append(ds, id)
	}
	sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })
	return ds
}

func (t *Thread) String() string {
	return fmt.Sprintf("%s#%d(%s, pri %d/%d)", t.name, t.id, t.status, t.priority, t.basePriority)
}

// idleLoop 是 idle 线程：没别的线程能跑的时候跑它。
// 它负责让时间继续走（不停地打时钟中断），好把睡着的线程叫醒；
// 所有线程都结束了就关机；谁也叫不醒谁了就报死锁。
func idleLoop(os *OS) {
	for {
		switch {
		case os.threads.Len() == 0:
			os.halt(nil)
			return
		case os.ready.Len() == 0 && os.sleepers.Len() == 0:
			os.halt(ErrDeadlock)
			return
		}
		os.Tick()
	}
}
