package ksched

import (
	"container/heap"
	"time"

	log "github.com/sirupsen/logrus"
)

// 这里是模拟的「时钟设备」：计时和定时睡眠（alarm clock）。
// 睡眠不忙等：线程阻塞在睡眠队列里，时钟中断到点了把它叫醒。

// sleepQueue 是按唤醒时刻排的小根堆，同一时刻先睡的先醒
type sleepQueue []*Thread

func (q sleepQueue) Len() int { return len(q) }

func (q sleepQueue) Less(i, j int) bool {
	if q[i].wakeTime != q[j].wakeTime {
		return q[i].wakeTime < q[j].wakeTime
	}
	return q[i].seq < q[j].seq
}

func (q sleepQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].sleepIdx = i
	q[j].sleepIdx = j
}

func (q *sleepQueue) Push(x interface{}) {
	t := x.(*Thread)
	t.sleepIdx = len(*q)
	*q = append(*q, t)
}

func (q *sleepQueue) Pop() interface{} {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.sleepIdx = -1
	*q = old[:n-1]
	return t
}

// Ticks 开机以来的 tick 数
func (os *OS) Ticks() int64 {
	return os.ticks
}

// Elapsed 从 then 到现在过了多少 tick
func (os *OS) Elapsed(then int64) int64 {
	return os.ticks - then
}

// SleepUntil 让当前线程睡到第 tick 个 tick。
// tick 不在将来的话直接返回，不阻塞。不能在中断处理程序里调用。
func (os *OS) SleepUntil(tick int64) {
	os.assertCanBlock("sleep")

	old := os.CPU.Disable()
	defer os.CPU.Restore(old)

	if tick <= os.ticks {
		return
	}

	cur := os.CPU.Thread
	if cur.elem != nil || cur.sleepIdx >= 0 {
		panic(kernelPanic("sleep of already queued thread %v", cur))
	}
	cur.wakeTime = tick
	os.sleepSeq++
	cur.seq = os.sleepSeq
	heap.Push(&os.sleepers, cur)

	os.log.WithFields(log.Fields{
		"thread": cur,
		"now":    os.ticks,
		"wake":   tick,
	}).Trace("[TIMER] sleep")
	os.runningToBlocked()
}

// Sleep 让当前线程睡 ticks 个 tick，ticks <= 0 直接返回
func (os *OS) Sleep(ticks int64) {
	os.SleepUntil(os.ticks + ticks)
}

// MSleep 睡大约 ms 毫秒
func (os *OS) MSleep(ms int64) {
	os.sleepDuration(time.Duration(ms) * time.Millisecond)
}

// USleep 睡大约 us 微秒
func (os *OS) USleep(us int64) {
	os.sleepDuration(time.Duration(us) * time.Microsecond)
}

// NSleep 睡大约 ns 纳秒
func (os *OS) NSleep(ns int64) {
	os.sleepDuration(time.Duration(ns))
}

// sleepDuration 把真实时间换成 tick（向下取整）再睡。
// 不足一个 tick 的就不睡了：这里没有可以忙等的真实时间。
func (os *OS) sleepDuration(d time.Duration) {
	os.Sleep(os.durationToTicks(d))
}

func (os *OS) durationToTicks(d time.Duration) int64 {
	return int64(d) * int64(os.cfg.TimerFreq) / int64(time.Second)
}

// wakeSleepers 在时钟中断里调用：叫醒所有到点的线程（按唤醒时刻先后），
// 叫醒了谁就看看要不要抢占。
func (os *OS) wakeSleepers() {
	woke := false
	for os.sleepers.Len() > 0 && os.sleepers[0].wakeTime <= os.ticks {
		t := heap.Pop(&os.sleepers).(*Thread)
		os.log.WithFields(log.Fields{
			"thread": t,
			"now":    os.ticks,
		}).Trace("[TIMER] wake up")
		os.blockedToReady(t)
		woke = true
	}
	if woke {
		os.maybePreempt()
	}
}
