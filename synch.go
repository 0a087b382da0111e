package ksched

import log "github.com/sirupsen/logrus"

// Semaphore 计数信号量。
//
// Up 的时候有人在等，就把这一个单位直接交给等着的线程里优先级最高的
// （同级先来的），value 不加。这样被叫醒的线程醒来时手里一定有，不用重新抢。
type Semaphore struct {
	os      *OS
	value   uint
	waiters *threadQueue
}

// NewSemaphore 创建初值为 value 的信号量
func NewSemaphore(os *OS, value uint) *Semaphore {
	return &Semaphore{
		os:      os,
		value:   value,
		waiters: newThreadQueue(),
	}
}

// Down 即 P 操作：value 为正就减一，否则阻塞到有人 Up 给自己。
// 可能阻塞，不能在中断处理程序里调用。
func (s *Semaphore) Down() {
	os := s.os
	os.assertCanBlock("sema down")

	old := os.CPU.Disable()
	defer os.CPU.Restore(old)

	if s.value > 0 {
		s.value--
		return
	}
	s.waiters.push(os.CPU.Thread)
	os.runningToBlocked()
}

// TryDown 不阻塞的 Down：成功返回 true。中断处理程序里也能用。
func (s *Semaphore) TryDown() bool {
	old := s.os.CPU.Disable()
	defer s.os.CPU.Restore(old)

	if s.value == 0 {
		return false
	}
	s.value--
	return true
}

// Up 即 V 操作。被叫醒的线程比当前线程优先级高的话当前线程让出 CPU
// （在中断处理程序里就等中断返回再让）。
func (s *Semaphore) Up() {
	os := s.os
	old := os.CPU.Disable()
	defer os.CPU.Restore(old)

	t := s.waiters.popBest()
	if t == nil {
		s.value++
		return
	}
	os.blockedToReady(t)
	os.maybePreempt()
}

// Value 当前值
func (s *Semaphore) Value() uint {
	return s.value
}

// Waiters 在这个信号量上等着的线程数
func (s *Semaphore) Waiters() int {
	return s.waiters.Len()
}

// Lock 锁：初值为 1 的信号量，加上「持有者」。
// 只有持有者能释放；不能重入。
// 优先级调度下，等锁的线程把自己的有效优先级捐给持有者（可以沿着锁链一路传下去）。
type Lock struct {
	os *OS
	// holder 持有者，没人持有是 NoTid
	holder Tid
	sema   *Semaphore
}

// NewLock 创建一把没人持有的锁
func NewLock(os *OS) *Lock {
	return &Lock{
		os:   os,
		sema: NewSemaphore(os, 1),
	}
}

// Acquire 拿锁，拿不到就阻塞。
// 已经持有这把锁再 Acquire 是违反约定的。
func (l *Lock) Acquire() {
	os := l.os
	os.assertCanBlock("lock acquire")

	old := os.CPU.Disable()
	defer os.CPU.Restore(old)

	cur := os.CPU.Thread
	if l.holder == cur.id {
		panic(kernelPanic("recursive acquire of lock held by %v", cur))
	}

	if l.sema.value == 0 {
		cur.waitingOn = l
		if os.cfg.CheckDeadlock {
			os.checkWaitGraph(cur)
		}
		if os.Scheduler.donation() {
			os.donate(cur, l)
		}
		os.log.WithFields(log.Fields{
			"thread": cur,
			"holder": l.holder,
		}).Trace("[SYNCH] lock contended")
	}

	l.sema.Down()

	cur.waitingOn = nil
	l.holder = cur.id
	if os.Scheduler.donation() {
		os.adoptWaiters(cur, l)
	}
}

// TryAcquire 不阻塞地拿锁，拿到了返回 true。不捐赠。
func (l *Lock) TryAcquire() bool {
	os := l.os
	old := os.CPU.Disable()
	defer os.CPU.Restore(old)

	cur := os.CPU.Thread
	if l.holder == cur.id {
		panic(kernelPanic("recursive acquire of lock held by %v", cur))
	}
	if !l.sema.TryDown() {
		return false
	}
	l.holder = cur.id
	return true
}

// Release 释放锁。不是持有者释放是违反约定的。
//
// 因为这把锁而得到的捐赠收回，有效优先级重新算（还持有别的锁的话可能仍然有捐赠）。
// 有人在等的话，锁直接交给其中优先级最高的，剩下等着的改为给新持有者捐赠。
func (l *Lock) Release() {
	os := l.os
	old := os.CPU.Disable()
	defer os.CPU.Restore(old)

	cur := os.CPU.Thread
	if l.holder != cur.id {
		panic(kernelPanic("release of lock not held by %v (holder %d)", cur, l.holder))
	}

	l.holder = NoTid
	if os.Scheduler.donation() {
		os.removeDonorsFor(cur, l)
		os.refreshPriority(cur)
	}

	// Up 叫醒的就是这里的 best：中间没有人能改等待队列
	if next := l.sema.waiters.best(); next != nil {
		l.holder = next.id
		next.waitingOn = nil
		if os.Scheduler.donation() {
			os.adoptWaiters(next, l)
		}
	}
	l.sema.Up()
}

// HeldByCurrentThread 当前线程是否持有这把锁
func (l *Lock) HeldByCurrentThread() bool {
	cur := l.os.CPU.Thread
	return cur != nil && l.holder == cur.id
}

// Holder 持有者的 Tid，没人持有是 NoTid
func (l *Lock) Holder() Tid {
	return l.holder
}

// condWaiter 一个在条件变量上等着的线程，各自有一个初值为 0 的信号量
type condWaiter struct {
	t    *Thread
	sema *Semaphore
}

// Cond 条件变量（Mesa 语义）：Signal 只是把等着的线程叫醒，
// 醒来的线程重新拿锁以后条件未必还成立，调用方自己循环检查。
type Cond struct {
	os      *OS
	waiters []*condWaiter
}

// NewCond 创建条件变量
func NewCond(os *OS) *Cond {
	return &Cond{os: os}
}

// Wait 原子地释放 l 并等待 Signal，醒来后重新拿 l 再返回。
// 调用时必须持有 l。
func (c *Cond) Wait(l *Lock) {
	os := c.os
	os.assertCanBlock("cond wait")
	if !l.HeldByCurrentThread() {
		panic(kernelPanic("cond wait without holding the lock"))
	}

	w := &condWaiter{
		t:    os.CPU.Thread,
		sema: NewSemaphore(os, 0),
	}
	old := os.CPU.Disable()
	c.waiters = append(c.waiters, w)
	os.CPU.Restore(old)

	l.Release()
	w.sema.Down()
	l.Acquire()
}

// Signal 叫醒一个等着的线程：有效优先级最高的，同级先来的。没人等就什么也不做。
// 调用时必须持有 l。
func (c *Cond) Signal(l *Lock) {
	if !l.HeldByCurrentThread() {
		panic(kernelPanic("cond signal without holding the lock"))
	}
	c.signal()
}

// Broadcast 叫醒所有等着的线程。调用时必须持有 l。
func (c *Cond) Broadcast(l *Lock) {
	if !l.HeldByCurrentThread() {
		panic(kernelPanic("cond broadcast without holding the lock"))
	}
	for len(c.waiters) > 0 {
		c.signal()
	}
}

func (c *Cond) signal() {
	old := c.os.CPU.Disable()
	defer c.os.CPU.Restore(old)

	if len(c.waiters) == 0 {
		return
	}
	best := 0
	for i, w := range c.waiters {
		if w.t.priority > c.waiters[best].t.priority {
			best = i
		}
	}
	w := c.waiters[best]
	c.waiters = append(c.waiters[:best], c.waiters[best+1:]...)
	w.sema.Up()
}

// Waiters 在条件变量上等着的线程数
func (c *Cond) Waiters() int {
	return len(c.waiters)
}
