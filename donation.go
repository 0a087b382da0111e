package ksched

import log "github.com/sirupsen/logrus"

// 优先级捐赠（只在 PriorityScheduler 下）。
//
// 线程 T 阻塞在锁 L 上时，L 的持有者 H 的有效优先级至少是 T 的有效优先级；
// H 自己又阻塞在锁 L' 上的话，L' 的持有者也至少这么高，依此类推。
// 每个线程的 donors 记着所有阻塞在它持有的锁上的线程，
// 有效优先级 = max(基础优先级, 所有 donor 的有效优先级)，随时可以从头算出来。

// donate 当前线程 cur 要阻塞在 l 上：登记为 l 持有者的 donor，然后沿锁链往上传。
func (os *OS) donate(cur *Thread, l *Lock) {
	h := os.threads.lookup(l.holder)
	if h == nil {
		return
	}
	h.donors[cur.id] = struct{}{}

	os.log.WithFields(log.Fields{
		"donor":  cur,
		"holder": h,
	}).Debug("[DONATE] donate priority")
	os.propagateDonation(cur)
}

// refreshPriority 从头算 t 的有效优先级。
// 已经不在登记表里的 donor（结束了的线程）不算。
func (os *OS) refreshPriority(t *Thread) {
	p := t.basePriority
	for id := range t.donors {
		d := os.threads.lookup(id)
		if d == nil {
			continue
		}
		if d.priority > p {
			p = d.priority
		}
	}
	t.priority = p
}

// propagateDonation t 的有效优先级变了：沿着 t 等的锁的持有者一路往上重算。
// 锁链上出现了环（A 等 B 的锁，B 又等 A 的锁）就是死锁，内核 panic。
func (os *OS) propagateDonation(t *Thread) {
	for depth := 0; t.waitingOn != nil; depth++ {
		if depth > os.threads.Len() {
			panic(kernelPanic("donation cycle: lock chain from %v does not end", t))
		}
		h := os.threads.lookup(t.waitingOn.holder)
		if h == nil {
			return
		}
		os.refreshPriority(h)
		t = h
	}
}

// removeDonorsFor holder 释放 l：去掉所有因为 l 给它捐赠的线程
func (os *OS) removeDonorsFor(holder *Thread, l *Lock) {
	for id := range holder.donors {
		d := os.threads.lookup(id)
		if d == nil || d.waitingOn == l {
			delete(holder.donors, id)
		}
	}
}

// adoptWaiters holder 刚拿到 l：还在等 l 的线程都成为它的 donor
func (os *OS) adoptWaiters(holder *Thread, l *Lock) {
	l.sema.waiters.each(func(t *Thread) {
		if t != holder {
			holder.donors[t.id] = struct{}{}
		}
	})
	os.refreshPriority(holder)
}
