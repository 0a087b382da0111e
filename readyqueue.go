package ksched

import "container/list"

// threadQueue 是按到达顺序排的线程队列，出队时挑有效优先级最高的，
// 同优先级先来的先走。就绪队列和信号量的等待队列都是它。
//
// 优先级在排队期间会变（捐赠、MLFQS 重算），所以不在入队时排序，
// 而是出队时扫一遍。
type threadQueue struct {
	l *list.List
}

func newThreadQueue() *threadQueue {
	return &threadQueue{l: list.New()}
}

// push 放到队尾。一个线程同时只能在一个队列里。
func (q *threadQueue) push(t *Thread) {
	if t.elem != nil || t.sleepIdx >= 0 {
		panic(kernelPanic("enqueue of already queued thread %v", t))
	}
	t.elem = q.l.PushBack(t)
}

// best 返回优先级最高（同级最早）的线程，不出队；空队列返回 nil
func (q *threadQueue) best() *Thread {
	var best *Thread
	for e := q.l.Front(); e != nil; e = e.Next() {
		t := e.Value.(*Thread)
		if best == nil || t.priority > best.priority {
			best = t
		}
	}
	return best
}

// popBest 出队优先级最高（同级最早）的线程；空队列返回 nil
func (q *threadQueue) popBest() *Thread {
	t := q.best()
	if t != nil {
		q.remove(t)
	}
	return t
}

func (q *threadQueue) remove(t *Thread) {
	q.l.Remove(t.elem)
	t.elem = nil
}

// Len 排着的线程数
func (q *threadQueue) Len() int {
	return q.l.Len()
}

// each 按到达顺序遍历
func (q *threadQueue) each(fn func(t *Thread)) {
	for e := q.l.Front(); e != nil; e = e.Next() {
		fn(e.Value.(*Thread))
	}
}
