package ksched

import "sort"

// threadTable 是「所有线程」的登记表（all-threads registry），按 Tid 索引。
// 锁的持有者、捐赠者这些「反向引用」都只存 Tid，用的时候到这里查，
// 查不到就当没有：线程的生死归创建者管，调度器的记账不拥有线程。
// idle 线程不登记在这里。
type threadTable struct {
	threads map[Tid]*Thread
	nextTid Tid
}

func newThreadTable() *threadTable {
	return &threadTable{
		threads: map[Tid]*Thread{},
		nextTid: 1,
	}
}

// allocTid 分配一个新的 Tid
func (tt *threadTable) allocTid() Tid {
	id := tt.nextTid
	tt.nextTid++
	return id
}

func (tt *threadTable) add(t *Thread) {
	tt.threads[t.id] = t
}

func (tt *threadTable) remove(t *Thread) {
	delete(tt.threads, t.id)
}

// lookup 查线程，没有就返回 nil
func (tt *threadTable) lookup(id Tid) *Thread {
	if id == NoTid {
		return nil
	}
	return tt.threads[id]
}

// Len 登记着的线程数
func (tt *threadTable) Len() int {
	return len(tt.threads)
}

// all 按 Tid 从小到大返回所有线程
func (tt *threadTable) all() []*Thread {
	ts := make([]*Thread, 0, len(tt.threads))
	for _, t := range tt.threads {
		ts = append(ts, t)
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].id < ts[j].id })
	return ts
}
