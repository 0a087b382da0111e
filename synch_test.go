package ksched

import (
	"reflect"
	"testing"
)

func TestSemaphoreWakesByPriority(t *testing.T) {
	os := newTestOS(t, false)

	var order []string
	err := os.Boot(func(os *OS) {
		sema := NewSemaphore(os, 0)
		os.SetPriority(PriMin)

		for _, w := range []struct {
			name     string
			priority int
		}{{"w10", 10}, {"x20", 20}, {"y20", 20}, {"w30", 30}} {
			w := w
			os.CreateThread(w.name, w.priority, func(os *OS) {
				sema.Down()
				order = append(order, w.name)
			})
		}
		if n := sema.Waiters(); n != 4 {
			t.Errorf("waiters = %d, want 4", n)
		}
		for i := 0; i < 4; i++ {
			sema.Up()
		}
		order = append(order, "main")
	})
	if err != nil {
		t.Fatalf("Boot() = %v", err)
	}

	want := []string{"w30", "x20", "y20", "w10", "main"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestSemaphoreHandOff(t *testing.T) {
	os := newTestOS(t, false)

	var (
		order  []string
		stolen bool
		value  uint
	)
	err := os.Boot(func(os *OS) {
		sema := NewSemaphore(os, 0)
		os.CreateThread("low", 10, func(os *OS) {
			sema.Down()
			order = append(order, "low")
		})
		os.Yield() // low 比 main 低，Yield 不会让给它
		os.SetPriority(5)
		// low 已经阻塞在 sema 上了
		os.SetPriority(20)

		sema.Up()
		stolen = sema.TryDown()
		value = sema.Value()
		order = append(order, "main")
	})
	if err != nil {
		t.Fatalf("Boot() = %v", err)
	}

	if stolen {
		t.Errorf("TryDown succeeded after Up handed the unit to a waiter")
	}
	if value != 0 {
		t.Errorf("value = %d, want 0", value)
	}
	want := []string{"main", "low"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestSemaphoreCounting(t *testing.T) {
	os := newTestOS(t, false)

	var got []bool
	err := os.Boot(func(os *OS) {
		sema := NewSemaphore(os, 2)
		sema.Down()
		got = append(got, sema.TryDown(), sema.TryDown())
		sema.Up()
		got = append(got, sema.TryDown())
	})
	if err != nil {
		t.Fatalf("Boot() = %v", err)
	}

	want := []bool{true, false, true}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TryDown results = %v, want %v", got, want)
	}
}

func TestLockMutualExclusion(t *testing.T) {
	os := newTestOS(t, false)

	var (
		inside  int
		maxSeen int
		total   int
	)
	err := os.Boot(func(os *OS) {
		lock := NewLock(os)
		worker := func(os *OS) {
			for i := 0; i < 5; i++ {
				lock.Acquire()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				os.Tick()
				os.Tick()
				total++
				inside--
				lock.Release()
				os.Tick()
			}
		}
		for _, name := range []string{"a", "b", "c"} {
			os.CreateThread(name, PriDefault, worker)
		}
	})
	if err != nil {
		t.Fatalf("Boot() = %v", err)
	}

	if maxSeen != 1 {
		t.Errorf("%d threads inside the critical section at once", maxSeen)
	}
	if total != 15 {
		t.Errorf("total = %d, want 15", total)
	}
}

func TestLockTryAcquire(t *testing.T) {
	os := newTestOS(t, false)

	var got []bool
	var holder, holderAfter Tid
	var self Tid
	err := os.Boot(func(os *OS) {
		self = os.CurrentTid()
		lock := NewLock(os)
		got = append(got, lock.TryAcquire(), lock.HeldByCurrentThread())
		holder = lock.Holder()

		os.CreateThread("other", 40, func(os *OS) {
			got = append(got, lock.TryAcquire())
		})

		lock.Release()
		holderAfter = lock.Holder()
		got = append(got, lock.HeldByCurrentThread())
	})
	if err != nil {
		t.Fatalf("Boot() = %v", err)
	}

	want := []bool{true, true, false, false}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("results = %v, want %v", got, want)
	}
	if holder != self {
		t.Errorf("holder = %d, want %d", holder, self)
	}
	if holderAfter != NoTid {
		t.Errorf("holder after release = %d, want NoTid", holderAfter)
	}
}

func TestLockReleaseNotHeldPanics(t *testing.T) {
	os := newTestOS(t, false)

	err := os.Boot(func(os *OS) {
		NewLock(os).Release()
	})
	wantPanic(t, err, "release of lock not held")
}

func TestLockReleaseByOtherPanics(t *testing.T) {
	os := newTestOS(t, false)

	err := os.Boot(func(os *OS) {
		lock := NewLock(os)
		lock.Acquire()
		os.CreateThread("thief", 40, func(os *OS) {
			lock.Release()
		})
	})
	pe := wantPanic(t, err, "release of lock not held")
	if pe.Thread != "thief" {
		t.Errorf("panic in thread %q, want thief", pe.Thread)
	}
}

func TestLockRecursiveAcquirePanics(t *testing.T) {
	os := newTestOS(t, false)

	err := os.Boot(func(os *OS) {
		lock := NewLock(os)
		lock.Acquire()
		lock.Acquire()
	})
	wantPanic(t, err, "recursive acquire")
}

// condWaiters 让 main 降到最低，再建几个等在 cond 上的线程（它们一建就抢到 CPU）
func condWaiters(os *OS, lock *Lock, cond *Cond, priorities []int, order *[]int) {
	os.SetPriority(PriMin + 1)
	for _, p := range priorities {
		p := p
		os.CreateThread("waiter", p, func(os *OS) {
			lock.Acquire()
			cond.Wait(lock)
			*order = append(*order, p)
			lock.Release()
		})
	}
}

func TestCondSignalByPriority(t *testing.T) {
	os := newTestOS(t, false)

	var order []int
	var waiters int
	err := os.Boot(func(os *OS) {
		lock := NewLock(os)
		cond := NewCond(os)
		condWaiters(os, lock, cond, []int{10, 30, 20, 20}, &order)
		waiters = cond.Waiters()

		lock.Acquire()
		for i := 0; i < 4; i++ {
			cond.Signal(lock)
		}
		cond.Signal(lock) // 没人等了，什么也不做
		lock.Release()
	})
	if err != nil {
		t.Fatalf("Boot() = %v", err)
	}

	if waiters != 4 {
		t.Errorf("cond waiters = %d, want 4", waiters)
	}
	want := []int{30, 20, 20, 10}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestCondBroadcast(t *testing.T) {
	os := newTestOS(t, false)

	var order []int
	err := os.Boot(func(os *OS) {
		lock := NewLock(os)
		cond := NewCond(os)
		condWaiters(os, lock, cond, []int{15, 25, 5}, &order)

		lock.Acquire()
		cond.Broadcast(lock)
		lock.Release()
	})
	if err != nil {
		t.Fatalf("Boot() = %v", err)
	}

	want := []int{25, 15, 5}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

func TestCondWithoutLockPanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func(cond *Cond, lock *Lock)
		msg  string
	}{
		{"wait", func(c *Cond, l *Lock) { c.Wait(l) }, "cond wait without holding the lock"},
		{"signal", func(c *Cond, l *Lock) { c.Signal(l) }, "cond signal without holding the lock"},
		{"broadcast", func(c *Cond, l *Lock) { c.Broadcast(l) }, "cond broadcast without holding the lock"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os := newTestOS(t, false)
			err := os.Boot(func(os *OS) {
				tt.fn(NewCond(os), NewLock(os))
			})
			wantPanic(t, err, tt.msg)
		})
	}
}
