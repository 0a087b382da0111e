package ksched

import (
	"reflect"
	"testing"

	"ksched/fixedpoint"
)

// 只有一个线程、nice 0，跑 100 个 tick
func TestMLFQSOneThread(t *testing.T) {
	os := newTestOS(t, true)

	pri := map[int64]int{}
	var (
		initial   int
		recentRaw fixedpoint.Value
		recent    int
		loadRaw   fixedpoint.Value
		load      int
	)
	err := os.Boot(func(os *OS) {
		initial = os.GetPriority()
		for os.Ticks() < 100 {
			os.Tick()
			pri[os.Ticks()] = os.GetPriority()
		}
		recentRaw = os.Current().RecentCPU()
		recent = os.GetRecentCPU()
		loadRaw = os.loadAvg
		load = os.GetLoadAvg()
	})
	if err != nil {
		t.Fatalf("Boot() = %v", err)
	}

	if initial != PriMax {
		t.Errorf("initial priority = %d, want %d", initial, PriMax)
	}
	for tick, want := range map[int64]int{3: PriMax, 4: 62, 8: 61, 96: 39, 100: 62} {
		if pri[tick] != want {
			t.Errorf("priority at tick %d = %d, want %d", tick, pri[tick], want)
		}
	}
	if recentRaw != 52800 {
		t.Errorf("recent_cpu raw = %d, want 52800", recentRaw)
	}
	if recent != 322 {
		t.Errorf("GetRecentCPU = %d, want 322", recent)
	}
	if loadRaw != 273 {
		t.Errorf("load_avg raw = %d, want 273", loadRaw)
	}
	if load != 2 {
		t.Errorf("GetLoadAvg = %d, want 2", load)
	}
}

// 没有线程可跑的时候 load_avg 往 0 衰减
func TestMLFQSLoadAvgDecays(t *testing.T) {
	os := newTestOS(t, true)

	var (
		peak        fixedpoint.Value
		decayed     fixedpoint.Value
		reported    int
		samples     []fixedpoint.Value
		sampleTicks []int64
	)
	os.RegisterInterrupt("probe", func(os *OS) {
		samples = append(samples, os.loadAvg)
		sampleTicks = append(sampleTicks, os.ticks)
	})
	err := os.Boot(func(os *OS) {
		for os.Ticks() < 100 {
			os.Tick()
		}
		peak = os.loadAvg

		os.CreateThread("probe", PriMax, func(os *OS) {
			for i := 0; i < 10; i++ {
				os.Sleep(1000)
				os.Interrupt("probe")
			}
		})
		os.Sleep(100 * DefaultTimerFreq)
		decayed = os.loadAvg
		reported = os.GetLoadAvg()
	})
	if err != nil {
		t.Fatalf("Boot() = %v", err)
	}

	if peak != 273 {
		t.Fatalf("load_avg after one busy second = %d, want 273", peak)
	}
	if reported != 0 {
		t.Errorf("GetLoadAvg after 100 idle seconds = %d, want 0", reported)
	}
	if decayed <= 0 || decayed >= peak {
		t.Errorf("load_avg raw = %d, want in (0, %d)", decayed, peak)
	}
	if len(samples) != 10 {
		t.Fatalf("%d samples, want 10", len(samples))
	}
	prev := peak
	for i, s := range samples {
		if s > prev {
			t.Errorf("load_avg went up at tick %d: %d > %d", sampleTicks[i], s, prev)
		}
		prev = s
	}
}

func TestMLFQSSetPriorityIgnored(t *testing.T) {
	os := newTestOS(t, true)

	var pri, base int
	err := os.Boot(func(os *OS) {
		os.SetPriority(10)
		pri = os.GetPriority()
		base = os.Current().BasePriority()
	})
	if err != nil {
		t.Fatalf("Boot() = %v", err)
	}

	if pri != PriMax || base != PriMax {
		t.Errorf("priority = %d/%d after SetPriority(10), want %d", pri, base, PriMax)
	}
}

func TestMLFQSNice(t *testing.T) {
	os := newTestOS(t, true)

	var pri, nice []int
	err := os.Boot(func(os *OS) {
		for _, n := range []int{5, -3, 100, -100} {
			os.SetNice(n)
			nice = append(nice, os.GetNice())
			pri = append(pri, os.GetPriority())
		}
	})
	if err != nil {
		t.Fatalf("Boot() = %v", err)
	}

	if want := []int{5, -3, NiceMax, NiceMin}; !reflect.DeepEqual(nice, want) {
		t.Errorf("nice = %v, want %v", nice, want)
	}
	// 63 - 2*nice，夹在 [0, 63]
	if want := []int{53, PriMax, 23, PriMax}; !reflect.DeepEqual(pri, want) {
		t.Errorf("priority = %v, want %v", pri, want)
	}
}

func TestMLFQSNiceYields(t *testing.T) {
	os := newTestOS(t, true)

	var order []string
	err := os.Boot(func(os *OS) {
		os.CreateThread("other", PriDefault, func(os *OS) {
			order = append(order, "other")
		})
		order = append(order, "main")
		os.SetNice(10)
		order = append(order, "main nice")
	})
	if err != nil {
		t.Fatalf("Boot() = %v", err)
	}

	want := []string{"main", "other", "main nice"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

// 两个 nice 不同的忙线程：nice 大的分到的 tick 少
func TestMLFQSNiceShare(t *testing.T) {
	os := newTestOS(t, true)

	ticks := map[string]int64{}
	spin := func(name string, nice int) Runnable {
		return func(os *OS) {
			os.SetNice(nice)
			for os.Ticks() < 4*DefaultTimerFreq {
				os.Tick()
				ticks[name]++
			}
		}
	}

	err := os.Boot(func(os *OS) {
		os.CreateThread("nice0", PriDefault, spin("nice0", 0))
		os.CreateThread("nice10", PriDefault, spin("nice10", 10))
	})
	if err != nil {
		t.Fatalf("Boot() = %v", err)
	}

	if ticks["nice0"] <= ticks["nice10"] {
		t.Errorf("ticks = %v, want nice0 to get more than nice10", ticks)
	}
	if total := ticks["nice0"] + ticks["nice10"]; total != 4*DefaultTimerFreq {
		t.Errorf("total ticks = %d, want %d", total, 4*DefaultTimerFreq)
	}
}
