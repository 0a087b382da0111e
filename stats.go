package ksched

import (
	"fmt"
	"io"
	"sort"

	"github.com/google/pprof/profile"
	log "github.com/sirupsen/logrus"
)

// stats 是调度器自己记的账：每个 tick 算在谁头上、切换了几次
type stats struct {
	idleTicks   int64
	kernelTicks int64
	switches    int64

	accounts map[Tid]*ThreadStats
}

func newStats() stats {
	return stats{accounts: map[Tid]*ThreadStats{}}
}

// account 开始给 t 记账。线程结束后账还留着。
func (s *stats) account(t *Thread) {
	s.accounts[t.id] = &ThreadStats{Tid: t.id, Name: t.name}
}

// tick 把这个 tick 记到 cur 头上
func (s *stats) tick(cur *Thread, idle bool) {
	if idle {
		s.idleTicks++
	} else {
		s.kernelTicks++
	}
	if a, ok := s.accounts[cur.id]; ok {
		a.Ticks++
	}
}

// ThreadStats 一个线程用了多少个 tick
type ThreadStats struct {
	Tid   Tid
	Name  string
	Ticks int64
}

// Stats 调度统计
type Stats struct {
	// IdleTicks idle 线程跑的 tick 数
	IdleTicks int64
	// KernelTicks 其他线程跑的 tick 数
	KernelTicks int64
	// Switches 上下文切换次数
	Switches int64
	// Threads 每个线程（包括已经结束的和 idle）的账，按 Tid 排
	Threads []ThreadStats
}

// Stats 返回到现在为止的调度统计。关机以后也能调。
func (os *OS) Stats() Stats {
	st := Stats{
		IdleTicks:   os.stats.idleTicks,
		KernelTicks: os.stats.kernelTicks,
		Switches:    os.stats.switches,
		Threads:     make([]ThreadStats, 0, len(os.stats.accounts)),
	}
	for _, a := range os.stats.accounts {
		st.Threads = append(st.Threads, *a)
	}
	sort.Slice(st.Threads, func(i, j int) bool { return st.Threads[i].Tid < st.Threads[j].Tid })
	return st
}

// PrintStats 把统计打到日志里（Info）
func (os *OS) PrintStats() {
	st := os.Stats()
	os.log.WithFields(log.Fields{
		"idle_ticks":   st.IdleTicks,
		"kernel_ticks": st.KernelTicks,
		"switches":     st.Switches,
	}).Info("[OS] Thread: stats")
	for _, ts := range st.Threads {
		os.log.WithFields(log.Fields{
			"thread": fmt.Sprintf("%s#%d", ts.Name, ts.Tid),
			"ticks":  ts.Ticks,
		}).Info("[OS] Thread: ticks")
	}
}

// WriteProfile 把每个线程用的 tick 数写成一个 pprof profile（gzip 过的 protobuf），
// 可以直接 go tool pprof 看：每个线程是一个样本，栈只有一层，函数名就是线程名。
func (os *OS) WriteProfile(w io.Writer) error {
	st := os.Stats()

	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "ticks", Unit: "count"}},
		PeriodType: &profile.ValueType{Type: "ticks", Unit: "count"},
		Period:     1,
	}
	for i, ts := range st.Threads {
		id := uint64(i + 1)
		name := fmt.Sprintf("%s#%d", ts.Name, ts.Tid)
		fn := &profile.Function{
			ID:         id,
			Name:       name,
			SystemName: name,
		}
		loc := &profile.Location{
			ID:   id,
			Line: []profile.Line{{Function: fn}},
		}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{ts.Ticks},
			Label:    map[string][]string{"thread": {ts.Name}},
		})
	}

	if err := p.CheckValid(); err != nil {
		return fmt.Errorf("build profile: %w", err)
	}
	if err := p.Write(w); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}
