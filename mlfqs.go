package ksched

import (
	log "github.com/sirupsen/logrus"

	"ksched/fixedpoint"
)

// PriorityRefreshTicks MLFQS 每隔多少 tick 重算一次所有线程的优先级
const PriorityRefreshTicks = 4

var (
	// loadDecay = 59/60
	loadDecay = fixedpoint.FromInt(59).Div(fixedpoint.FromInt(60))
	// loadGain = 1/60
	loadGain = fixedpoint.FromInt(1).Div(fixedpoint.FromInt(60))
)

// mlfqsPriority 按 PRI_MAX - recent_cpu/4 - nice*2 重算 t 的优先级，
// 截断取整，夹在 [PRI_MIN, PRI_MAX] 里。MLFQS 下基础优先级和有效优先级是同一个值。
func (os *OS) mlfqsPriority(t *Thread) {
	if t == os.idle {
		return
	}
	p := fixedpoint.FromInt(PriMax).
		Sub(t.recentCPU.DivInt(4)).
		SubInt(t.nice * 2).
		Int()
	if p < PriMin {
		p = PriMin
	}
	if p > PriMax {
		p = PriMax
	}
	t.priority = p
	t.basePriority = p
}

// mlfqsIncrementRecentCPU 正在跑的线程（不算 idle）recent_cpu 加 1
func (os *OS) mlfqsIncrementRecentCPU() {
	cur := os.CPU.Thread
	if cur == os.idle {
		return
	}
	cur.recentCPU = cur.recentCPU.AddInt(1)
}

// mlfqsRefreshLoadAvg load_avg = (59/60)*load_avg + (1/60)*ready_threads，
// ready_threads 是就绪队列里的加上正在跑的（不算 idle）。
func (os *OS) mlfqsRefreshLoadAvg() {
	ready := os.ready.Len()
	if os.CPU.Thread != os.idle {
		ready++
	}
	os.loadAvg = loadDecay.Mul(os.loadAvg).Add(loadGain.Mul(fixedpoint.FromInt(ready)))

	os.log.WithFields(log.Fields{
		"ticks":         os.ticks,
		"ready_threads": ready,
		"load_avg":      os.loadAvg.MulInt(100).Round(),
	}).Debug("[MLFQS] load_avg")
}

// mlfqsRecentCPU recent_cpu = (2*load_avg)/(2*load_avg + 1) * recent_cpu + nice
func (os *OS) mlfqsRecentCPU(t *Thread) {
	twice := os.loadAvg.MulInt(2)
	coef := twice.Div(twice.AddInt(1))
	t.recentCPU = coef.Mul(t.recentCPU).AddInt(t.nice)
}

// mlfqsRefreshRecentCPU 对登记表里所有线程（不管什么状态）衰减 recent_cpu
func (os *OS) mlfqsRefreshRecentCPU() {
	for _, t := range os.threads.all() {
		os.mlfqsRecentCPU(t)
	}
}

// mlfqsRefreshPriority 重算所有线程的优先级。
// 就绪队列出队时才按优先级挑，所以不需要重排。
func (os *OS) mlfqsRefreshPriority() {
	for _, t := range os.threads.all() {
		os.mlfqsPriority(t)
	}
}
