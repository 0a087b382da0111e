package ksched

// Syscalls 是调度器给「系统调用层」用的那一部分接口，都作用于当前线程
type Syscalls interface {
	CurrentTid() Tid
	CurrentName() string

	GetPriority() int
	SetPriority(priority int)

	GetNice() int
	SetNice(nice int)

	// GetRecentCPU 当前线程 recent_cpu 的 100 倍，四舍五入
	GetRecentCPU() int
	// GetLoadAvg load_avg 的 100 倍，四舍五入
	GetLoadAvg() int
}

var _ Syscalls = (*OS)(nil)

// CurrentTid 当前线程的 Tid
func (os *OS) CurrentTid() Tid {
	return os.CPU.Thread.id
}

// CurrentName 当前线程的名字
func (os *OS) CurrentName() string {
	return os.CPU.Thread.name
}

// GetPriority 当前线程的有效优先级（算上捐赠）
func (os *OS) GetPriority() int {
	return os.CPU.Thread.priority
}

// SetPriority 设置当前线程的基础优先级。
// 有捐赠的话有效优先级不会低于捐赠；降下来以后不再是最高的就让出 CPU。
// MLFQS 下什么也不做。
func (os *OS) SetPriority(priority int) {
	if priority < PriMin || priority > PriMax {
		panic(kernelPanic("set priority %d out of range [%d, %d]", priority, PriMin, PriMax))
	}
	old := os.CPU.Disable()
	defer os.CPU.Restore(old)
	os.Scheduler.setPriority(os, priority)
}

// GetNice 当前线程的 nice
func (os *OS) GetNice() int {
	return os.CPU.Thread.nice
}

// SetNice 设置当前线程的 nice，超出 [NiceMin, NiceMax] 的截到边上
func (os *OS) SetNice(nice int) {
	if nice < NiceMin {
		nice = NiceMin
	}
	if nice > NiceMax {
		nice = NiceMax
	}
	old := os.CPU.Disable()
	defer os.CPU.Restore(old)
	os.Scheduler.setNice(os, nice)
}

func (os *OS) GetRecentCPU() int {
	return os.CPU.Thread.recentCPU.MulInt(100).Round()
}

func (os *OS) GetLoadAvg() int {
	return os.loadAvg.MulInt(100).Round()
}
