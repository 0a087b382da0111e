package ksched

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aclements/go-moremath/graph/graphalg"
)

// WaitGraph 是某一时刻的「等待图」：节点是登记着的线程，
// 线程 T 在等锁 L 的话有一条 T -> L 的持有者 的边。
// 满足 graph.Graph，可以直接交给 graphalg。
type WaitGraph struct {
	// Threads 节点 i 是哪个线程
	Threads []Tid
	// Names 节点 i 的线程名
	Names []string

	out [][]int
}

// WaitGraph 拍一张当前的等待图
func (os *OS) WaitGraph() *WaitGraph {
	old := os.CPU.Disable()
	defer os.CPU.Restore(old)

	ts := os.threads.all()
	g := &WaitGraph{
		Threads: make([]Tid, len(ts)),
		Names:   make([]string, len(ts)),
		out:     make([][]int, len(ts)),
	}
	index := make(map[Tid]int, len(ts))
	for i, t := range ts {
		g.Threads[i] = t.id
		g.Names[i] = t.name
		index[t.id] = i
	}
	for i, t := range ts {
		if t.waitingOn == nil {
			continue
		}
		if j, ok := index[t.waitingOn.holder]; ok {
			g.out[i] = append(g.out[i], j)
		}
	}
	return g
}

func (g *WaitGraph) NumNodes() int {
	return len(g.Threads)
}

func (g *WaitGraph) Out(i int) []int {
	return g.out[i]
}

// Cycles 返回图里的所有环（非平凡的强连通分量），每个环里的线程按 Tid 排好。
// 没有环就是 nil。
func (g *WaitGraph) Cycles() [][]Tid {
	var cycles [][]Tid
	scc := graphalg.SCC(g, graphalg.SCCSubnodeComponent)
	for cid := 0; cid < scc.NumNodes(); cid++ {
		nids := scc.Subnodes(cid)
		if len(nids) <= 1 {
			continue
		}
		cycle := make([]Tid, 0, len(nids))
		for _, nid := range nids {
			cycle = append(cycle, g.Threads[nid])
		}
		sort.Slice(cycle, func(i, j int) bool { return cycle[i] < cycle[j] })
		cycles = append(cycles, cycle)
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

// names 把一个环里的线程写成 "a#1 -> b#2" 的样子
func (g *WaitGraph) names(cycle []Tid) string {
	name := make(map[Tid]string, len(g.Threads))
	for i, id := range g.Threads {
		name[id] = g.Names[i]
	}
	parts := make([]string, len(cycle))
	for i, id := range cycle {
		parts[i] = fmt.Sprintf("%s#%d", name[id], id)
	}
	return strings.Join(parts, " -> ")
}

// checkWaitGraph cur 就要阻塞在锁上了（waitingOn 已经记下）：
// 看等待图里有没有一个经过 cur 的环，有就是死锁，内核 panic。
func (os *OS) checkWaitGraph(cur *Thread) {
	g := os.WaitGraph()
	for _, cycle := range g.Cycles() {
		for _, id := range cycle {
			if id == cur.id {
				panic(kernelPanic("deadlock: wait cycle %s", g.names(cycle)))
			}
		}
	}
}
