package core

import (
	"container/heap"
	"sort"

	"nodemapper/pkg/domain"
)

// CommitPlanner orders pending operations into an executable plan.
//
// Inserts come first in dependency order: an ancestor is inserted before its
// descendants and a referenced document before the one referencing it. Among
// inserts that are ready, the lower scheduling sequence wins. Updates follow in
// sequence order, then deletes deepest path first.
type CommitPlanner struct{}

// Plan returns the ordered operations. It fails with
// domain.UnresolvableOrderingError when inserts depend on each other in a
// cycle; the input is never modified.
func (CommitPlanner) Plan(ops []domain.Operation) ([]domain.Operation, error) {
	var inserts, updates, deletes []domain.Operation
	for _, op := range ops {
		switch op.Kind {
		case domain.OpInsert:
			inserts = append(inserts, op)
		case domain.OpUpdate:
			updates = append(updates, op)
		case domain.OpDelete:
			deletes = append(deletes, op)
		}
	}

	plan := make([]domain.Operation, 0, len(ops))
	ordered, err := orderInserts(inserts)
	if err != nil {
		return nil, err
	}
	plan = append(plan, ordered...)

	sort.SliceStable(updates, func(i, j int) bool { return updates[i].Seq < updates[j].Seq })
	plan = append(plan, updates...)

	sort.SliceStable(deletes, func(i, j int) bool {
		di, dj := domain.PathDepth(deletes[i].Path), domain.PathDepth(deletes[j].Path)
		if di != dj {
			return di > dj
		}
		return deletes[i].Seq < deletes[j].Seq
	})
	plan = append(plan, deletes...)
	return plan, nil
}

func orderInserts(inserts []domain.Operation) ([]domain.Operation, error) {
	if len(inserts) == 0 {
		return nil, nil
	}
	byPath := make(map[string]int, len(inserts))
	for i, op := range inserts {
		byPath[op.Path] = i
	}

	indegree := make([]int, len(inserts))
	dependents := make([][]int, len(inserts))
	addEdge := func(from, to int) {
		if from == to {
			return
		}
		dependents[from] = append(dependents[from], to)
		indegree[to]++
	}
	for i, op := range inserts {
		seen := make(map[int]struct{})
		for p := op.Path; p != domain.RootPath; {
			p = domain.ParentPath(p)
			if j, ok := byPath[p]; ok {
				if _, dup := seen[j]; !dup {
					seen[j] = struct{}{}
					addEdge(j, i)
				}
			}
		}
		for _, dep := range op.DependsOn {
			if j, ok := byPath[dep]; ok {
				if _, dup := seen[j]; !dup {
					seen[j] = struct{}{}
					addEdge(j, i)
				}
			}
		}
	}

	ready := &seqHeap{ops: inserts}
	for i := range inserts {
		if indegree[i] == 0 {
			ready.idx = append(ready.idx, i)
		}
	}
	heap.Init(ready)

	out := make([]domain.Operation, 0, len(inserts))
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		out = append(out, inserts[i])
		for _, j := range dependents[i] {
			indegree[j]--
			if indegree[j] == 0 {
				heap.Push(ready, j)
			}
		}
	}
	if len(out) < len(inserts) {
		var stuck []string
		for i, d := range indegree {
			if d > 0 {
				stuck = append(stuck, inserts[i].Path)
			}
		}
		sort.Strings(stuck)
		return nil, domain.UnresolvableOrderingError{Paths: stuck}
	}
	return out, nil
}

// seqHeap is a min-heap of insert indexes keyed by scheduling sequence.
type seqHeap struct {
	ops []domain.Operation
	idx []int
}

func (h *seqHeap) Len() int           { return len(h.idx) }
func (h *seqHeap) Less(i, j int) bool { return h.ops[h.idx[i]].Seq < h.ops[h.idx[j]].Seq }
func (h *seqHeap) Swap(i, j int)      { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }
func (h *seqHeap) Push(x any)         { h.idx = append(h.idx, x.(int)) }
func (h *seqHeap) Pop() any {
	n := len(h.idx)
	v := h.idx[n-1]
	h.idx = h.idx[:n-1]
	return v
}
