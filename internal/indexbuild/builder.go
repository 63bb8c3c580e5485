// Package indexbuild turns a set of vectors into a graph-based nearest neighbor
// index and serializes it to an artifact file.
//
// The build has two phases. The first computes, for every vector, its
// intermediate_graph_degree nearest neighbors. The second prunes each list to
// graph_degree entries, preferring neighbors that cannot be reached through a
// shorter two-hop detour, which keeps the final graph both sparse and navigable.
// Distances come from github.com/viant/vec/search.
package indexbuild

import (
	"container/heap"
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viant/vec/search"
)

// Timings reports how long each build phase took, in seconds.
type Timings struct {
	IndexTime float64 `json:"indexTime"`
	WriteTime float64 `json:"writeIndexTime"`
	TotalTime float64 `json:"totalTime"`
	Unit      string  `json:"unit"`
}

// Builder builds an index from vectors and writes it to outputPath.
type Builder interface {
	BuildAndWrite(ctx context.Context, dimension int, vectors [][]float32, ids []int64, params Params, outputPath string) (Timings, error)
}

// Graph is a built index in memory.
type Graph struct {
	Params    Params
	IDs       []int64
	Vectors   [][]float32
	Neighbors [][]int32 // positions into Vectors, nearest first
	Dimension int
	Degree    int
}

// GraphBuilder is the default Builder.
type GraphBuilder struct{}

// BuildAndWrite builds the graph and writes the artifact. ids may be nil, in
// which case positions are used as ids.
func (GraphBuilder) BuildAndWrite(ctx context.Context, dimension int, vectors [][]float32, ids []int64, params Params, outputPath string) (Timings, error) {
	return BuildAndWrite(ctx, dimension, vectors, ids, params, outputPath)
}

// BuildAndWrite is the package-level form of GraphBuilder.BuildAndWrite.
func BuildAndWrite(ctx context.Context, dimension int, vectors [][]float32, ids []int64, params Params, outputPath string) (Timings, error) {
	start := time.Now()
	g, err := Build(ctx, dimension, vectors, ids, params)
	if err != nil {
		return Timings{}, err
	}
	indexTime := time.Since(start)

	writeStart := time.Now()
	if err := WriteArtifact(outputPath, g); err != nil {
		return Timings{}, err
	}
	writeTime := time.Since(writeStart)

	log.Printf("[indexbuild] wrote %s: %d vectors, degree %d, index %.3fs, write %.3fs",
		outputPath, len(vectors), g.Degree, indexTime.Seconds(), writeTime.Seconds())
	return Timings{
		IndexTime: indexTime.Seconds(),
		WriteTime: writeTime.Seconds(),
		TotalTime: indexTime.Seconds() + writeTime.Seconds(),
		Unit:      "seconds",
	}, nil
}

// Build constructs the graph in memory.
func Build(ctx context.Context, dimension int, vectors [][]float32, ids []int64, params Params) (*Graph, error) {
	params = params.WithDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("indexbuild: dimension must be positive, got %d", dimension)
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return nil, fmt.Errorf("indexbuild: vector %d has dimension %d, want %d", i, len(v), dimension)
		}
	}
	if ids == nil {
		ids = SequentialIDs(len(vectors))
	}
	if len(ids) != len(vectors) {
		return nil, fmt.Errorf("indexbuild: %d ids for %d vectors", len(ids), len(vectors))
	}

	n := len(vectors)
	kInter := min(params.IntermediateGraphDegree, max(n-1, 0))
	degree := min(params.GraphDegree, kInter)
	log.Printf("[indexbuild] building graph: n=%d dim=%d metric=%s intermediate=%d degree=%d threads=%d",
		n, dimension, params.Metric, kInter, degree, params.Threads)

	dist := distanceFunc(params.Metric, vectors)

	knn := make([][]candidate, n)
	err := parallelFor(ctx, n, params.Threads, func(i int) {
		knn[i] = nearest(i, n, kInter, dist)
	})
	if err != nil {
		return nil, err
	}

	ranks := make([][]rankEntry, n)
	for i, list := range knn {
		ranks[i] = rankIndex(list)
	}

	neighbors := make([][]int32, n)
	err = parallelFor(ctx, n, params.Threads, func(i int) {
		neighbors[i] = prune(knn[i], ranks, degree)
	})
	if err != nil {
		return nil, err
	}

	return &Graph{
		Params:    params,
		IDs:       append([]int64(nil), ids...),
		Vectors:   vectors,
		Neighbors: neighbors,
		Dimension: dimension,
		Degree:    degree,
	}, nil
}

// distanceFunc returns the metric over vector positions.
func distanceFunc(metric Metric, vectors [][]float32) func(i, j int) float32 {
	if metric == MetricCosine {
		mags := make([]float32, len(vectors))
		for i, v := range vectors {
			mags[i] = search.Float32s(v).Magnitude()
		}
		return func(i, j int) float32 {
			if mags[i] == 0 || mags[j] == 0 {
				return 1
			}
			return search.Float32s(vectors[i]).CosineDistance(vectors[j])
		}
	}
	return func(i, j int) float32 {
		return search.Float32s(vectors[i]).EuclideanDistance(vectors[j])
	}
}

type candidate struct {
	id   int32
	dist float32
}

// worse orders candidates by distance, then id, so builds are deterministic.
func worse(a, b candidate) bool {
	if a.dist != b.dist {
		return a.dist > b.dist
	}
	return a.id > b.id
}

// maxHeap keeps the k best candidates with the worst on top.
type maxHeap []candidate

func (h maxHeap) Len() int           { return len(h) }
func (h maxHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h maxHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x any)        { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() any {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}

// nearest returns the k nearest positions to i, nearest first.
func nearest(i, n, k int, dist func(i, j int) float32) []candidate {
	if k == 0 {
		return nil
	}
	h := make(maxHeap, 0, k)
	for j := 0; j < n; j++ {
		if j == i {
			continue
		}
		c := candidate{id: int32(j), dist: dist(i, j)}
		if len(h) < k {
			heap.Push(&h, c)
			continue
		}
		if worse(h[0], c) {
			h[0] = c
			heap.Fix(&h, 0)
		}
	}
	out := []candidate(h)
	sort.Slice(out, func(a, b int) bool { return worse(out[b], out[a]) })
	return out
}

type rankEntry struct {
	id   int32
	rank int
}

// rankIndex sorts a neighbor list by id for rank lookups.
func rankIndex(list []candidate) []rankEntry {
	out := make([]rankEntry, len(list))
	for r, c := range list {
		out[r] = rankEntry{id: c.id, rank: r}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].id < out[b].id })
	return out
}

// rankOf returns the rank of id in the indexed list, or -1.
func rankOf(index []rankEntry, id int32) int {
	k := sort.Search(len(index), func(i int) bool { return index[i].id >= id })
	if k < len(index) && index[k].id == id {
		return index[k].rank
	}
	return -1
}

// prune keeps degree neighbors of list. A candidate at rank r has a detour
// through every closer candidate a that itself ranks it below r; candidates with
// fewer detours are kept first, ties broken by rank.
func prune(list []candidate, ranks [][]rankEntry, degree int) []int32 {
	type scored struct {
		id      int32
		rank    int
		detours int
	}
	scoredList := make([]scored, len(list))
	for r, c := range list {
		detours := 0
		for s := 0; s < r; s++ {
			if ra := rankOf(ranks[list[s].id], c.id); ra >= 0 && ra < r {
				detours++
			}
		}
		scoredList[r] = scored{id: c.id, rank: r, detours: detours}
	}
	sort.SliceStable(scoredList, func(a, b int) bool {
		if scoredList[a].detours != scoredList[b].detours {
			return scoredList[a].detours < scoredList[b].detours
		}
		return scoredList[a].rank < scoredList[b].rank
	})

	kept := scoredList[:min(degree, len(scoredList))]
	sort.Slice(kept, func(a, b int) bool { return kept[a].rank < kept[b].rank })
	out := make([]int32, len(kept))
	for i, s := range kept {
		out[i] = s.id
	}
	return out
}

// parallelFor runs fn(i) for i in [0, n) on at most threads goroutines, and
// never more than n, stopping early when ctx is cancelled.
func parallelFor(ctx context.Context, n, threads int, fn func(i int)) error {
	threads = min(threads, n)
	if threads < 1 {
		threads = 1
	}
	var next atomic.Int64
	var wg sync.WaitGroup
	for t := 0; t < threads; t++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1) - 1)
				if i >= n || ctx.Err() != nil {
					return
				}
				fn(i)
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}
