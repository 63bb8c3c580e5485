package indexbuild

import (
	"fmt"
	"runtime"
)

// Metric names a distance function.
type Metric string

const (
	MetricL2     Metric = "l2"
	MetricCosine Metric = "cosine"
)

// Params holds index build parameters as sent in a create_index request.
// Zero fields take the defaults of DefaultParams. The IVF-PQ fields describe
// the candidate search of GPU builders and are recorded in the artifact header
// for reproducibility.
type Params struct {
	Metric                  Metric `json:"metric,omitempty"`
	IntermediateGraphDegree int    `json:"intermediate_graph_degree,omitempty"`
	GraphDegree             int    `json:"graph_degree,omitempty"`
	KMeansNIters            int    `json:"kmeans_n_iters,omitempty"`
	PQBits                  int    `json:"pq_bits,omitempty"`
	PQDim                   int    `json:"pq_dim,omitempty"`
	NLists                  int    `json:"n_lists,omitempty"`
	KMeansTrainsetFraction  int    `json:"kmeans_trainset_fraction,omitempty"`
	NProbes                 int    `json:"n_probes,omitempty"`
	Threads                 int    `json:"threads,omitempty"`
}

// DefaultParams returns the parameters used when a request leaves them unset.
func DefaultParams() Params {
	return Params{
		Metric:                  MetricL2,
		IntermediateGraphDegree: 64,
		GraphDegree:             32,
		KMeansNIters:            10,
		PQBits:                  8,
		PQDim:                   32,
		NLists:                  1000,
		KMeansTrainsetFraction:  10,
		NProbes:                 30,
		Threads:                 runtime.GOMAXPROCS(0),
	}
}

// WithDefaults fills every zero field from DefaultParams.
func (p Params) WithDefaults() Params {
	d := DefaultParams()
	if p.Metric == "" {
		p.Metric = d.Metric
	}
	if p.IntermediateGraphDegree == 0 {
		p.IntermediateGraphDegree = d.IntermediateGraphDegree
	}
	if p.GraphDegree == 0 {
		p.GraphDegree = d.GraphDegree
	}
	if p.KMeansNIters == 0 {
		p.KMeansNIters = d.KMeansNIters
	}
	if p.PQBits == 0 {
		p.PQBits = d.PQBits
	}
	if p.PQDim == 0 {
		p.PQDim = d.PQDim
	}
	if p.NLists == 0 {
		p.NLists = d.NLists
	}
	if p.KMeansTrainsetFraction == 0 {
		p.KMeansTrainsetFraction = d.KMeansTrainsetFraction
	}
	if p.NProbes == 0 {
		p.NProbes = d.NProbes
	}
	if p.Threads <= 0 || p.Threads > d.Threads {
		p.Threads = d.Threads
	}
	return p
}

// Validate rejects parameters the builder cannot honor.
func (p Params) Validate() error {
	switch p.Metric {
	case MetricL2, MetricCosine:
	default:
		return fmt.Errorf("indexbuild: unsupported metric %q", p.Metric)
	}
	if p.GraphDegree < 1 {
		return fmt.Errorf("indexbuild: graph_degree must be positive, got %d", p.GraphDegree)
	}
	if p.IntermediateGraphDegree < p.GraphDegree {
		return fmt.Errorf("indexbuild: intermediate_graph_degree %d is smaller than graph_degree %d",
			p.IntermediateGraphDegree, p.GraphDegree)
	}
	return nil
}
