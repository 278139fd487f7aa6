package server

import (
	"encoding/json"
	"time"

	"github.com/sanonone/gmc/pkg/gmc"
	"gonum.org/v1/gonum/mat"
)

// ClusterRequest is the body of POST /v1/cluster. Every view is a list of
// samples, each a list of features. Config fields left out keep the server
// defaults.
type ClusterRequest struct {
	Views  [][][]float64   `json:"views"`
	Config json.RawMessage `json:"config,omitempty"`
}

// ClusterResponse acknowledges a submission.
type ClusterResponse struct {
	TaskID string `json:"task_id"`
}

// TaskInfo is the public state of a task.
type TaskInfo struct {
	ID              string     `json:"id"`
	Status          TaskStatus `json:"status"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	Error           string     `json:"error,omitempty"`
	Iteration       int        `json:"iteration"`
	Lambda          float64    `json:"lambda,omitempty"`
	Snapshot        string     `json:"snapshot,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// ResultResponse is the body of GET /v1/results/{id}.
type ResultResponse struct {
	RunID       string      `json:"run_id"`
	Samples     int         `json:"samples"`
	Views       int         `json:"views"`
	Clusters    int         `json:"clusters"`
	Iterations  int         `json:"iterations"`
	Converged   bool        `json:"converged"`
	Lambda      float64     `json:"lambda"`
	Labels      []int       `json:"labels"`
	Members     [][]int     `json:"members"`
	Weights     []float64   `json:"weights"`
	LambdaTrace []float64   `json:"lambda_trace"`
	Eigenvalues [][]float64 `json:"eigenvalues"` // one row per iteration, initial decomposition first
	Embedding   [][]float64 `json:"embedding,omitempty"`
}

func newResultResponse(res *gmc.Result, withEmbedding bool) ResultResponse {
	out := ResultResponse{
		RunID:       res.RunID,
		Samples:     res.Samples,
		Views:       res.Views,
		Clusters:    res.Clusters,
		Iterations:  res.Iterations,
		Converged:   res.Converged,
		Lambda:      res.Lambda,
		Labels:      res.Labels,
		Members:     res.Members(),
		Weights:     res.Weights,
		LambdaTrace: res.LambdaTrace,
	}
	if res.Eigenvalues != nil {
		_, cols := res.Eigenvalues.Dims()
		for j := 0; j < cols; j++ {
			out.Eigenvalues = append(out.Eigenvalues, mat.Col(nil, j, res.Eigenvalues))
		}
	}
	if withEmbedding && res.F != nil {
		rows, _ := res.F.Dims()
		for i := 0; i < rows; i++ {
			out.Embedding = append(out.Embedding, mat.Row(nil, i, res.F))
		}
	}
	return out
}
