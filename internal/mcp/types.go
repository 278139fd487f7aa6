package mcp

// --- Tool Arguments ---

type ClusterDatasetArgs struct {
	Directory     string  `json:"directory" jsonschema:"Directory holding one view per file in the text matrix format"`
	Clusters      int     `json:"clusters" jsonschema:"Target number of clusters"`
	Neighbors     int     `json:"neighbors,omitempty" jsonschema:"Neighbors per sample (default from the server config)"`
	Lambda        float64 `json:"lambda,omitempty" jsonschema:"Initial rank penalty multiplier"`
	MaxIterations int     `json:"max_iterations,omitempty" jsonschema:"Iteration budget"`
	Candidates    string  `json:"candidates,omitempty" jsonschema:"Support of the consensus rows: 'local' or 'global'"`
	Normalize     bool    `json:"normalize,omitempty" jsonschema:"Z-score every feature before building the graphs"`
	Snapshot      string  `json:"snapshot,omitempty" jsonschema:"Optional path where the binary result snapshot is written"`
}

type DescribeSnapshotArgs struct {
	Path string `json:"path" jsonschema:"Path of a snapshot written by cluster_dataset or the gmc command"`
}

// --- Tool Results ---

type ClusterSummary struct {
	RunID        string    `json:"run_id"`
	Samples      int       `json:"samples"`
	Views        int       `json:"views"`
	Clusters     int       `json:"clusters"`
	Iterations   int       `json:"iterations"`
	Converged    bool      `json:"converged"`
	Lambda       float64   `json:"lambda"`
	ClusterSizes []int     `json:"cluster_sizes"`
	Labels       []int     `json:"labels"`
	Weights      []float64 `json:"view_weights"`
	Snapshot     string    `json:"snapshot,omitempty"`
}
