package mcp

import (
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sanonone/gmc/pkg/gmc"
	"github.com/sanonone/gmc/pkg/persistence"
)

// NewMCPServer exposes clustering as MCP tools.
func NewMCPServer(defaults gmc.Config, precision persistence.Precision, logger *slog.Logger) *mcp.Server {
	service := NewService(defaults, precision, logger)

	s := mcp.NewServer(&mcp.Implementation{
		Name:    "GMC Clustering",
		Version: "0.1.0",
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "cluster_dataset",
		Description: "Cluster the samples of a multi-view dataset directory into a target number of groups.",
	}, service.ClusterDataset)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "describe_snapshot",
		Description: "Summarize a stored clustering result snapshot.",
	}, service.DescribeSnapshot)

	return s
}
