// Package client provides a Go client for the GMC clustering job API.
//
// It submits multi-view datasets, follows the resulting tasks and retrieves
// results either as JSON summaries or as binary snapshots.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sanonone/gmc/pkg/gmc"
	"github.com/sanonone/gmc/pkg/persistence"
	"gonum.org/v1/gonum/mat"
)

// --- Custom Errors ---

// APIError represents an error returned by the API (status >= 400).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// --- JSON Response Structs ---

type clusterResponse struct {
	TaskID string `json:"task_id"`
}

// Task represents an asynchronous clustering run on the server.
type Task struct {
	ID              string  `json:"id"`
	Status          string  `json:"status"`
	ProgressMessage string  `json:"progress_message,omitempty"`
	Error           string  `json:"error,omitempty"`
	Iteration       int     `json:"iteration"`
	Lambda          float64 `json:"lambda,omitempty"`
	Snapshot        string  `json:"snapshot,omitempty"`

	client *Client // Reference to the client for polling.
}

// Result is the JSON form of a finished run.
type Result struct {
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
	Eigenvalues [][]float64 `json:"eigenvalues"`
	Embedding   [][]float64 `json:"embedding,omitempty"`
}

// --- Client ---

// Client is the Go client for the clustering server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for http://host:port. An empty token sends no
// Authorization header.
func New(host string, port int, token string) *Client {
	return NewWithURL(fmt.Sprintf("http://%s:%d", host, port), token)
}

// NewWithURL creates a client for an explicit base URL.
func NewWithURL(baseURL, token string) *Client {
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// do executes a request and returns the body of a successful response.
func (c *Client) do(method, endpoint string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		if json.Unmarshal(respBody, &errResp) == nil {
			return nil, &APIError{StatusCode: resp.StatusCode, Message: errResp["error"]}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return respBody, nil
}

// jsonRequest executes a request and decodes the JSON response into out.
func (c *Client) jsonRequest(method, endpoint string, payload, out any) error {
	body, err := c.do(method, endpoint, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("invalid JSON response for %s %s: %w", method, endpoint, err)
	}
	return nil
}

// Refresh updates the task's status by querying the server.
func (t *Task) Refresh() error {
	if t.client == nil {
		return fmt.Errorf("client is not associated with the task")
	}
	updated, err := t.client.GetTaskStatus(t.ID)
	if err != nil {
		return err
	}
	client := t.client
	*t = *updated
	t.client = client
	return nil
}

// Wait blocks until the task reaches a terminal state, polling at interval.
func (t *Task) Wait(interval, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-timer.C:
			return fmt.Errorf("timeout exceeded while waiting for task %s", t.ID)
		case <-ticker.C:
			if err := t.Refresh(); err != nil {
				return err
			}
			switch t.Status {
			case "completed":
				return nil
			case "failed":
				return fmt.Errorf("task %s failed with error: %s", t.ID, t.Error)
			case "cancelled":
				return fmt.Errorf("task %s was cancelled", t.ID)
			case "queued", "running":
				// Continue waiting.
			default:
				return fmt.Errorf("unknown task status: %s", t.Status)
			}
		}
	}
}

// --- Clustering Methods ---

// Cluster submits views (samples x features each) with cfg and returns the
// queued task. Zero-valued fields of cfg are sent as well, so start from
// gmc.DefaultConfig().
func (c *Client) Cluster(views []*mat.Dense, cfg gmc.Config) (*Task, error) {
	payload := map[string]any{
		"views":  toRows(views),
		"config": cfg,
	}
	var ack clusterResponse
	if err := c.jsonRequest(http.MethodPost, "/v1/cluster", payload, &ack); err != nil {
		return nil, err
	}
	return &Task{ID: ack.TaskID, Status: "queued", client: c}, nil
}

// GetTaskStatus retrieves the status of a task.
func (c *Client) GetTaskStatus(taskID string) (*Task, error) {
	var task Task
	if err := c.jsonRequest(http.MethodGet, "/v1/tasks/"+taskID, nil, &task); err != nil {
		return nil, err
	}
	task.client = c
	return &task, nil
}

// CancelTask asks the server to stop a task.
func (c *Client) CancelTask(taskID string) error {
	_, err := c.do(http.MethodDelete, "/v1/tasks/"+taskID, nil)
	return err
}

// GetResult retrieves the JSON result of a finished task.
func (c *Client) GetResult(taskID string, withEmbedding bool) (*Result, error) {
	endpoint := "/v1/results/" + taskID
	if withEmbedding {
		endpoint += "?embedding=true"
	}
	var res Result
	if err := c.jsonRequest(http.MethodGet, endpoint, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetSnapshot downloads the full result of a finished task.
func (c *Client) GetSnapshot(taskID string) (*gmc.Result, error) {
	body, err := c.do(http.MethodGet, "/v1/results/"+taskID+"?format=snapshot", nil)
	if err != nil {
		return nil, err
	}
	res, _, err := persistence.ReadSnapshot(bytes.NewReader(body))
	return res, err
}

// Health reports whether the server answers /healthz.
func (c *Client) Health() error {
	_, err := c.do(http.MethodGet, "/healthz", nil)
	return err
}

func toRows(views []*mat.Dense) [][][]float64 {
	out := make([][][]float64, len(views))
	for v, x := range views {
		r, _ := x.Dims()
		out[v] = make([][]float64, r)
		for i := range out[v] {
			out[v][i] = mat.Row(nil, i, x)
		}
	}
	return out
}
