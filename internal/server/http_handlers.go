package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sanonone/gmc/pkg/gmc"
	"github.com/sanonone/gmc/pkg/persistence"
	"gonum.org/v1/gonum/mat"
)

// registerHTTPHandlers sets up the /v1 routes.
func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/cluster", s.handleCluster)
	mux.HandleFunc("GET /v1/tasks/{id}", s.handleGetTask)
	mux.HandleFunc("DELETE /v1/tasks/{id}", s.handleCancelTask)
	mux.HandleFunc("GET /v1/results/{id}", s.handleGetResult)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCluster validates a submission and starts it in the background.
func (s *Server) handleCluster(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)

	var req ClusterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	views, err := toViews(req.Views)
	if err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg := s.cfg.Clustering
	if len(req.Config) > 0 {
		dec := json.NewDecoder(bytes.NewReader(req.Config))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			s.writeHTTPError(w, http.StatusBadRequest, "invalid config: "+err.Error())
			return
		}
	}
	samples, _ := views[0].Dims()
	if err := cfg.Validate(samples); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := s.taskManager.NewTask(cancel)
	s.wg.Add(1)
	go s.runTask(ctx, task, views, cfg)

	s.writeHTTPResponse(w, http.StatusAccepted, ClusterResponse{TaskID: task.ID})
}

// runTask waits for a free slot, runs the clustering and stores the outcome.
func (s *Server) runTask(ctx context.Context, task *Task, views []*mat.Dense, cfg gmc.Config) {
	defer s.wg.Done()
	defer task.Cancel()

	log := s.logger.With("task_id", task.ID)

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		task.Finish(nil, "", ctx.Err(), true)
		return
	}
	task.SetStatus(TaskStatusRunning)

	opts := []gmc.Option{
		gmc.WithLogger(log),
		gmc.WithIterationHook(task.SetProgress),
	}

	var journal *persistence.Journal
	if dir := s.cfg.Output.Directory; dir != "" && s.cfg.Output.Journal {
		if err := os.MkdirAll(dir, 0o755); err == nil {
			journal, err = persistence.OpenJournal(filepath.Join(dir, task.ID+".journal"))
			if err != nil {
				log.Warn("journal disabled", "error", err)
			}
		}
	}
	if journal != nil {
		hook := journal.Hook()
		opts[1] = gmc.WithIterationHook(func(it gmc.Iteration) {
			task.SetProgress(it)
			hook(it)
		})
	}

	res, err := gmc.Run(ctx, views, cfg, opts...)
	if journal != nil {
		if cerr := journal.Close(); cerr != nil {
			log.Warn("journal close failed", "error", cerr)
		}
	}
	cancelled := errors.Is(err, context.Canceled)

	var snapshot string
	if res != nil && s.cfg.Output.Directory != "" {
		snapshot, err = s.saveSnapshot(task.ID, res, err)
		if err != nil && !cancelled {
			log.Error("Clustering task failed", "error", err)
		}
	}
	task.Finish(res, snapshot, err, cancelled)
}

// saveSnapshot persists res and returns its path. runErr is passed through
// unless saving fails.
func (s *Server) saveSnapshot(id string, res *gmc.Result, runErr error) (string, error) {
	dir := s.cfg.Output.Directory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Join(runErr, err)
	}
	path := filepath.Join(dir, id+".gmc")
	if err := persistence.SaveSnapshot(path, res, s.cfg.Precision()); err != nil {
		return "", errors.Join(runErr, err)
	}
	return path, runErr
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskManager.GetTask(r.PathValue("id"))
	if !ok {
		s.writeHTTPError(w, http.StatusNotFound, ErrTaskNotFound.Error())
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, task.Info())
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskManager.GetTask(r.PathValue("id"))
	if !ok {
		s.writeHTTPError(w, http.StatusNotFound, ErrTaskNotFound.Error())
		return
	}
	task.Cancel()
	s.writeHTTPResponse(w, http.StatusAccepted, task.Info())
}

// handleGetResult returns the result as JSON, or as a binary snapshot with
// ?format=snapshot. Cancelled tasks expose their partial result.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	task, ok := s.taskManager.GetTask(r.PathValue("id"))
	if !ok {
		s.writeHTTPError(w, http.StatusNotFound, ErrTaskNotFound.Error())
		return
	}
	res, status := task.Result()
	if res == nil {
		s.writeHTTPError(w, http.StatusConflict, fmt.Sprintf("task is %s, no result available", status))
		return
	}

	switch r.URL.Query().Get("format") {
	case "", "json":
		withEmbedding := r.URL.Query().Get("embedding") == "true"
		s.writeHTTPResponse(w, http.StatusOK, newResultResponse(res, withEmbedding))
	case "snapshot":
		var buf bytes.Buffer
		if err := persistence.WriteSnapshot(&buf, res, s.cfg.Precision()); err != nil {
			s.writeHTTPError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", task.ID+".gmc"))
		w.WriteHeader(http.StatusOK)
		w.Write(buf.Bytes())
	default:
		s.writeHTTPError(w, http.StatusBadRequest, "format must be json or snapshot")
	}
}

// toViews converts request views (samples of features) into matrices.
func toViews(in [][][]float64) ([]*mat.Dense, error) {
	if len(in) == 0 {
		return nil, gmc.ErrNoViews
	}
	views := make([]*mat.Dense, len(in))
	for v, rows := range in {
		if len(rows) == 0 || len(rows[0]) == 0 {
			return nil, fmt.Errorf("%w: view %d is empty", gmc.ErrShapeMismatch, v)
		}
		if len(rows) != len(in[0]) {
			return nil, fmt.Errorf("%w: view %d has %d samples, view 0 has %d", gmc.ErrShapeMismatch, v, len(rows), len(in[0]))
		}
		width := len(rows[0])
		data := make([]float64, 0, len(rows)*width)
		for i, row := range rows {
			if len(row) != width {
				return nil, fmt.Errorf("%w: view %d sample %d has %d features, want %d", gmc.ErrShapeMismatch, v, i, len(row), width)
			}
			data = append(data, row...)
		}
		views[v] = mat.NewDense(len(rows), width, data)
	}
	return views, nil
}

// --- HTTP response helpers ---

func (s *Server) writeHTTPResponse(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeHTTPError(w http.ResponseWriter, statusCode int, message string) {
	s.writeHTTPResponse(w, statusCode, map[string]string{"error": message})
}
