package linalg

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// ErrInvalidTopology is returned when a participant group cannot be formed.
var ErrInvalidTopology = errors.New("linalg: invalid participant topology")

// Decision is the single message the coordinator broadcasts at the end of
// every iteration. Participants leave the loop on the first Done decision.
type Decision struct {
	Iteration int
	Lambda    float64
	Done      bool
}

// Collective is the lockstep contract between the coordinator and the other
// participants. The coordinator issues one Eigen call per eigen-decomposition
// and one Broadcast per iteration; every participant observes the same
// sequence, so no participant can be left waiting in a collective call.
type Collective interface {
	// Size is the number of participants, coordinator included.
	Size() int
	// Eigen runs the collective decomposition and returns the result seen by
	// every participant.
	Eigen(ctx context.Context, a *mat.SymDense, k int) ([]float64, *mat.Dense, error)
	// Broadcast delivers d to every participant.
	Broadcast(ctx context.Context, d Decision) error
}

// Transcript is what one participant observed during a run.
type Transcript struct {
	Participant int
	Eigenvalues [][]float64
	Decisions   []Decision
}

type messageKind int

const (
	msgEigen messageKind = iota
	msgDecision
)

type message struct {
	kind     messageKind
	values   []float64
	decision Decision
}

// Group is an in-process Collective. Participant 0 is the coordinator (the
// caller); participants 1..size-1 are goroutines fed through unbuffered
// channels, so every send is also a rendezvous.
type Group struct {
	provider Provider
	size     int

	inboxes     []chan message
	eg          *errgroup.Group
	ctx         context.Context
	transcripts []Transcript

	mu        sync.Mutex
	finished  bool
	closeOnce sync.Once
	closeErr  error
}

var _ Collective = (*Group)(nil)

// NewGroup starts size-1 participant goroutines bound to ctx.
func NewGroup(ctx context.Context, p Provider, size int) (*Group, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: %d participants", ErrInvalidTopology, size)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: nil provider", ErrInvalidTopology)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	g := &Group{
		provider:    p,
		size:        size,
		inboxes:     make([]chan message, size-1),
		eg:          eg,
		ctx:         egCtx,
		transcripts: make([]Transcript, size),
	}
	g.transcripts[0].Participant = 0

	for i := range g.inboxes {
		g.inboxes[i] = make(chan message)
		id := i + 1
		eg.Go(func() error { return g.participate(egCtx, id) })
	}
	return g, nil
}

// Size returns the number of participants.
func (g *Group) Size() int { return g.size }

// participate is the loop run by every non-coordinator participant.
func (g *Group) participate(ctx context.Context, id int) error {
	tr := &g.transcripts[id]
	tr.Participant = id
	inbox := g.inboxes[id-1]
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-inbox:
			switch msg.kind {
			case msgEigen:
				tr.Eigenvalues = append(tr.Eigenvalues, msg.values)
			case msgDecision:
				tr.Decisions = append(tr.Decisions, msg.decision)
				if msg.decision.Done {
					return nil
				}
			}
		}
	}
}

// send delivers one message to every participant, each with its own copy of
// the payload.
func (g *Group) send(ctx context.Context, msg message) error {
	if err := g.ctx.Err(); err != nil {
		return err
	}
	for _, inbox := range g.inboxes {
		m := msg
		if msg.values != nil {
			m.values = append([]float64(nil), msg.values...)
		}
		select {
		case inbox <- m:
		case <-ctx.Done():
			return ctx.Err()
		case <-g.ctx.Done():
			return g.ctx.Err()
		}
	}
	return nil
}

// Eigen decomposes a once on the coordinator and hands the eigenvalues to
// every participant.
func (g *Group) Eigen(ctx context.Context, a *mat.SymDense, k int) ([]float64, *mat.Dense, error) {
	values, vectors, err := g.provider.SmallestEigen(a, k)
	if err != nil {
		return nil, nil, err
	}
	g.transcripts[0].Eigenvalues = append(g.transcripts[0].Eigenvalues, append([]float64(nil), values...))
	if err := g.send(ctx, message{kind: msgEigen, values: values}); err != nil {
		return nil, nil, err
	}
	return values, vectors, nil
}

// Broadcast delivers d to every participant. After a Done decision the group
// accepts no further collective calls.
func (g *Group) Broadcast(ctx context.Context, d Decision) error {
	g.mu.Lock()
	if g.finished {
		g.mu.Unlock()
		return fmt.Errorf("%w: broadcast after the final decision", ErrInvalidTopology)
	}
	g.finished = d.Done
	g.mu.Unlock()

	g.transcripts[0].Decisions = append(g.transcripts[0].Decisions, d)
	return g.send(ctx, message{kind: msgDecision, decision: d})
}

// Close makes sure every participant has received a final decision and waits
// for them to exit.
func (g *Group) Close() error {
	g.closeOnce.Do(func() {
		g.mu.Lock()
		finished := g.finished
		g.mu.Unlock()
		if !finished {
			last := Decision{Done: true}
			if n := len(g.transcripts[0].Decisions); n > 0 {
				last = g.transcripts[0].Decisions[n-1]
				last.Done = true
			}
			// A cancelled group context means participants are already leaving.
			_ = g.Broadcast(context.Background(), last)
		}
		g.closeErr = g.eg.Wait()
	})
	return g.closeErr
}

// Transcripts returns what every participant observed. It must be called
// after Close.
func (g *Group) Transcripts() []Transcript {
	out := make([]Transcript, len(g.transcripts))
	copy(out, g.transcripts)
	return out
}
