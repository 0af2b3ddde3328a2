package board

import (
	"context"
	"fmt"
	"sync"

	"github.com/buckleypaul/benchlab/internal/logging"
)

// HandleResolver re-reads the device handles of already identified boards.
// The returned map is keyed by logical id; boards that could not be found
// are absent from it.
type HandleResolver interface {
	ResolveHandles(ctx context.Context, boards []Board) (map[string]string, error)
}

// Registry is the authoritative id -> Board mapping for the session.
type Registry struct {
	mu       sync.RWMutex
	order    []string
	boards   map[string]Board
	resolver HandleResolver
	logger   *logging.Logger
}

// NewRegistry builds a registry from resolved boards. Every board must be
// valid and ids must be unique.
func NewRegistry(boards []Board, resolver HandleResolver, logger *logging.Logger) (*Registry, error) {
	r := &Registry{
		boards:   make(map[string]Board, len(boards)),
		resolver: resolver,
		logger:   logging.OrNop(logger).WithComponent("registry"),
	}
	for _, b := range boards {
		if b.ID == "" {
			return nil, fmt.Errorf("board with empty id")
		}
		if _, dup := r.boards[b.ID]; dup {
			return nil, fmt.Errorf("duplicate board id %q", b.ID)
		}
		if !b.Valid() {
			return nil, fmt.Errorf("%w: %s", ErrBoardNotConnected, b.ID)
		}
		r.boards[b.ID] = b
		r.order = append(r.order, b.ID)
	}
	return r, nil
}

// Get returns a copy of the board with the given id.
func (r *Registry) Get(id string) (Board, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.boards[id]
	if !ok {
		return Board{}, fmt.Errorf("%w: %q", ErrUnknownBoard, id)
	}
	return b, nil
}

// Has reports whether id is configured.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.boards[id]
	return ok
}

// IDs returns the logical ids in configuration order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns copies of every board in configuration order.
func (r *Registry) All() []Board {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Board, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.boards[id])
	}
	return out
}

// RefreshHandles re-runs handle enumeration and updates device handles.
// Serial numbers are never touched. A board the resolver could not find
// keeps its previous handle.
func (r *Registry) RefreshHandles(ctx context.Context) error {
	if r.resolver == nil {
		return nil
	}
	handles, err := r.resolver.ResolveHandles(ctx, r.All())
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		b := r.boards[id]
		h, ok := handles[id]
		if !ok || h == "" {
			r.logger.Warn("device handle not found, keeping previous", "board", id, "handle", b.Handle)
			continue
		}
		if h != b.Handle {
			r.logger.Info("device handle changed", "board", id, "from", b.Handle, "to", h)
			b.Handle = h
			r.boards[id] = b
		}
	}
	return nil
}

// Refresh refreshes all handles and returns the current state of id. A
// failed refresh is logged and the last known handle is returned.
func (r *Registry) Refresh(ctx context.Context, id string) (Board, error) {
	if !r.Has(id) {
		return Board{}, fmt.Errorf("%w: %q", ErrUnknownBoard, id)
	}
	if err := r.RefreshHandles(ctx); err != nil {
		r.logger.Warn("handle refresh failed", "board", id, "error", err)
	}
	return r.Get(id)
}
