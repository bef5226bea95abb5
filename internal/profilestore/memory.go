package profilestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"cityPerksAPI/internal/clock"
	"cityPerksAPI/internal/types/friendgraph"
	"cityPerksAPI/internal/types/profile"
)

// Memory is an in-process Store with the same optimistic-versioning contract
// as the Postgres implementation. Used by the test suites.
type Memory struct {
	mu       sync.Mutex
	clock    clock.Clock
	users    map[uuid.UUID]bool
	profiles map[uuid.UUID]memoryDoc
	graphs   map[uuid.UUID]memoryDoc
}

type memoryDoc struct {
	data    []byte
	version int64
}

func NewMemory(clk clock.Clock) *Memory {
	return &Memory{
		clock:    clk,
		users:    make(map[uuid.UUID]bool),
		profiles: make(map[uuid.UUID]memoryDoc),
		graphs:   make(map[uuid.UUID]memoryDoc),
	}
}

// CreateUser registers a user id. Aggregates stay lazily initialized.
func (m *Memory) CreateUser(userID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = true
}

func (m *Memory) LoadProfile(ctx context.Context, userID uuid.UUID) (*profile.Profile, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.users[userID] {
		return nil, 0, ErrUserNotFound
	}

	doc, ok := m.profiles[userID]
	if !ok {
		return profile.New(userID, m.clock.Now()), 0, nil
	}

	p := &profile.Profile{}
	if err := json.Unmarshal(doc.data, p); err != nil {
		return nil, 0, fmt.Errorf("failed to decode profile: %w", err)
	}
	return p, doc.version, nil
}

func (m *Memory) SaveProfile(ctx context.Context, p *profile.Profile, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.users[p.UserID] {
		return ErrUserNotFound
	}

	doc, exists := m.profiles[p.UserID]
	current := int64(0)
	if exists {
		current = doc.version
	}
	if current != version {
		return ErrVersionConflict
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}
	m.profiles[p.UserID] = memoryDoc{data: data, version: version + 1}
	return nil
}

func (m *Memory) LoadGraph(ctx context.Context, userID uuid.UUID) (*friendgraph.Graph, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.users[userID] {
		return nil, 0, ErrUserNotFound
	}

	doc, ok := m.graphs[userID]
	if !ok {
		return friendgraph.New(userID), 0, nil
	}

	g := &friendgraph.Graph{}
	if err := json.Unmarshal(doc.data, g); err != nil {
		return nil, 0, fmt.Errorf("failed to decode friend graph: %w", err)
	}
	return g, doc.version, nil
}

func (m *Memory) SaveGraph(ctx context.Context, g *friendgraph.Graph, version int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.users[g.UserID] {
		return ErrUserNotFound
	}

	doc, exists := m.graphs[g.UserID]
	current := int64(0)
	if exists {
		current = doc.version
	}
	if current != version {
		return ErrVersionConflict
	}

	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("failed to encode friend graph: %w", err)
	}
	m.graphs[g.UserID] = memoryDoc{data: data, version: version + 1}
	return nil
}
