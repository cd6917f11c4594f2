// Package dashboard holds the per-user view state that survives between requests.
package dashboard

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/suPer8Hu/ads-dashboard/internal/ads"
	"github.com/suPer8Hu/ads-dashboard/internal/apperr"
	"github.com/suPer8Hu/ads-dashboard/internal/chat"
)

// State is one dashboard user: the chat view and the ads view.
type State struct {
	Chat *chat.SessionState `json:"chat"`
	Ads  *ads.State         `json:"ads"`
}

func NewState() *State {
	return &State{Chat: chat.NewSessionState(), Ads: ads.NewState()}
}

// NewSessionID identifies a dashboard user (not a chat session).
func NewSessionID() string { return uuid.NewString() }

// ValidSessionID rejects ids the server did not mint.
func ValidSessionID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Store keeps State between requests. Load returns an apperr.ErrNotFound error for an
// unknown id. AcquireTurn returns apperr.ErrBusy while another turn holds the id.
type Store interface {
	Load(ctx context.Context, id string) (*State, error)
	Save(ctx context.Context, id string, st *State) error
	AcquireTurn(ctx context.Context, id string) (release func(), err error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	turns map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]byte{}, turns: map[string]struct{}{}}
}

func (m *MemoryStore) Load(ctx context.Context, id string) (*State, error) {
	m.mu.Lock()
	raw, ok := m.data[id]
	m.mu.Unlock()
	if !ok {
		return nil, apperr.NotFound("dashboard.load")
	}
	return Decode(raw)
}

func (m *MemoryStore) Save(ctx context.Context, id string, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return apperr.Persistence("dashboard.save", err)
	}
	m.mu.Lock()
	m.data[id] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) AcquireTurn(ctx context.Context, id string) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, busy := m.turns[id]; busy {
		return nil, apperr.Wrap(apperr.ErrBusy, "dashboard.acquire_turn", nil)
	}
	m.turns[id] = struct{}{}
	return func() {
		m.mu.Lock()
		delete(m.turns, id)
		m.mu.Unlock()
	}, nil
}

// Decode restores a serialized State, filling sub-states an older payload lacks.
func Decode(raw []byte) (*State, error) {
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, apperr.Persistence("dashboard.decode", err)
	}
	if st.Chat == nil {
		st.Chat = chat.NewSessionState()
	}
	if st.Ads == nil {
		st.Ads = ads.NewState()
	}
	return &st, nil
}
