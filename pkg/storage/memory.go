package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jwebster45206/campaign-engine/pkg/campaign"
)

// MemoryDocuments is an in-process Documents backend used for tests and
// for running without Redis.
type MemoryDocuments struct {
	mu        sync.RWMutex
	docs      map[string]map[int64][]byte
	seq       map[string]int64
	pingError error
}

// Ensure MemoryDocuments implements Documents interface
var _ Documents = (*MemoryDocuments)(nil)

func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{
		docs: make(map[string]map[int64][]byte),
		seq:  make(map[string]int64),
	}
}

// NewMemoryStorage returns a Store backed by MemoryDocuments. A nil logger
// discards output.
func NewMemoryStorage(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return NewStore(NewMemoryDocuments(), logger)
}

func memKey(coll string, campaignID int64) string {
	return fmt.Sprintf("%d:%s", campaignID, coll)
}

// SetPingError configures Ping to fail with err (nil restores success).
func (m *MemoryDocuments) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

func (m *MemoryDocuments) Get(ctx context.Context, coll string, campaignID, id int64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[memKey(coll, campaignID)][id]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryDocuments) Put(ctx context.Context, coll string, campaignID, id int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey(coll, campaignID)
	if m.docs[key] == nil {
		m.docs[key] = make(map[int64][]byte)
	}
	m.docs[key][id] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryDocuments) Delete(ctx context.Context, coll string, campaignID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs[memKey(coll, campaignID)], id)
	return nil
}

func (m *MemoryDocuments) All(ctx context.Context, coll string, campaignID int64) (map[int64][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64][]byte, len(m.docs[memKey(coll, campaignID)]))
	for id, data := range m.docs[memKey(coll, campaignID)] {
		out[id] = append([]byte(nil), data...)
	}
	return out, nil
}

func (m *MemoryDocuments) NextID(ctx context.Context, coll string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq[coll]++
	return m.seq[coll], nil
}

func (m *MemoryDocuments) Reserve(ctx context.Context, coll string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seq[coll] < id {
		m.seq[coll] = id
	}
	return nil
}

func (m *MemoryDocuments) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MemoryDocuments) Close() error {
	return nil
}

// MemorySessionLog keeps session log entries in process.
type MemorySessionLog struct {
	mu      sync.RWMutex
	entries []campaign.LogEntry
	now     func() time.Time
}

// Ensure MemorySessionLog implements SessionLog interface
var _ SessionLog = (*MemorySessionLog)(nil)

func NewMemorySessionLog() *MemorySessionLog {
	return &MemorySessionLog{now: time.Now}
}

func (l *MemorySessionLog) Append(ctx context.Context, campaignID int64, entryType, message string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, campaign.LogEntry{
		ID:         int64(len(l.entries) + 1),
		CampaignID: campaignID,
		EntryType:  entryType,
		Message:    message,
		CreatedAt:  l.now(),
	})
	return nil
}

func (l *MemorySessionLog) Tail(ctx context.Context, campaignID int64, limit int) ([]campaign.LogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []campaign.LogEntry
	for i := len(l.entries) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		if l.entries[i].CampaignID == campaignID {
			out = append(out, l.entries[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Entries returns every entry of a campaign in append order.
func (l *MemorySessionLog) Entries(campaignID int64) []campaign.LogEntry {
	entries, _ := l.Tail(context.Background(), campaignID, 0)
	return entries
}

func (l *MemorySessionLog) Close() error {
	return nil
}
