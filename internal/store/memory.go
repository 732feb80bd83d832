package store

import (
	"context"
	"sort"
	"sync"

	"github.com/suwandre/fundarb/internal/models"
)

type snapshotKey struct {
	exchangeID   int64
	instrumentID int64
}

// Memory is a process-local Repository for tests and single-node runs.
type Memory struct {
	mu sync.RWMutex

	nextID      int64
	exchanges   map[string]models.Exchange   // by code
	instruments map[string]models.Instrument // by canonical
	snapshots   map[snapshotKey]models.FundingSnapshot
}

func NewMemory() *Memory {
	return &Memory{
		exchanges:   make(map[string]models.Exchange),
		instruments: make(map[string]models.Instrument),
		snapshots:   make(map[snapshotKey]models.FundingSnapshot),
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) SeedExchanges(_ context.Context, exchanges []models.Exchange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, e := range exchanges {
		if prev, ok := m.exchanges[e.Code]; ok {
			e.ID = prev.ID
		} else {
			e.ID = m.id()
		}
		m.exchanges[e.Code] = e
	}
	return nil
}

func (m *Memory) ExchangeIDs(_ context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]int64, len(m.exchanges))
	for code, e := range m.exchanges {
		out[code] = e.ID
	}
	return out, nil
}

func (m *Memory) FindInstruments(_ context.Context, canonicals []string) ([]models.Instrument, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Instrument, 0, len(canonicals))
	for _, c := range canonicals {
		if ins, ok := m.instruments[c]; ok {
			out = append(out, ins)
		}
	}
	return out, nil
}

func (m *Memory) InsertInstruments(_ context.Context, canonicals []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range canonicals {
		if _, ok := m.instruments[c]; ok {
			continue
		}
		m.instruments[c] = models.Instrument{ID: m.id(), Canonical: c}
	}
	return nil
}

func (m *Memory) UpsertSnapshots(_ context.Context, snapshots []models.FundingSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range snapshots {
		key := snapshotKey{s.ExchangeID, s.InstrumentID}
		if prev, ok := m.snapshots[key]; ok {
			s.ID = prev.ID
		} else {
			s.ID = m.id()
		}
		m.snapshots[key] = s
	}
	return nil
}

func (m *Memory) SnapshotsSince(_ context.Context, minRetrievedAtMs int64) ([]models.SnapshotView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	codes := make(map[int64]string, len(m.exchanges))
	for code, e := range m.exchanges {
		codes[e.ID] = code
	}
	canonicals := make(map[int64]string, len(m.instruments))
	for c, ins := range m.instruments {
		canonicals[ins.ID] = c
	}

	var out []models.SnapshotView
	for _, s := range m.snapshots {
		if s.RetrievedAtMs < minRetrievedAtMs {
			continue
		}
		out = append(out, models.SnapshotView{
			FundingSnapshot: s,
			ExchangeCode:    codes[s.ExchangeID],
			Canonical:       canonicals[s.InstrumentID],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Snapshots returns every stored snapshot ordered by id.
func (m *Memory) Snapshots() []models.FundingSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.FundingSnapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
