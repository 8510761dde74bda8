package settings

import "sync"

// MemoryStore is a [Store] that keeps everything in memory. It is used when
// the monitor is embedded without a data directory, and in tests.
type MemoryStore struct {
	mu           sync.Mutex
	settings     Settings
	saved        bool
	configured   bool
	historyCount uint32
	historyBlob  []byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{settings: Defaults()}
}

func (m *MemoryStore) Load() (Settings, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings, m.saved, nil
}

func (m *MemoryStore) Save(s Settings) (Settings, error) {
	s = s.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	m.saved = true
	return s, nil
}

func (m *MemoryStore) Configured() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.configured, nil
}

func (m *MemoryStore) MarkConfigured() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.configured = true
	return nil
}

func (m *MemoryStore) LoadHistory() (uint32, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.historyCount, append([]byte(nil), m.historyBlob...), nil
}

func (m *MemoryStore) SaveHistory(count uint32, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.historyCount = count
	m.historyBlob = append([]byte(nil), blob...)
	return nil
}

func (m *MemoryStore) Close() error { return nil }
