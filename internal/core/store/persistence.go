package store

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultSnapshotName is the fixed blob key the whole store is saved under.
	DefaultSnapshotName = "smarthome_state"

	snapshotVersion = 1
)

// Backend stores opaque snapshot blobs by name. Load returns nil, nil when
// no blob exists.
type Backend interface {
	Save(ctx context.Context, name string, blob []byte) error
	Load(ctx context.Context, name string) ([]byte, error)
}

// Codec transforms blobs on their way to and from the backend.
type Codec interface {
	Encode(src []byte) ([]byte, error)
	Decode(src []byte) ([]byte, error)
}

type envelope struct {
	Version int             `json:"version"`
	SavedAt time.Time       `json:"savedAt"`
	State   json.RawMessage `json:"state"`
}

// AdapterOptions tune a PersistenceAdapter.
type AdapterOptions struct {
	Name    string
	Timeout time.Duration
	Codec   Codec
	// OnSave observes the outcome and duration of every save attempt.
	OnSave func(err error, took time.Duration)
}

// PersistenceAdapter snapshots the store into a Backend after every
// mutation. Save failures are logged and swallowed so the simulation keeps
// running in memory.
type PersistenceAdapter struct {
	backend Backend
	opts    AdapterOptions
	logger  *logrus.Logger
	now     func() time.Time
}

// NewPersistenceAdapter creates an adapter over backend.
func NewPersistenceAdapter(backend Backend, opts AdapterOptions, logger *logrus.Logger) *PersistenceAdapter {
	if opts.Name == "" {
		opts.Name = DefaultSnapshotName
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}
	return &PersistenceAdapter{
		backend: backend,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
	}
}

// SaveSnapshot writes the entire store. It never fails from the caller's
// point of view.
func (p *PersistenceAdapter) SaveSnapshot(s *Store) {
	start := time.Now()
	err := p.save(s)
	if err != nil {
		p.logger.WithError(err).WithField("snapshot", p.opts.Name).Warn("Failed to save state snapshot")
	}
	if p.opts.OnSave != nil {
		p.opts.OnSave(err, time.Since(start))
	}
}

func (p *PersistenceAdapter) save(s *Store) error {
	state, err := s.MarshalState()
	if err != nil {
		return err
	}

	blob, err := json.Marshal(envelope{
		Version: snapshotVersion,
		SavedAt: p.now().UTC(),
		State:   state,
	})
	if err != nil {
		return err
	}

	if p.opts.Codec != nil {
		if blob, err = p.opts.Codec.Encode(blob); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.Timeout)
	defer cancel()
	return p.backend.Save(ctx, p.opts.Name, blob)
}

// LoadSnapshot reads the last snapshot. It returns nil when the blob is
// missing or cannot be parsed, in which case callers keep their defaults.
func (p *PersistenceAdapter) LoadSnapshot(ctx context.Context) map[string]json.RawMessage {
	ctx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	blob, err := p.backend.Load(ctx, p.opts.Name)
	if err != nil {
		p.logger.WithError(err).WithField("snapshot", p.opts.Name).Warn("Failed to load state snapshot")
		return nil
	}
	if len(blob) == 0 {
		return nil
	}

	if p.opts.Codec != nil {
		if blob, err = p.opts.Codec.Decode(blob); err != nil {
			p.logger.WithError(err).Warn("Failed to decode state snapshot")
			return nil
		}
	}

	state, err := parseSnapshot(blob)
	if err != nil {
		p.logger.WithError(err).Warn("Discarding corrupt state snapshot")
		return nil
	}
	return state
}

// Restore loads the snapshot into s. It reports whether anything was restored.
func (p *PersistenceAdapter) Restore(ctx context.Context, s *Store) bool {
	state := p.LoadSnapshot(ctx)
	if state == nil {
		return false
	}
	s.Restore(state)
	return true
}

// parseSnapshot accepts the versioned envelope and the bare key map written
// before versioning existed.
func parseSnapshot(blob []byte) (map[string]json.RawMessage, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(blob, &top); err != nil {
		return nil, err
	}

	if _, ok := top["version"]; ok {
		if raw, ok := top["state"]; ok {
			state := make(map[string]json.RawMessage)
			if err := json.Unmarshal(raw, &state); err != nil {
				return nil, err
			}
			return state, nil
		}
	}
	return top, nil
}

// ZstdCodec compresses snapshots. Decode passes uncompressed blobs through
// untouched so enabling compression does not orphan an existing snapshot.
type ZstdCodec struct {
	once    sync.Once
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	err     error
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

func (c *ZstdCodec) init() {
	c.once.Do(func() {
		c.encoder, c.err = zstd.NewWriter(nil)
		if c.err != nil {
			return
		}
		c.decoder, c.err = zstd.NewReader(nil)
	})
}

func (c *ZstdCodec) Encode(src []byte) ([]byte, error) {
	c.init()
	if c.err != nil {
		return nil, c.err
	}
	return c.encoder.EncodeAll(src, nil), nil
}

func (c *ZstdCodec) Decode(src []byte) ([]byte, error) {
	if !bytes.HasPrefix(src, zstdMagic) {
		return src, nil
	}
	c.init()
	if c.err != nil {
		return nil, c.err
	}
	return c.decoder.DecodeAll(src, nil)
}

// MemoryBackend keeps blobs in process memory.
type MemoryBackend struct {
	mu    sync.RWMutex
	blobs map[string][]byte
	// Fail, when set, is returned by Save.
	Fail error
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{blobs: make(map[string][]byte)}
}

func (m *MemoryBackend) Save(_ context.Context, name string, blob []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return m.Fail
	}
	m.blobs[name] = append([]byte(nil), blob...)
	return nil
}

func (m *MemoryBackend) Load(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[name]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), blob...), nil
}
