package world

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/earthring/chunkstream/internal/chunk"
	"github.com/earthring/chunkstream/internal/generator"
	"github.com/earthring/chunkstream/internal/position"
	"github.com/earthring/chunkstream/internal/processor"
	"github.com/earthring/chunkstream/internal/streaming"
)

// DefaultRadius is the load radius used when none is configured.
var DefaultRadius = chunk.UniformRadius(2)

// Stats summarizes the manager's state.
type Stats struct {
	Residents  int             `json:"residents"`
	Queued     int             `json:"queued"`
	Duplicates int64           `json:"duplicates"`
	Stale      int64           `json:"stale"`
	Generator  generator.Stats `json:"generator"`
	Processor  processor.Stats `json:"processor"`
	Center     *chunk.Key      `json:"center,omitempty"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithRadius sets the load radius.
func WithRadius(r chunk.Radius) Option {
	return func(m *Manager) { m.radius = r }
}

// WithDebug logs every need, unneed and ready event.
func WithDebug(debug bool) Option {
	return func(m *Manager) { m.debug = debug }
}

// Manager keeps the chunks around an observer resident. Position updates
// and completed chunks are handled one at a time; the processor does the
// generation in the background.
type Manager struct {
	meta   generator.Meta
	radius chunk.Radius
	gen    *generator.Generator
	proc   *processor.Processor
	scene  Scene
	loads  *streaming.LoadManager
	debug  bool

	interaction *InteractionState

	// step serializes position handling and ready handling.
	step sync.Mutex

	mu         sync.RWMutex
	residents  map[chunk.Key]*Resident
	duplicates int64
	stale      int64

	ctx         context.Context
	cancels     []context.CancelFunc
	unsubscribe func()
	drains      sync.WaitGroup
	closed      bool
}

// NewManager wires a generator, processor and scene together. gen may be nil
// when proc is fed by another chunk source.
func NewManager(meta generator.Meta, gen *generator.Generator, proc *processor.Processor, scene Scene, opts ...Option) *Manager {
	if scene == nil {
		scene = NopScene{}
	}
	m := &Manager{
		meta:        meta,
		radius:      DefaultRadius,
		gen:         gen,
		proc:        proc,
		scene:       scene,
		interaction: NewInteractionState(),
		residents:   make(map[chunk.Key]*Resident),
	}
	for _, opt := range opts {
		opt(m)
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.ctx, m.cancels = ctx, []context.CancelFunc{cancel}
	m.loads = streaming.NewLoadManager(meta.ChunkSize, m.radius, tracker{m})
	m.loads.SetDebug(m.debug)
	return m
}

// Start subscribes to src and evaluates its current position immediately.
// Drains started from now on stop when ctx is cancelled or Close is called.
// Drains already running keep their own context, so chunks in flight from
// earlier updates still arrive.
func (m *Manager) Start(ctx context.Context, src position.Source) {
	m.step.Lock()
	var cancel context.CancelFunc
	m.ctx, cancel = context.WithCancel(ctx)
	m.cancels = append(m.cancels, cancel)
	m.step.Unlock()

	m.unsubscribe = src.SubscribeImmediately(m.HandlePosition)
}

// HandlePosition applies one position update.
func (m *Manager) HandlePosition(pos position.Position) {
	m.step.Lock()
	defer m.step.Unlock()
	if m.closed {
		return
	}

	delta := m.loads.UpdatePosition(pos)
	if len(delta.Needed) > 0 {
		m.kick()
	}
}

// kick starts a background drain. A drain that is already running picks up
// the new keys itself, so the extra call returns at once.
func (m *Manager) kick() {
	ctx := m.ctx
	m.drains.Add(1)
	go func() {
		defer m.drains.Done()
		if err := m.proc.ProcessQueue(ctx, m.onReady); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("[World] queue drain stopped: %v", err)
		}
	}()
}

func (m *Manager) onReady(r processor.Ready) {
	m.step.Lock()
	defer m.step.Unlock()

	if r.Err != nil {
		if !errors.Is(r.Err, context.Canceled) {
			log.Printf("[World] chunk %s failed: %v", r.Key, r.Err)
		}
		return
	}
	if m.closed {
		r.Content.Destroy()
		return
	}

	// Needed again while in flight: this result satisfies the new request.
	if m.proc.RemoveFromQueue(r.Key) && m.debug {
		log.Printf("[World] chunk %s arrived while re-queued; dropping queue entry", r.Key)
	}

	m.mu.Lock()
	if _, ok := m.residents[r.Key]; ok {
		m.duplicates++
		m.mu.Unlock()
		r.Content.Destroy()
		if m.debug {
			log.Printf("[World] duplicate chunk %s destroyed", r.Key)
		}
		return
	}
	if center, ok := m.loads.LastObserved(); ok && !m.radius.Contains(center, r.Key) {
		m.stale++
		m.mu.Unlock()
		r.Content.Destroy()
		if m.debug {
			log.Printf("[World] chunk %s left the radius before it arrived", r.Key)
		}
		return
	}
	res := &Resident{
		Key:        r.Key,
		Content:    r.Content,
		Entities:   r.Entities,
		AttachedAt: time.Now(),
	}
	m.residents[r.Key] = res
	m.mu.Unlock()

	m.scene.Attach(res)
	if m.debug {
		log.Printf("[World] chunk %s resident (%d entities, %s)", r.Key, len(r.Entities), r.Content.Source)
	}
}

// evict removes a resident chunk or a queued request. Called with step held.
func (m *Manager) evict(key chunk.Key) {
	m.mu.Lock()
	res, ok := m.residents[key]
	if ok {
		delete(m.residents, key)
	}
	m.mu.Unlock()

	if !ok {
		m.proc.RemoveFromQueue(key)
		return
	}
	m.scene.Detach(res)
	res.Destroy()
	m.interaction.ClearChunk(key)
	if m.debug {
		log.Printf("[World] chunk %s evicted", key)
	}
}

// Residents lists resident chunk keys row by row.
func (m *Manager) Residents() []chunk.Key {
	m.mu.RLock()
	keys := make([]chunk.Key, 0, len(m.residents))
	for k := range m.residents {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	chunk.SortKeys(keys)
	return keys
}

// Resident returns the resident chunk for key.
func (m *Manager) Resident(key chunk.Key) (*Resident, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.residents[key]
	return r, ok
}

// IsResident reports whether key is resident.
func (m *Manager) IsResident(key chunk.Key) bool {
	_, ok := m.Resident(key)
	return ok
}

// Interaction returns the manager's hover and selection state.
func (m *Manager) Interaction() *InteractionState {
	return m.interaction
}

// Meta returns the generation settings.
func (m *Manager) Meta() generator.Meta {
	return m.meta
}

// Radius returns the load radius.
func (m *Manager) Radius() chunk.Radius {
	return m.radius
}

// Stats reports residency and pipeline counters.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	stats := Stats{
		Residents:  len(m.residents),
		Duplicates: m.duplicates,
		Stale:      m.stale,
	}
	m.mu.RUnlock()

	stats.Processor = m.proc.Stats()
	stats.Queued = stats.Processor.Queued
	if m.gen != nil {
		stats.Generator = m.gen.Stats()
	}
	if center, ok := m.loads.LastObserved(); ok {
		stats.Center = &center
	}
	return stats
}

// Wait blocks until every background drain started so far has finished.
func (m *Manager) Wait() {
	m.drains.Wait()
}

// Close stops listening for positions, abandons queued work, detaches every
// resident chunk and releases the generator's resources.
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}

	m.step.Lock()
	if m.closed {
		m.step.Unlock()
		return
	}
	m.closed = true
	for _, cancel := range m.cancels {
		cancel()
	}
	for _, key := range m.proc.QueuedKeys() {
		m.proc.RemoveFromQueue(key)
	}
	m.step.Unlock()

	m.drains.Wait()

	m.step.Lock()
	defer m.step.Unlock()
	m.mu.Lock()
	residents := m.residents
	m.residents = make(map[chunk.Key]*Resident)
	m.mu.Unlock()

	keys := make([]chunk.Key, 0, len(residents))
	for k := range residents {
		keys = append(keys, k)
	}
	chunk.SortKeys(keys)
	for _, k := range keys {
		m.scene.Detach(residents[k])
		residents[k].Destroy()
	}
	if m.gen != nil {
		m.gen.Destroy()
	}
	log.Printf("[World] closed (%d chunks released)", len(keys))
}

// tracker exposes the manager's state to the load manager. Its methods run
// with step held.
type tracker struct {
	m *Manager
}

func (t tracker) IsChunkLoaded(key chunk.Key) bool {
	return t.m.IsResident(key)
}

func (t tracker) IsChunkQueued(key chunk.Key) bool {
	return t.m.proc.IsChunkQueued(key)
}

func (t tracker) ActiveKeys() []chunk.Key {
	keys := t.m.Residents()
	return append(keys, t.m.proc.QueuedKeys()...)
}

func (t tracker) OnChunkNeeded(key chunk.Key) {
	t.m.proc.QueueChunk(key.X, key.Y)
	if t.m.debug {
		log.Printf("[World] chunk %s needed", key)
	}
}

func (t tracker) OnChunkUnneeded(key chunk.Key) {
	t.m.evict(key)
}
