package processor

import (
	"context"
	"log"
	"sync"

	"github.com/earthring/chunkstream/internal/chunk"
	"github.com/earthring/chunkstream/internal/database"
	"github.com/earthring/chunkstream/internal/generator"
	"github.com/earthring/chunkstream/internal/performance"
)

// DefaultBatchSize is the number of chunks generated concurrently per batch.
const DefaultBatchSize = 5

// ChunkSource produces chunk content. *generator.Generator satisfies it.
type ChunkSource interface {
	GenerateChunk(ctx context.Context, key chunk.Key) (*generator.Content, error)
}

// Ready is delivered once per processed chunk.
type Ready struct {
	Key      chunk.Key
	Content  *generator.Content
	Entities []database.Entity
	Err      error
}

// Stats counts the processor's work since creation.
type Stats struct {
	Batches   int64 `json:"batches"`
	Processed int64 `json:"processed"`
	Queued    int   `json:"queued"`
}

// Option configures a Processor.
type Option func(*Processor)

// WithBatchSize sets how many chunks are generated per batch.
func WithBatchSize(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.batchSize = n
		}
	}
}

// WithYielder sets what runs between batches.
func WithYielder(y Yielder) Option {
	return func(p *Processor) {
		if y != nil {
			p.yielder = y
		}
	}
}

// WithProfiler records batch timings.
func WithProfiler(profiler *performance.Profiler) Option {
	return func(p *Processor) { p.profiler = profiler }
}

// Processor owns the generation backlog and drains it in batches.
//
// A key popped into a batch is no longer queued, so re-queueing it while the
// batch runs starts a second generation. Callers that care must reconcile
// duplicates when results arrive.
type Processor struct {
	gen       ChunkSource
	ents      database.EntitySource
	batchSize int
	yielder   Yielder
	profiler  *performance.Profiler

	mu         sync.Mutex
	queue      *Queue
	processing bool
	batches    int64
	processed  int64
}

// New creates a processor. A nil entity source yields empty entity lists.
func New(gen ChunkSource, ents database.EntitySource, opts ...Option) *Processor {
	if ents == nil {
		ents = database.NoEntities{}
	}
	p := &Processor{
		gen:       gen,
		ents:      ents,
		batchSize: DefaultBatchSize,
		yielder:   DelayYielder(DefaultIdleDelay),
		queue:     NewQueue(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// QueueChunk adds (cx, cy) to the backlog. Queueing a key twice is a no-op.
func (p *Processor) QueueChunk(cx, cy int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Push(chunk.NewKey(cx, cy))
}

// IsChunkQueued reports whether key is waiting to be processed.
func (p *Processor) IsChunkQueued(key chunk.Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Has(key)
}

// RemoveFromQueue drops key from the backlog so it is never generated.
func (p *Processor) RemoveFromQueue(key chunk.Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Remove(key)
}

// QueuedKeys returns the backlog in order.
func (p *Processor) QueuedKeys() []chunk.Key {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Keys()
}

// Processing reports whether a drain is running.
func (p *Processor) Processing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processing
}

// Stats returns the processor's counters.
func (p *Processor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Batches: p.batches, Processed: p.processed, Queued: p.queue.Len()}
}

// ProcessQueue drains the backlog, calling onReady once per chunk in the
// order each batch's members finish. Only one drain runs at a time; a call
// made while one is running returns immediately and its keys are picked up
// by the running drain. It returns when the queue is empty or ctx is done.
func (p *Processor) ProcessQueue(ctx context.Context, onReady func(Ready)) error {
	p.mu.Lock()
	if p.processing {
		p.mu.Unlock()
		return nil
	}
	p.processing = true
	p.mu.Unlock()

	for {
		p.mu.Lock()
		batch := p.queue.PopBatch(p.batchSize)
		if len(batch) == 0 {
			p.processing = false
			p.mu.Unlock()
			return nil
		}
		p.batches++
		p.mu.Unlock()

		p.runBatch(ctx, batch, onReady)

		if err := p.yielder.Yield(ctx); err != nil {
			p.mu.Lock()
			p.processing = false
			p.mu.Unlock()
			return err
		}
	}
}

func (p *Processor) runBatch(ctx context.Context, batch []chunk.Key, onReady func(Ready)) {
	defer p.profiler.Track("processor.batch")()

	results := make(chan Ready, len(batch))
	for _, key := range batch {
		go func(key chunk.Key) {
			results <- p.build(ctx, key)
		}(key)
	}

	for range batch {
		ready := <-results
		p.mu.Lock()
		p.processed++
		p.mu.Unlock()
		if onReady != nil {
			onReady(ready)
		}
	}
}

func (p *Processor) build(ctx context.Context, key chunk.Key) Ready {
	var (
		wg       sync.WaitGroup
		content  *generator.Content
		genErr   error
		entities []database.Entity
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		content, genErr = p.gen.GenerateChunk(ctx, key)
	}()
	go func() {
		defer wg.Done()
		var err error
		entities, err = p.ents.RetrieveEntities(ctx, key.X, key.Y)
		if err != nil {
			log.Printf("[Processor] entity retrieval failed for chunk %s: %v", key, err)
			entities = []database.Entity{}
		}
		if entities == nil {
			entities = []database.Entity{}
		}
	}()
	wg.Wait()

	if genErr != nil {
		return Ready{Key: key, Entities: entities, Err: genErr}
	}
	return Ready{Key: key, Content: content, Entities: entities}
}
