package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/earthring/chunkstream/internal/chunk"
	"github.com/earthring/chunkstream/internal/database"
	"github.com/earthring/chunkstream/internal/generator"
)

// fakeSource records generated keys. When gate is set every generation
// blocks until it is closed.
type fakeSource struct {
	mu      sync.Mutex
	keys    []chunk.Key
	gate    chan struct{}
	started chan chunk.Key
	fail    map[chunk.Key]bool
}

func (f *fakeSource) GenerateChunk(ctx context.Context, key chunk.Key) (*generator.Content, error) {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	if f.started != nil {
		f.started <- key
	}
	if f.gate != nil {
		<-f.gate
	}
	if f.fail[key] {
		return nil, errors.New("generation failed")
	}
	return &generator.Content{Key: key}, nil
}

func (f *fakeSource) generated() []chunk.Key {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chunk.Key(nil), f.keys...)
}

type failingEntities struct{}

func (failingEntities) RetrieveEntities(ctx context.Context, cx, cy int) ([]database.Entity, error) {
	return nil, errors.New("database down")
}

type fixedEntities struct{}

func (fixedEntities) RetrieveEntities(ctx context.Context, cx, cy int) ([]database.Entity, error) {
	return []database.Entity{{ID: chunk.NewKey(cx, cy).String(), Kind: "marker", ChunkX: cx, ChunkY: cy}}, nil
}

var noYield = YieldFunc(func(ctx context.Context) error { return nil })

func TestQueue(t *testing.T) {
	q := NewQueue()
	if !q.Push(chunk.NewKey(0, 0)) || !q.Push(chunk.NewKey(1, 0)) || !q.Push(chunk.NewKey(2, 0)) {
		t.Fatal("Push of new keys should succeed")
	}
	if q.Push(chunk.NewKey(1, 0)) {
		t.Error("Push of queued key should be a no-op")
	}
	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}
	if !q.Remove(chunk.NewKey(1, 0)) || q.Has(chunk.NewKey(1, 0)) {
		t.Error("Remove did not drop key")
	}
	if q.Remove(chunk.NewKey(9, 9)) {
		t.Error("Remove of unknown key should report false")
	}

	batch := q.PopBatch(5)
	if len(batch) != 2 || batch[0] != chunk.NewKey(0, 0) || batch[1] != chunk.NewKey(2, 0) {
		t.Errorf("PopBatch = %v", batch)
	}
	if q.Len() != 0 || q.Has(chunk.NewKey(0, 0)) {
		t.Error("popped keys should leave the queue")
	}
	if q.PopBatch(5) != nil {
		t.Error("PopBatch on empty queue should return nil")
	}
	if !q.Push(chunk.NewKey(0, 0)) {
		t.Error("popped key should be queueable again")
	}
}

func TestProcessQueueDrainsInBatches(t *testing.T) {
	src := &fakeSource{}
	var mu sync.Mutex
	var delivered []chunk.Key
	var atYield []int

	p := New(src, nil, WithYielder(YieldFunc(func(ctx context.Context) error {
		mu.Lock()
		atYield = append(atYield, len(delivered))
		mu.Unlock()
		return nil
	})))

	for i := 0; i < 12; i++ {
		p.QueueChunk(i, -i)
	}
	err := p.ProcessQueue(context.Background(), func(r Ready) {
		mu.Lock()
		delivered = append(delivered, r.Key)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}

	if len(delivered) != 12 {
		t.Fatalf("onReady called %d times, want 12", len(delivered))
	}
	if got := chunk.NewSet(delivered...).Len(); got != 12 {
		t.Errorf("got %d distinct keys, want 12", got)
	}
	want := []int{5, 10, 12}
	if len(atYield) != len(want) {
		t.Fatalf("yields at %v, want %v", atYield, want)
	}
	for i := range want {
		if atYield[i] != want[i] {
			t.Errorf("yields at %v, want %v", atYield, want)
			break
		}
	}
	if stats := p.Stats(); stats.Batches != 3 || stats.Processed != 12 || stats.Queued != 0 {
		t.Errorf("Stats() = %+v", stats)
	}
	if p.Processing() {
		t.Error("processing flag left set")
	}
}

func TestQueueChunkIsIdempotent(t *testing.T) {
	src := &fakeSource{}
	p := New(src, nil, WithYielder(noYield))

	if !p.QueueChunk(3, 4) {
		t.Fatal("first QueueChunk should add")
	}
	if p.QueueChunk(3, 4) {
		t.Error("second QueueChunk should be a no-op")
	}
	if !p.IsChunkQueued(chunk.NewKey(3, 4)) {
		t.Error("IsChunkQueued = false")
	}

	calls := 0
	_ = p.ProcessQueue(context.Background(), func(Ready) { calls++ })
	if calls != 1 {
		t.Errorf("onReady called %d times, want 1", calls)
	}
}

func TestRemovedChunkIsNeverGenerated(t *testing.T) {
	src := &fakeSource{}
	p := New(src, nil, WithYielder(noYield))
	p.QueueChunk(0, 0)
	p.QueueChunk(1, 0)
	p.RemoveFromQueue(chunk.NewKey(0, 0))

	if got := p.QueuedKeys(); len(got) != 1 || got[0] != chunk.NewKey(1, 0) {
		t.Fatalf("QueuedKeys() = %v", got)
	}
	_ = p.ProcessQueue(context.Background(), nil)
	for _, k := range src.generated() {
		if k == chunk.NewKey(0, 0) {
			t.Fatal("removed chunk was generated")
		}
	}
}

func TestProcessQueueIsNotReentrant(t *testing.T) {
	src := &fakeSource{gate: make(chan struct{}), started: make(chan chunk.Key, 8)}
	p := New(src, nil, WithYielder(noYield))
	p.QueueChunk(0, 0)

	done := make(chan error, 1)
	var first int
	go func() {
		done <- p.ProcessQueue(context.Background(), func(Ready) { first++ })
	}()

	select {
	case <-src.started:
	case <-time.After(2 * time.Second):
		t.Fatal("generation never started")
	}

	p.QueueChunk(1, 1)
	second := 0
	if err := p.ProcessQueue(context.Background(), func(Ready) { second++ }); err != nil {
		t.Fatalf("nested ProcessQueue returned %v", err)
	}
	if second != 0 {
		t.Error("nested ProcessQueue delivered chunks")
	}

	close(src.gate)
	if err := <-done; err != nil {
		t.Fatalf("ProcessQueue failed: %v", err)
	}
	if first != 2 {
		t.Errorf("running drain delivered %d chunks, want 2 (it should pick up the late key)", first)
	}
}

func TestProcessQueueResumes(t *testing.T) {
	src := &fakeSource{}
	p := New(src, nil, WithYielder(noYield))

	p.QueueChunk(0, 0)
	_ = p.ProcessQueue(context.Background(), nil)

	p.QueueChunk(5, 5)
	var got []chunk.Key
	_ = p.ProcessQueue(context.Background(), func(r Ready) { got = append(got, r.Key) })
	if len(got) != 1 || got[0] != chunk.NewKey(5, 5) {
		t.Errorf("second drain delivered %v", got)
	}
}

func TestEntityFailureYieldsEmptyList(t *testing.T) {
	p := New(&fakeSource{}, failingEntities{}, WithYielder(noYield))
	p.QueueChunk(2, 2)

	var ready Ready
	_ = p.ProcessQueue(context.Background(), func(r Ready) { ready = r })
	if ready.Err != nil {
		t.Fatalf("entity failure surfaced as error: %v", ready.Err)
	}
	if ready.Content == nil {
		t.Fatal("content missing")
	}
	if ready.Entities == nil || len(ready.Entities) != 0 {
		t.Errorf("Entities = %#v, want empty list", ready.Entities)
	}
}

func TestEntitiesAreAttached(t *testing.T) {
	p := New(&fakeSource{}, fixedEntities{}, WithYielder(noYield))
	p.QueueChunk(-1, 3)

	var ready Ready
	_ = p.ProcessQueue(context.Background(), func(r Ready) { ready = r })
	if len(ready.Entities) != 1 || ready.Entities[0].ID != "-1,3" {
		t.Errorf("Entities = %+v", ready.Entities)
	}
}

func TestGenerationErrorIsReported(t *testing.T) {
	src := &fakeSource{fail: map[chunk.Key]bool{chunk.NewKey(1, 1): true}}
	p := New(src, nil, WithYielder(noYield))
	p.QueueChunk(1, 1)
	p.QueueChunk(2, 2)

	errs := 0
	_ = p.ProcessQueue(context.Background(), func(r Ready) {
		if r.Err != nil {
			errs++
			if r.Key != chunk.NewKey(1, 1) || r.Content != nil {
				t.Errorf("unexpected failed ready %+v", r)
			}
		}
	})
	if errs != 1 {
		t.Errorf("got %d errors, want 1", errs)
	}
}

func TestCancelledYieldStopsDrain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := New(&fakeSource{}, nil, WithBatchSize(2), WithYielder(YieldFunc(func(ctx context.Context) error {
		cancel()
		return ctx.Err()
	})))
	for i := 0; i < 5; i++ {
		p.QueueChunk(i, 0)
	}

	err := p.ProcessQueue(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if p.Processing() {
		t.Error("processing flag left set")
	}
	if got := len(p.QueuedKeys()); got != 3 {
		t.Errorf("%d keys left queued, want 3", got)
	}
}

func TestYielders(t *testing.T) {
	if err := DelayYielder(time.Millisecond).Yield(context.Background()); err != nil {
		t.Errorf("DelayYielder: %v", err)
	}
	if err := (GoschedYielder{}).Yield(context.Background()); err != nil {
		t.Errorf("GoschedYielder: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := DelayYielder(time.Hour).Yield(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("DelayYielder on cancelled ctx = %v", err)
	}
}
