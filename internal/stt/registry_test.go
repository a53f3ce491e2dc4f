package stt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeEngine struct {
	text   string
	active atomic.Int32
	peak   atomic.Int32
}

func (f *fakeEngine) Transcribe(context.Context, string) (string, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return f.text, nil
}

type countingLoader struct {
	mu     sync.Mutex
	counts map[Language]int
	delay  time.Duration
	fail   map[Language]error
}

func (c *countingLoader) load(_ context.Context, lang Language) (Engine, error) {
	time.Sleep(c.delay)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[Language]int{}
	}
	c.counts[lang]++
	if err := c.fail[lang]; err != nil {
		return nil, err
	}
	return &fakeEngine{text: string(lang)}, nil
}

func (c *countingLoader) count(lang Language) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[lang]
}

func TestPreloadBuildsEnglishEagerly(t *testing.T) {
	loader := &countingLoader{}
	r := NewRegistry(loader.load)

	if err := r.Preload(context.Background(), English); err != nil {
		t.Fatalf("Preload() error = %v", err)
	}
	if !r.Loaded(English) {
		t.Fatal("expected english handle loaded")
	}
	if r.Loaded(Portuguese) {
		t.Fatal("portuguese handle must stay lazy")
	}
	if loader.count(English) != 1 || loader.count(Portuguese) != 0 {
		t.Fatalf("unexpected load counts: %+v", loader.counts)
	}
}

func TestConcurrentFirstUseConstructsOnce(t *testing.T) {
	loader := &countingLoader{delay: 20 * time.Millisecond}
	r := NewRegistry(loader.load)

	const n = 32
	handles := make([]*Handle, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			h, err := r.Get(context.Background(), Portuguese)
			if err != nil {
				t.Errorf("Get() error = %v", err)
				return
			}
			handles[i] = h
		}(i)
	}
	wg.Wait()

	if got := loader.count(Portuguese); got != 1 {
		t.Fatalf("expected exactly one construction, got %d", got)
	}
	for i := 1; i < n; i++ {
		if handles[i] != handles[0] {
			t.Fatal("expected every caller to share one handle")
		}
	}
}

func TestFailedLoadIsRetried(t *testing.T) {
	loader := &countingLoader{fail: map[Language]error{Portuguese: errors.New("model file missing")}}
	r := NewRegistry(loader.load)

	if _, err := r.Get(context.Background(), Portuguese); err == nil {
		t.Fatal("expected load error")
	}
	if r.Loaded(Portuguese) {
		t.Fatal("failed load must not be cached")
	}

	loader.mu.Lock()
	loader.fail = nil
	loader.mu.Unlock()

	if _, err := r.Get(context.Background(), Portuguese); err != nil {
		t.Fatalf("Get() after recovery error = %v", err)
	}
	if got := loader.count(Portuguese); got != 2 {
		t.Fatalf("expected two load attempts, got %d", got)
	}
}

func TestGetRejectsUnsupportedLanguage(t *testing.T) {
	loader := &countingLoader{}
	r := NewRegistry(loader.load)

	if _, err := r.Get(context.Background(), Language("fr")); err == nil {
		t.Fatal("expected error for unsupported language")
	}
	if loader.count("fr") != 0 {
		t.Fatal("loader must not run for unsupported language")
	}
}

func TestSerializedHandleRunsOneInferenceAtATime(t *testing.T) {
	engine := &fakeEngine{text: "ok"}
	r := NewRegistry(func(context.Context, Language) (Engine, error) { return engine, nil }, WithSerializedInference(true))
	h, err := r.Get(context.Background(), English)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.Transcribe(context.Background(), "x.wav")
		}()
	}
	wg.Wait()

	if peak := engine.peak.Load(); peak != 1 {
		t.Fatalf("expected serialized inference, peak concurrency %d", peak)
	}
}

func TestLoadObserverCalledOncePerLanguage(t *testing.T) {
	loader := &countingLoader{}
	var mu sync.Mutex
	observed := map[Language]int{}
	r := NewRegistry(loader.load, WithLoadObserver(func(lang Language, _ time.Duration) {
		mu.Lock()
		observed[lang]++
		mu.Unlock()
	}))

	for i := 0; i < 3; i++ {
		if _, err := r.Get(context.Background(), English); err != nil {
			t.Fatal(err)
		}
	}
	if observed[English] != 1 {
		t.Fatalf("expected one load observation, got %d", observed[English])
	}
}

func TestParseLanguage(t *testing.T) {
	if lang, ok := ParseLanguage(" PT "); !ok || lang != Portuguese {
		t.Fatalf("unexpected parse: %q %v", lang, ok)
	}
	if _, ok := ParseLanguage("es"); ok {
		t.Fatal("expected es to be unsupported")
	}
}

type blockingEngine struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingEngine) Transcribe(context.Context, string) (string, error) {
	b.started <- struct{}{}
	<-b.release
	return "done", nil
}

func TestSerializedWaiterHonorsContext(t *testing.T) {
	engine := &blockingEngine{started: make(chan struct{}, 2), release: make(chan struct{})}
	r := NewRegistry(func(context.Context, Language) (Engine, error) { return engine, nil }, WithSerializedInference(true))
	h, err := r.Get(context.Background(), English)
	if err != nil {
		t.Fatal(err)
	}

	first := make(chan error, 1)
	go func() {
		_, err := h.Transcribe(context.Background(), "a.wav")
		first <- err
	}()
	<-engine.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	waited := make(chan error, 1)
	go func() {
		_, err := h.Transcribe(ctx, "b.wav")
		waited <- err
	}()

	select {
	case err := <-waited:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued caller did not return after its context ended")
	}

	close(engine.release)
	if err := <-first; err != nil {
		t.Fatalf("first inference failed: %v", err)
	}
	select {
	case <-engine.started:
		t.Fatal("cancelled caller must not reach the engine")
	default:
	}

	if text, err := h.Transcribe(context.Background(), "c.wav"); err != nil || text != "done" {
		t.Fatalf("handle unusable after cancellation: %q %v", text, err)
	}
}
