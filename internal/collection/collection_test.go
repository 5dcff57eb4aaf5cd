package collection

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/AnyUserName/imgconv/internal/engine"
	"github.com/AnyUserName/imgconv/internal/format"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCodec decodes a two-byte payload {w, h} into a blank w×h image and
// encodes to a single byte carrying the width. Widths can be gated or set
// to fail a number of times.
type stubCodec struct {
	mu       sync.Mutex
	gates    map[int]chan struct{}
	failures map[int]int
	calls    map[int]int
}

func newStubCodec() *stubCodec {
	return &stubCodec{
		gates:    map[int]chan struct{}{},
		failures: map[int]int{},
		calls:    map[int]int{},
	}
}

func (s *stubCodec) gate(w int) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan struct{})
	s.gates[w] = ch
	return ch
}

func (s *stubCodec) failNext(w, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[w] = n
}

func (s *stubCodec) callsFor(w int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[w]
}

func (s *stubCodec) Decode(_ context.Context, data []byte) (image.Image, error) {
	if len(data) != 2 || data[0] == 0 || data[1] == 0 {
		return nil, errors.New("bad payload")
	}
	return image.NewNRGBA(image.Rect(0, 0, int(data[0]), int(data[1]))), nil
}

func (s *stubCodec) Encode(_ context.Context, img image.Image, _ format.Format, _ float64) ([]byte, error) {
	w := img.Bounds().Dx()
	s.mu.Lock()
	s.calls[w]++
	gate := s.gates[w]
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures[w] > 0 {
		s.failures[w]--
		return nil, errors.New("encoder exploded")
	}
	return []byte{byte(w)}, nil
}

// recorder captures events and checks the result/status invariant on every
// state change it sees.
type recorder struct {
	t  *testing.T
	mu sync.Mutex

	added    []ID
	statuses map[ID][]Status
	removed  []ID
	settings []Settings
	batches  [][]Download
}

func newRecorder(t *testing.T) *recorder {
	return &recorder{t: t, statuses: map[ID][]Status{}}
}

func (r *recorder) RecordAdded(v RecordView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(r.t, StatusLoading, v.Status)
	r.added = append(r.added, v.ID)
	r.statuses[v.ID] = append(r.statuses[v.ID], v.Status)
}

func (r *recorder) RecordStateChanged(v RecordView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(r.t, v.Status == StatusConverted, v.Result != nil, "result iff converted")
	assert.Equal(r.t, v.Status == StatusFailed, v.FailureReason != "", "reason iff failed")
	r.statuses[v.ID] = append(r.statuses[v.ID], v.Status)
}

func (r *recorder) RecordRemoved(id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, id)
}

func (r *recorder) SettingsChanged(s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings = append(r.settings, s)
}

func (r *recorder) BatchDownloadReady(ds []Download) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, ds)
}

func (r *recorder) history(id ID) []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Status(nil), r.statuses[id]...)
}

type fixture struct {
	codec *stubCodec
	eng   *engine.Engine
	rec   *recorder
	c     *Collection
}

func newFixture(t *testing.T) *fixture {
	codec := newStubCodec()
	eng := engine.New(codec)
	rec := newRecorder(t)
	return &fixture{codec: codec, eng: eng, rec: rec, c: New(eng, WithObserver(rec))}
}

func file(name string, w, h byte) File {
	return File{Name: name, Size: 2, MIME: "image/png", Data: []byte{w, h}}
}

func (f *fixture) add(t *testing.T, name string, w byte) ID {
	t.Helper()
	id, err := f.c.Add(context.Background(), file(name, w, 1))
	require.NoError(t, err)
	return id
}

func (f *fixture) status(t *testing.T, id ID) Status {
	t.Helper()
	v, ok := f.c.Get(id)
	require.True(t, ok)
	return v.Status
}

func TestAdd_DecodesToReady(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, "a.png", 4)
	f.c.Wait()

	v, ok := f.c.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusReady, v.Status)
	assert.Equal(t, 4, v.Width)
	assert.Equal(t, 1, v.Height)
	assert.Equal(t, "a.png", v.SourceName)
	assert.Nil(t, v.Result)
	assert.Equal(t, []Status{StatusLoading, StatusReady}, f.rec.history(id))
}

func TestAdd_CapacityExceeded(t *testing.T) {
	f := newFixture(t)
	var ids []ID
	for i := 1; i <= Capacity; i++ {
		ids = append(ids, f.add(t, "img.png", byte(i)))
	}

	_, err := f.c.Add(context.Background(), file("seventh.png", 9, 9))
	assert.ErrorIs(t, err, ErrCapacityExceeded)

	f.c.Wait()
	require.Equal(t, Capacity, f.c.Len())
	for _, id := range ids {
		assert.Equal(t, StatusReady, f.status(t, id))
	}

	// Room frees up after a removal.
	require.NoError(t, f.c.Remove(ids[0]))
	_, err = f.c.Add(context.Background(), file("seventh.png", 9, 9))
	assert.NoError(t, err)
	f.c.Wait()
}

func TestAdd_DecodeFailuresAreIsolated(t *testing.T) {
	f := newFixture(t)
	good := f.add(t, "good.png", 3)
	corrupt, err := f.c.Add(context.Background(), File{Name: "bad.png", MIME: "image/png", Data: []byte{0, 0}})
	require.NoError(t, err)
	text, err := f.c.Add(context.Background(), File{Name: "notes.txt", MIME: "text/plain", Data: []byte("hi")})
	require.NoError(t, err)
	f.c.Wait()

	assert.Equal(t, StatusReady, f.status(t, good))

	v, _ := f.c.Get(corrupt)
	assert.Equal(t, StatusFailed, v.Status)
	assert.Equal(t, engine.KindCorruptImage, v.FailureKind)
	assert.NotEmpty(t, v.FailureReason)

	v, _ = f.c.Get(text)
	assert.Equal(t, StatusFailed, v.Status)
	assert.Equal(t, engine.KindUnsupportedType, v.FailureKind)

	// Records that never decoded cannot be converted.
	assert.ErrorIs(t, f.c.ConvertOne(corrupt), ErrNotReady)
	assert.Equal(t, []ID{good}, f.c.ConvertAll())
	f.c.Wait()
}

func TestRemove(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.png", 1)
	b := f.add(t, "b.png", 2)
	f.c.Wait()

	require.NoError(t, f.c.Remove(a))
	assert.Equal(t, 1, f.c.Len())
	_, ok := f.c.Get(a)
	assert.False(t, ok)

	v, _ := f.c.Get(b)
	assert.Equal(t, 0, v.Index, "later records move up")

	assert.ErrorIs(t, f.c.Remove(a), ErrNotFound)
	assert.Equal(t, []ID{a}, f.rec.removed)
}

func TestRemove_WhileLoading(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, "a.png", 1)
	require.NoError(t, f.c.Remove(id))
	f.c.Wait()

	assert.Equal(t, 0, f.c.Len())
	assert.Equal(t, engine.Handles{}, f.eng.Live())
}

func TestRemove_WhileConverting(t *testing.T) {
	f := newFixture(t)
	gate := f.codec.gate(5)
	id := f.add(t, "a.png", 5)
	other := f.add(t, "b.png", 6)
	f.c.Wait()

	require.NoError(t, f.c.ConvertOne(id))
	assert.Equal(t, StatusConverting, f.status(t, id))
	require.NoError(t, f.c.Remove(id))
	assert.Equal(t, 1, f.c.Len())

	close(gate)
	f.c.Wait()

	_, ok := f.c.Get(id)
	assert.False(t, ok, "late completion must not resurrect the record")
	assert.Equal(t, 1, f.c.Len())
	assert.Equal(t, StatusReady, f.status(t, other))
	assert.Equal(t, int64(0), f.eng.Live().Artifacts, "discarded result is released")
	assert.Equal(t, int64(1), f.eng.Live().Bitmaps)
}

func TestConvertOne(t *testing.T) {
	f := newFixture(t)
	id := f.add(t, "photo.png", 7)
	f.c.Wait()

	require.NoError(t, f.c.ConvertOne(id))
	f.c.Wait()

	v, _ := f.c.Get(id)
	require.Equal(t, StatusConverted, v.Status)
	require.NotNil(t, v.Result)
	assert.Equal(t, format.JPEG, v.Result.Format)
	assert.Equal(t, "image/jpeg", v.Result.MIME)
	assert.Equal(t, 1, v.Result.Size)
	assert.Equal(t, "photo.jpg", v.Result.FileName)
	assert.Equal(t,
		[]Status{StatusLoading, StatusReady, StatusConverting, StatusConverted},
		f.rec.history(id))

	// Re-converting replaces the previous result.
	require.NoError(t, f.c.ConvertOne(id))
	f.c.Wait()
	assert.Equal(t, StatusConverted, f.status(t, id))
	assert.Equal(t, int64(1), f.eng.Live().Artifacts)
}

func TestConvertOne_Errors(t *testing.T) {
	f := newFixture(t)
	gate := f.codec.gate(3)
	id := f.add(t, "a.png", 3)

	assert.ErrorIs(t, f.c.ConvertOne(ID{}), ErrNotFound)

	f.c.Wait()
	require.NoError(t, f.c.ConvertOne(id))
	assert.NoError(t, f.c.ConvertOne(id), "already converting is a no-op")
	close(gate)
	f.c.Wait()
	assert.Equal(t, 1, f.codec.callsFor(3))
}

func TestConvertOne_LoadingIsNotReady(t *testing.T) {
	codec := newStubCodec()
	block := make(chan struct{})
	c := New(engine.New(blockingDecode{stubCodec: codec, block: block}))
	id, err := c.Add(context.Background(), file("a.png", 1, 1))
	require.NoError(t, err)

	assert.ErrorIs(t, c.ConvertOne(id), ErrNotReady)
	close(block)
	c.Wait()
}

type blockingDecode struct {
	*stubCodec
	block chan struct{}
}

func (b blockingDecode) Decode(ctx context.Context, data []byte) (image.Image, error) {
	<-b.block
	return b.stubCodec.Decode(ctx, data)
}

func TestConvertOne_FailureAndRetry(t *testing.T) {
	f := newFixture(t)
	f.codec.failNext(2, 1)
	id := f.add(t, "a.png", 2)
	f.c.Wait()

	require.NoError(t, f.c.ConvertOne(id))
	f.c.Wait()
	v, _ := f.c.Get(id)
	require.Equal(t, StatusFailed, v.Status)
	assert.Equal(t, engine.KindEncodeError, v.FailureKind)
	assert.Contains(t, v.FailureReason, "encoder exploded")

	require.NoError(t, f.c.ConvertOne(id))
	f.c.Wait()
	v, _ = f.c.Get(id)
	assert.Equal(t, StatusConverted, v.Status)
	assert.Empty(t, v.FailureReason)
}

func TestConvertAll_Mixed(t *testing.T) {
	f := newFixture(t)
	r1 := f.add(t, "one.png", 1)
	r2 := f.add(t, "two.png", 2)
	failed := f.add(t, "five.png", 5)
	busy := f.add(t, "seven.png", 7)
	f.c.Wait()

	f.codec.failNext(5, 1)
	require.NoError(t, f.c.ConvertOne(failed))
	f.c.Wait()
	require.Equal(t, StatusFailed, f.status(t, failed))

	gate := f.codec.gate(7)
	require.NoError(t, f.c.ConvertOne(busy))

	started := f.c.ConvertAll()
	assert.ElementsMatch(t, []ID{r1, r2, failed}, started)
	assert.Equal(t, StatusConverting, f.status(t, busy))

	close(gate)
	f.c.Wait()

	for _, id := range []ID{r1, r2, failed, busy} {
		assert.Equal(t, StatusConverted, f.status(t, id))
	}
	assert.Equal(t, 1, f.codec.callsFor(7), "in-flight record is not restarted")
	assert.Equal(t, 2, f.codec.callsFor(5))

	require.Len(t, f.rec.batches, 1)
	assert.Len(t, f.rec.batches[0], 4)
}

func TestConvertAll_SkipsConverted(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.png", 1)
	b := f.add(t, "b.png", 2)
	f.c.Wait()

	require.NoError(t, f.c.ConvertOne(a))
	f.c.Wait()

	assert.Equal(t, []ID{b}, f.c.ConvertAll())
	f.c.Wait()
	assert.Equal(t, 1, f.codec.callsFor(1))
}

func TestSetFormat_InvalidatesConverted(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.png", 1)
	b := f.add(t, "b.png", 2)
	f.c.Wait()
	f.c.ConvertAll()
	f.c.Wait()
	require.Equal(t, int64(2), f.eng.Live().Artifacts)

	// Quality alone keeps results.
	require.NoError(t, f.c.SetQuality(0.5))
	assert.Equal(t, StatusConverted, f.status(t, a))

	require.NoError(t, f.c.SetFormat(format.PNG))
	for _, id := range []ID{a, b} {
		v, _ := f.c.Get(id)
		assert.Equal(t, StatusReady, v.Status)
		assert.Nil(t, v.Result)
	}
	assert.Equal(t, int64(0), f.eng.Live().Artifacts)
	assert.Equal(t, Settings{Format: format.PNG, Quality: 0.5}, f.c.Settings())

	require.NoError(t, f.c.ConvertOne(a))
	f.c.Wait()
	v, _ := f.c.Get(a)
	assert.Equal(t, "a.png", v.Result.FileName)
}

func TestSetFormat_DuringConversion(t *testing.T) {
	f := newFixture(t)
	gate := f.codec.gate(4)
	id := f.add(t, "a.png", 4)
	f.c.Wait()

	require.NoError(t, f.c.ConvertOne(id))
	require.NoError(t, f.c.SetFormat(format.GIF))
	close(gate)
	f.c.Wait()

	v, _ := f.c.Get(id)
	assert.Equal(t, StatusReady, v.Status, "result for the old format is dropped")
	assert.Nil(t, v.Result)
	assert.Equal(t, int64(0), f.eng.Live().Artifacts)
}

func TestUpdateSettings_Validation(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.c.SetFormat(format.Unknown), ErrInvalidFormat)
	assert.ErrorIs(t, f.c.SetQuality(1.5), ErrInvalidQuality)
	assert.ErrorIs(t, f.c.SetQuality(-0.1), ErrInvalidQuality)
	assert.Equal(t, DefaultSettings(), f.c.Settings())
	assert.Empty(t, f.rec.settings)

	// Quality is kept for formats that ignore it.
	require.NoError(t, f.c.UpdateSettings(Settings{Format: format.PNG, Quality: 0.3}))
	assert.Equal(t, 0.3, f.c.Settings().Quality)
	assert.Len(t, f.rec.settings, 1)
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "a.png", 1)
	f.add(t, "b.png", 2)
	f.c.Wait()
	f.c.ConvertAll()
	f.c.Wait()
	require.NoError(t, f.c.SetQuality(0.2))

	f.c.Reset()

	assert.Equal(t, 0, f.c.Len())
	assert.Equal(t, DefaultSettings(), f.c.Settings())
	assert.Equal(t, engine.Handles{}, f.eng.Live())
	assert.Contains(t, f.rec.removed, a)
	assert.Equal(t, DefaultSettings(), f.rec.settings[len(f.rec.settings)-1])

	// The collection is usable again.
	f.add(t, "c.png", 3)
	f.c.Wait()
	assert.Equal(t, 1, f.c.Len())
}

func TestDownloads_UniqueNames(t *testing.T) {
	f := newFixture(t)
	a := f.add(t, "shot.png", 1)
	b := f.add(t, "shot.gif", 2)
	c := f.add(t, "other.png", 3)
	f.c.Wait()

	_, err := f.c.Download(a)
	assert.ErrorIs(t, err, ErrNotConverted)
	_, err = f.c.Download(ID{})
	assert.ErrorIs(t, err, ErrNotFound)

	f.c.ConvertAll()
	f.c.Wait()

	ds := f.c.Downloads()
	require.Len(t, ds, 3)
	names := map[ID]string{}
	for _, d := range ds {
		names[d.RecordID] = d.FileName
		assert.Equal(t, "image/jpeg", d.MIME)
	}
	assert.Regexp(t, `^shot\.[0-9a-f]{8}\.jpg$`, names[a])
	assert.Regexp(t, `^shot\.[0-9a-f]{8}\.jpg$`, names[b])
	assert.NotEqual(t, names[a], names[b])
	assert.Equal(t, "other.jpg", names[c])

	d, err := f.c.Download(c)
	require.NoError(t, err)
	assert.Equal(t, []byte{3}, d.Data)
	d.Data[0] = 99
	again, _ := f.c.Download(c)
	assert.Equal(t, []byte{3}, again.Data, "downloads are copies")
}

func TestPreview(t *testing.T) {
	f := newFixture(t)
	id, err := f.c.Add(context.Background(), file("wide.png", 200, 100))
	require.NoError(t, err)
	f.c.Wait()

	img, err := f.c.Preview(id, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 25, img.Bounds().Dy())

	_, err = f.c.Preview(ID{}, 50)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "loading", StatusLoading.String())
	assert.Equal(t, "converted", StatusConverted.String())
	assert.Equal(t, "unknown", Status(99).String())
}

// flaky panics on the first event matching its trigger, then behaves.
type flaky struct {
	*recorder
	mu      sync.Mutex
	fired   bool
	trigger func(v RecordView) bool
}

func (f *flaky) maybePanic(v RecordView) {
	f.mu.Lock()
	fire := !f.fired && f.trigger(v)
	if fire {
		f.fired = true
	}
	f.mu.Unlock()
	if fire {
		panic("observer exploded")
	}
}

func (f *flaky) RecordAdded(v RecordView) {
	f.maybePanic(v)
	f.recorder.RecordAdded(v)
}

func (f *flaky) RecordStateChanged(v RecordView) {
	f.maybePanic(v)
	f.recorder.RecordStateChanged(v)
}

func waitWithin(t *testing.T, c *Collection, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		c.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("Wait did not return")
	}
}

func TestObserverPanic_DoesNotStallRecords(t *testing.T) {
	rec := newRecorder(t)
	obs := &flaky{recorder: rec, trigger: func(v RecordView) bool { return v.Status == StatusLoading }}
	eng := engine.New(newStubCodec())
	c := New(eng, WithObserver(obs))

	a, err := c.Add(context.Background(), file("a.png", 1, 1))
	require.NoError(t, err, "observer panic must not reach the caller")
	b, err := c.Add(context.Background(), file("b.png", 2, 1))
	require.NoError(t, err)
	waitWithin(t, c, 5*time.Second)

	va, _ := c.Get(a)
	vb, _ := c.Get(b)
	assert.Equal(t, StatusReady, va.Status)
	assert.Equal(t, StatusReady, vb.Status)

	// Only the panicking callback is lost; later events keep flowing.
	assert.Equal(t, []Status{StatusReady}, rec.history(a))
	assert.Equal(t, []Status{StatusLoading, StatusReady}, rec.history(b))
}

func TestObserverPanic_DuringConversion(t *testing.T) {
	rec := newRecorder(t)
	obs := &flaky{recorder: rec, trigger: func(v RecordView) bool { return v.Status == StatusConverting }}
	c := New(engine.New(newStubCodec()), WithObserver(obs))

	id, err := c.Add(context.Background(), file("a.png", 3, 1))
	require.NoError(t, err)
	waitWithin(t, c, 5*time.Second)

	require.NoError(t, c.ConvertOne(id))
	waitWithin(t, c, 5*time.Second)

	v, _ := c.Get(id)
	assert.Equal(t, StatusConverted, v.Status)
	assert.Equal(t, []Status{StatusLoading, StatusReady, StatusConverted}, rec.history(id))

	assert.Len(t, c.ConvertAll(), 0)
	waitWithin(t, c, 5*time.Second)
	require.Len(t, rec.batches, 1, "batch event still delivered")
}
