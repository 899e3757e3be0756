package orchestrator

import (
	"context"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/cuecast/internal/audio"
	"github.com/dgnsrekt/cuecast/internal/cache"
	"github.com/dgnsrekt/cuecast/internal/clip"
	"github.com/dgnsrekt/cuecast/internal/cue"
	"github.com/dgnsrekt/cuecast/internal/phrases"
	"github.com/dgnsrekt/cuecast/internal/profile"
	"github.com/dgnsrekt/cuecast/internal/queue"
	"github.com/dgnsrekt/cuecast/internal/resolve"
	"github.com/dgnsrekt/cuecast/internal/speech"
	"github.com/dgnsrekt/cuecast/internal/tone"
)

const (
	chromeUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	wechatUA = "Mozilla/5.0 (Linux; Android 13) AppleWebKit/537.36 Chrome/111.0 Mobile MicroMessenger/8.0.40"
)

func clipOf(n int) []byte { return make([]byte, n) }

type harness struct {
	o      *Orchestrator
	device *audio.MockDevice
	loader *clip.MapLoader
	engine *speech.MockEngine
}

type option func(*Config, *Deps)

func withUserAgent(ua string) option {
	return func(c *Config, _ *Deps) { c.UserAgent = ua }
}

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	h := &harness{
		device: audio.NewMockDevice(),
		loader: clip.NewMapLoader(nil),
		engine: speech.NewMockEngine(speech.Voice{Name: "Tingting", Lang: "zh-CN", Local: true}),
	}
	deps := Deps{
		Sink:    h.device,
		Loader:  h.loader,
		Layout:  clip.Layout{Ext: "pcm"},
		Engine:  h.engine,
		Delay:   profile.NoDelay,
		Picker:  phrases.NewPicker(rand.NewPCG(3, 5)),
		Logger:  log.New(io.Discard),
	}
	config := Config{
		Volume:    1,
		Locale:    "zh-CN",
		UserAgent: chromeUA,
		VoiceWait: 50 * time.Millisecond,
		Resolver:  resolve.Config{LoadTimeout: 100 * time.Millisecond, RetryDelay: 10 * time.Millisecond},
		Prefetch:  cache.Config{Concurrency: 2, Timeout: time.Second},
	}
	for _, opt := range opts {
		opt(&config, &deps)
	}

	o, err := New(deps, config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(o.Close)
	h.o = o
	return h
}

func (h *harness) startsOf(size int) []audio.StartRecord {
	var out []audio.StartRecord
	for _, s := range h.device.Starts() {
		if s.Bytes == size && !s.Rejected {
			out = append(out, s)
		}
	}
	return out
}

func wait(t *testing.T, hd *queue.Handle) queue.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := hd.Wait(ctx)
	if ctx.Err() != nil {
		t.Fatalf("%s did not finish: %v", hd.Name(), err)
	}
	return state
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestNewRequiresSinkAndLoader(t *testing.T) {
	if _, err := New(Deps{Loader: clip.NewMapLoader(nil)}, DefaultConfig()); err == nil {
		t.Error("expected error without sink")
	}
	if _, err := New(Deps{Sink: audio.NewMockDevice()}, DefaultConfig()); err == nil {
		t.Error("expected error without loader")
	}
}

// Both clip tiers of M time out, M is spoken, and S does not
// start loading until M has finished.
func TestTimeoutFallsBackToSpeechInOrder(t *testing.T) {
	h := newHarness(t)
	never := make(chan struct{})
	h.loader.Set("characters/S.pcm", clipOf(400))

	var mu sync.Mutex
	var first *queue.Handle
	sStartedAfterM := true
	h.loader.Delay = func(ref string) <-chan struct{} {
		switch ref {
		case "characters/M.pcm":
			return never
		case "characters/S.pcm":
			mu.Lock()
			if first == nil || !first.State().Terminal() {
				sStartedAfterM = false
			}
			mu.Unlock()
		}
		return nil
	}

	mu.Lock()
	first = h.o.PlayCharacterSound("M")
	mu.Unlock()
	second := h.o.PlayCharacterSound("S")

	if state := wait(t, first); state != queue.StateCompleted {
		t.Fatalf("M finished as %s: %v", state, first.Err())
	}
	if state := wait(t, second); state != queue.StateCompleted {
		t.Fatalf("S finished as %s: %v", state, second.Err())
	}

	if got := h.loader.Calls("characters/M.pcm"); got != 2 {
		t.Errorf("expected both clip tiers for M, got %d loads", got)
	}
	spoken := h.engine.Spoken()
	if len(spoken) != 1 || spoken[0].Text != "M" {
		t.Errorf("expected M to be spoken once, got %+v", spoken)
	}
	mu.Lock()
	defer mu.Unlock()
	if !sStartedAfterM {
		t.Error("S began loading before M signalled terminal")
	}
	if len(h.startsOf(400)) != 1 {
		t.Error("expected S's clip to play")
	}
}

// A prefetched token plays from the cache without a new load.
func TestPrefetchedTokenPlaysFromCache(t *testing.T) {
	h := newHarness(t)
	h.loader.Set("characters/R.pcm", clipOf(400))
	h.loader.Set("characters/L.pcm", clipOf(800))

	h.o.PrefetchCharacters([]string{"R", "L"})
	h.o.PrefetchCharacters([]string{"R"})
	h.o.WaitPrefetch()

	if got := h.o.Stats().Prefetch.Ready; got != 2 {
		t.Fatalf("expected 2 ready entries, got %d", got)
	}
	loads := h.loader.Calls("characters/R.pcm")
	if loads != 1 {
		t.Fatalf("expected one prefetch load for R, got %d", loads)
	}

	if state := wait(t, h.o.PlayCharacterSound("R")); state != queue.StateCompleted {
		t.Fatalf("R finished as %s", state)
	}
	if got := h.loader.Calls("characters/R.pcm"); got != loads {
		t.Errorf("playback started a new load for R (%d loads)", got)
	}
	if len(h.startsOf(400)) != 1 {
		t.Error("expected R's clip to play")
	}
	if h.o.Stats().Prefetch.Hits != 1 {
		t.Errorf("expected one cache hit, got %+v", h.o.Stats().Prefetch)
	}
}

func TestFailedPrefetchIsRetried(t *testing.T) {
	h := newHarness(t)

	h.o.PrefetchCharacters([]string{"Q"})
	h.o.WaitPrefetch()
	if _, ok := h.o.prefetch.Status("Q"); ok {
		t.Fatal("failed entry should be evicted")
	}

	h.loader.Set("characters/Q.pcm", clipOf(400))
	if state := wait(t, h.o.PlayCharacterSound("Q")); state != queue.StateCompleted {
		t.Fatalf("Q finished as %s", state)
	}
	if len(h.startsOf(400)) != 1 {
		t.Error("expected a fresh load to play Q")
	}
}

// Synthesis is skipped entirely in a host without reliable
// speech and the fallback clips are used.
func TestPraiseWithoutSpeechUsesFallbackClip(t *testing.T) {
	h := newHarness(t, withUserAgent(wechatUA))
	h.loader.Set("praise/praise_combo_01.pcm", clipOf(1200))

	if p := h.o.Profile(); p.SpeechSupported || p.BrowserLabel != "WeChat" {
		t.Fatalf("unexpected profile %+v", p)
	}

	if state := wait(t, h.o.PlayPraise(cue.PraiseCombo)); state != queue.StateCompleted {
		t.Fatalf("praise finished as %s", state)
	}
	if got := h.engine.Spoken(); len(got) != 0 {
		t.Errorf("synthesis should be skipped, spoke %+v", got)
	}
	if len(h.startsOf(1200)) != 1 {
		t.Error("expected the fallback clip to play")
	}
}

func TestPraiseSpeaksWhenSupported(t *testing.T) {
	h := newHarness(t)

	if state := wait(t, h.o.PlayEncouragement()); state != queue.StateCompleted {
		t.Fatalf("encouragement finished as %s", state)
	}
	spoken := h.engine.Spoken()
	if len(spoken) != 1 || !phrases.Speakable(spoken[0].Text) {
		t.Fatalf("expected one short phrase, got %+v", spoken)
	}
	if h.loader.Total() != 0 {
		t.Error("fallback clips should not be loaded")
	}
}

func TestExhaustedRequestIsSilentFailure(t *testing.T) {
	h := newHarness(t, withUserAgent(wechatUA))

	hd := h.o.PlayCharacterSound("X")
	if state := wait(t, hd); state != queue.StateFailed {
		t.Fatalf("expected failed state, got %s", state)
	}
	if h.o.IsPlaying() {
		t.Error("queue should be idle after a failure")
	}
	next := h.o.PlayCharacterSound("Y")
	if state := wait(t, next); state != queue.StateFailed {
		t.Errorf("later requests should still run, got %s", state)
	}
}

// A tone plays at once while a pronunciation is in flight.
func TestToneBypassesQueue(t *testing.T) {
	h := newHarness(t)
	h.device.PlayDuration = 300 * time.Millisecond
	h.loader.Set("characters/M.pcm", clipOf(400))

	hd := h.o.PlayCharacterSound("M")
	eventually(t, "M to start playing", func() bool { return len(h.startsOf(400)) == 1 })

	shape, _ := tone.ShapeFor(cue.ToneButton)
	toneBytes := len(tone.Synthesize(shape, h.device.Format(), 1))

	h.o.PlaySound(cue.ToneButton)
	if len(h.startsOf(toneBytes)) != 1 {
		t.Fatal("tone did not start immediately")
	}
	if hd.State() != queue.StateInFlight {
		t.Errorf("pronunciation should still be in flight, got %s", hd.State())
	}
	if h.device.MaxActive() < 2 {
		t.Error("tone should overlap the pronunciation")
	}
	wait(t, hd)
}

// StopAll empties the queue and nothing is promoted afterwards.
func TestStopAllClearsQueue(t *testing.T) {
	h := newHarness(t)
	h.device.PlayDuration = time.Second
	for _, tok := range []string{"A", "B", "C", "D"} {
		h.loader.Set("characters/"+tok+".pcm", clipOf(400))
	}

	handles := []*queue.Handle{
		h.o.PlayCharacterSound("A"),
		h.o.PlayCharacterSound("B"),
		h.o.PlayCharacterSound("C"),
	}
	eventually(t, "A in flight", func() bool { return len(h.startsOf(400)) == 1 })

	if n := h.o.StopAll(); n != 3 {
		t.Errorf("expected 3 canceled, got %d", n)
	}
	for _, hd := range handles {
		if hd.State() != queue.StateCanceled {
			t.Errorf("%s: expected canceled, got %s", hd.Name(), hd.State())
		}
	}
	if h.o.IsPlaying() || h.o.Pending() != 0 {
		t.Error("queue should be empty and idle")
	}

	time.Sleep(100 * time.Millisecond)
	if h.loader.Calls("characters/B.pcm") != 0 || h.loader.Calls("characters/C.pcm") != 0 {
		t.Error("no task should be promoted after StopAll")
	}
	eventually(t, "A's playback to stop", func() bool { return h.device.Active() == 0 })

	h.device.PlayDuration = 0
	if state := wait(t, h.o.PlayCharacterSound("D")); state != queue.StateCompleted {
		t.Errorf("new request after StopAll finished as %s", state)
	}
}

func TestRequestsPlayInOrder(t *testing.T) {
	h := newHarness(t)
	h.device.PlayDuration = 20 * time.Millisecond
	sizes := map[string]int{"A": 400, "B": 800, "C": 1200}
	for tok, n := range sizes {
		h.loader.Set("characters/"+tok+".pcm", clipOf(n))
	}

	var last *queue.Handle
	for _, tok := range []string{"A", "B", "C"} {
		last = h.o.PlayCharacterSound(tok)
	}
	wait(t, last)

	var order []int
	for _, s := range h.device.Starts() {
		if s.Bytes == 400 || s.Bytes == 800 || s.Bytes == 1200 {
			order = append(order, s.Bytes)
		}
	}
	if len(order) != 3 || order[0] != 400 || order[1] != 800 || order[2] != 1200 {
		t.Fatalf("unexpected order %v", order)
	}
	starts := h.device.Starts()
	var prev time.Time
	for _, s := range starts {
		if s.Bytes != 800 && s.Bytes != 1200 && s.Bytes != 400 {
			continue
		}
		if !prev.IsZero() && s.At.Sub(prev) < 20*time.Millisecond {
			t.Errorf("clip started %v after the previous one, before it could end", s.At.Sub(prev))
		}
		prev = s.At
	}
}

func TestUnlockIsIdempotent(t *testing.T) {
	h := newHarness(t)
	silence := len(audio.Silence(10*time.Millisecond, h.device.Format()))

	if h.o.Unlocked() {
		t.Fatal("should start locked")
	}
	for i := 0; i < 5; i++ {
		h.o.UnlockAudio()
	}
	h.o.PlaySound(cue.ToneButton)
	h.o.PrefetchCharacters(nil)

	if !h.o.Unlocked() {
		t.Error("should be unlocked")
	}
	if got := len(h.startsOf(silence)); got != 1 {
		t.Errorf("expected one silent unlock sound, got %d", got)
	}
}

func TestVolume(t *testing.T) {
	h := newHarness(t)
	h.loader.Set("characters/V.pcm", clipOf(400))

	h.o.SetVolume(2)
	if h.o.Volume() != 1 {
		t.Errorf("expected clamp to 1, got %v", h.o.Volume())
	}
	h.o.SetVolume(-1)
	if h.o.Volume() != 0 {
		t.Errorf("expected clamp to 0, got %v", h.o.Volume())
	}

	h.o.SetVolume(0.4)
	wait(t, h.o.PlayCharacterSound("V"))
	starts := h.startsOf(400)
	if len(starts) != 1 || starts[0].Volume != 0.4 {
		t.Errorf("clip should play at the session volume, got %+v", starts)
	}
}

func TestBackgroundTrack(t *testing.T) {
	h := newHarness(t)
	h.loader.Set("music/loop.pcm", clipOf(4000))

	if err := h.o.PlayBackground(context.Background(), "music/loop.pcm"); err != nil {
		t.Fatalf("PlayBackground: %v", err)
	}
	loops := h.startsOf(4000)
	if len(loops) != 1 || !loops[0].Loop {
		t.Fatalf("expected a looping start, got %+v", loops)
	}

	h.o.PauseBackground()
	h.o.ResumeBackground()
	h.o.StopAll()
	if h.device.Active() != 1 {
		t.Errorf("StopAll must leave the background track playing, active=%d", h.device.Active())
	}

	if err := h.o.PlayBackground(context.Background(), "music/missing.pcm"); err == nil {
		t.Error("expected error for missing track")
	}

	h.o.Close()
	if h.device.Active() != 0 {
		t.Errorf("Close should stop the background track, active=%d", h.device.Active())
	}
	if err := h.o.PlayBackground(context.Background(), "music/loop.pcm"); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestCloseCancelsQueued(t *testing.T) {
	h := newHarness(t)
	h.device.PlayDuration = time.Second
	h.loader.Set("characters/A.pcm", clipOf(400))

	first := h.o.PlayCharacterSound("A")
	second := h.o.PlayCharacterSound("A")
	h.o.Close()

	if first.State() != queue.StateCanceled || second.State() != queue.StateCanceled {
		t.Errorf("expected both canceled, got %s and %s", first.State(), second.State())
	}
	if after := h.o.PlayCharacterSound("A"); after.State() != queue.StateCanceled {
		t.Errorf("requests after Close should be canceled, got %s", after.State())
	}
}
