package whisper_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/polyglot/pkg/audio"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
	"github.com/MrWong99/polyglot/pkg/provider/stt/whisper"
)

// nativeProvider loads the model named by WHISPER_MODEL_PATH or skips.
func nativeProvider(t *testing.T, opts ...whisper.NativeOption) *whisper.NativeProvider {
	t.Helper()
	path := os.Getenv("WHISPER_MODEL_PATH")
	if path == "" {
		t.Skip("WHISPER_MODEL_PATH not set")
	}
	p, err := whisper.NewNative(path, opts...)
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

// silence returns d of 48 kHz stereo silence, which exercises the downmix
// and resampling path.
func silence(d time.Duration) *audio.Clip {
	format := audio.Format{SampleRate: 48000, Channels: 2}
	start := time.Now()
	n := int(d.Seconds()*48000) * 2 * 2
	return audio.NewClip(make([]byte, n), format, start, start.Add(d))
}

func TestNewNative_BadPath(t *testing.T) {
	for _, path := range []string{"", "/nonexistent/model.bin"} {
		if _, err := whisper.NewNative(path); err == nil {
			t.Errorf("NewNative(%q): expected error", path)
		}
	}
}

func TestNativeTranscribe_Silence(t *testing.T) {
	p := nativeProvider(t, whisper.WithNativeThreads(2))

	tr, err := p.Transcribe(context.Background(), silence(2*time.Second), stt.Options{Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Duration != 2*time.Second {
		t.Errorf("Duration = %v, want 2s", tr.Duration)
	}
	if tr.Language != "en" {
		t.Errorf("Language = %q, want the hint", tr.Language)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestNativeTranscribe_Parallel(t *testing.T) {
	p := nativeProvider(t, whisper.WithNativeParallel(2))

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	for range 3 {
		wg.Go(func() {
			_, err := p.Transcribe(context.Background(), silence(time.Second), stt.Options{})
			errs <- err
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Transcribe: %v", err)
		}
	}
}

func TestNativeTranscribe_Cancelled(t *testing.T) {
	p := nativeProvider(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.Transcribe(ctx, silence(time.Second), stt.Options{})
	if !errors.Is(err, context.Canceled) || !strings.HasPrefix(err.Error(), "whisper:") {
		t.Errorf("err = %v, want wrapped context.Canceled", err)
	}
}
