package history_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/MrWong99/polyglot/internal/history"
	"github.com/MrWong99/polyglot/pkg/types"
)

func entry(i int) history.Entry {
	return history.Entry{
		TranslationResult: types.TranslationResult{
			ID:             fmt.Sprintf("run-%d", i),
			OriginalText:   fmt.Sprintf("hola %d", i),
			TranslatedText: fmt.Sprintf("hello %d", i),
			Audio:          &types.SynthesizedAudio{Data: []byte{1, 2}},
		},
		SessionID: "s1",
	}
}

func ids(entries []history.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestMemory_NewestFirstAndBounded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := history.NewMemory(3)
	for i := range 5 {
		if err := m.Add(ctx, entry(i)); err != nil {
			t.Fatal(err)
		}
	}

	all, _ := m.List(ctx, 0)
	if got := fmt.Sprint(ids(all)); got != "[run-4 run-3 run-2]" {
		t.Errorf("List(0) = %s", got)
	}
	two, _ := m.List(ctx, 2)
	if got := fmt.Sprint(ids(two)); got != "[run-4 run-3]" {
		t.Errorf("List(2) = %s", got)
	}
	if all[0].Audio != nil {
		t.Error("audio should not be retained")
	}

	if err := m.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if m.Len() != 0 {
		t.Errorf("Len after Clear = %d", m.Len())
	}
}

func TestMemory_DefaultSize(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := history.NewMemory(0)
	for i := range history.DefaultMaxEntries + 10 {
		_ = m.Add(ctx, entry(i))
	}
	if m.Len() != history.DefaultMaxEntries {
		t.Errorf("Len = %d, want %d", m.Len(), history.DefaultMaxEntries)
	}
}

func TestMemory_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := history.NewMemory(1000)
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Add(ctx, entry(i))
			_, _ = m.List(ctx, 5)
		}()
	}
	wg.Wait()
	if m.Len() != 20 {
		t.Errorf("Len = %d, want 20", m.Len())
	}
}
