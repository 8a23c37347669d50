package pipeline_test

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/polyglot/internal/observe"
	"github.com/MrWong99/polyglot/internal/pipeline"
	"github.com/MrWong99/polyglot/pkg/provider/stt"
	sttmock "github.com/MrWong99/polyglot/pkg/provider/stt/mock"
	translatemock "github.com/MrWong99/polyglot/pkg/provider/translate/mock"
)

func TestProcess_RecordsOutcomes(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	s := &sttmock.Provider{Result: stt.Transcript{Text: "Hola"}}
	tr := &translatemock.Provider{Result: "Hello"}
	p := newPipeline(s, tr, pipeline.WithMetrics(m))
	ctx := context.Background()

	if _, err := p.Process(ctx, testClip(), esToEn()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	s.Result = stt.Transcript{}
	_, _ = p.Process(ctx, testClip(), esToEn())
	s.Result = stt.Transcript{Text: "Hola"}
	tr.Err = errors.New("down")
	_, _ = p.Process(ctx, testClip(), esToEn())

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	outcomes := map[string]int64{}
	var translateErrors int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				switch met.Name {
				case "polyglot.utterances":
					v, _ := dp.Attributes.Value("outcome")
					outcomes[v.AsString()] += dp.Value
				case "polyglot.provider.errors":
					if v, _ := dp.Attributes.Value("kind"); v.AsString() == "translate" {
						translateErrors += dp.Value
					}
				}
			}
		}
	}
	want := map[string]int64{
		observe.OutcomeTranslated: 1,
		observe.OutcomeNoSpeech:   1,
		observe.OutcomeFailed:     1,
	}
	for k, v := range want {
		if outcomes[k] != v {
			t.Errorf("outcome %s = %d, want %d (all: %v)", k, outcomes[k], v, outcomes)
		}
	}
	if translateErrors != 1 {
		t.Errorf("translate provider errors = %d, want 1", translateErrors)
	}
}
