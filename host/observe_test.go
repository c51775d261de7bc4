package host

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wippyai/wasm-transform/refplugin"
	"github.com/wippyai/wasm-transform/transform"
)

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	rt := newRuntime(t, Config{Registerer: reg})

	inst := instantiate(t, rt, transform.NegateHalfF64, refplugin.Options{MaxLength: 4})
	if _, err := inst.ApplyVector(ctx, []float64{1, 2}); err != nil {
		t.Fatal(err)
	}
	inst.Resize(ctx, 2)
	inst.Apply(ctx)

	name := transform.NegateHalfF64
	if got := testutil.ToFloat64(rt.metrics.invocations.WithLabelValues(name, "apply", resultOK)); got != 2 {
		t.Errorf("apply ok = %v", got)
	}
	if got := testutil.ToFloat64(rt.metrics.invocations.WithLabelValues(name, "resize", resultOK)); got != 2 {
		t.Errorf("resize ok = %v", got)
	}
	if n := testutil.CollectAndCount(reg, "wasm_transform_apply_seconds"); n != 1 {
		t.Errorf("apply_seconds series = %d", n)
	}

	// a second runtime on the same registry shares the collectors
	other := newRuntime(t, Config{Registerer: reg})
	if other.metrics.invocations != rt.metrics.invocations {
		t.Error("collectors not shared")
	}
}

func TestMetrics_Errors(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{Registerer: prometheus.NewRegistry()})

	inst := instantiate(t, rt, transform.ExpAvgF64, refplugin.Options{})
	inst.Resize(ctx, 3)
	if err := inst.Apply(ctx); err == nil {
		t.Fatal("apply without dimensions succeeded")
	}
	if got := testutil.ToFloat64(rt.metrics.invocations.WithLabelValues(transform.ExpAvgF64, "apply", resultError)); got != 1 {
		t.Errorf("apply error = %v", got)
	}
}

func TestTracing(t *testing.T) {
	ctx := context.Background()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	rt := newRuntime(t, Config{TracerProvider: tp})

	inst := instantiate(t, rt, transform.NegateHalfF64, refplugin.Options{})
	if _, err := inst.ApplyVector(ctx, []float64{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if _, err := inst.ApplyMatrix(ctx, [][]float64{{1}}); err == nil {
		t.Fatal("ApplyMatrix on vector plugin succeeded")
	}

	spans := rec.Ended()
	if len(spans) != 2 {
		t.Fatalf("got %d spans", len(spans))
	}

	ok := spans[0]
	if ok.Name() != "wasm_transform.ApplyVector" || ok.Status().Code != codes.Ok {
		t.Errorf("span %q status %v", ok.Name(), ok.Status())
	}
	want := attribute.Int("wasm_transform.values", 3)
	found := false
	for _, kv := range ok.Attributes() {
		if kv == want {
			found = true
		}
	}
	if !found {
		t.Errorf("attributes = %v", ok.Attributes())
	}

	failed := spans[1]
	if failed.Name() != "wasm_transform.ApplyMatrix" || failed.Status().Code != codes.Error {
		t.Errorf("span %q status %v", failed.Name(), failed.Status())
	}
	if len(failed.Events()) == 0 {
		t.Error("error not recorded on span")
	}
}

func TestLogging(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.DebugLevel)
	rt := newRuntime(t, Config{Logger: zap.New(core)})

	inst := instantiate(t, rt, transform.ExpAvgF64, refplugin.Options{})
	if logs.FilterMessage("plugin loaded").Len() != 1 {
		t.Error("load not logged")
	}
	if logs.FilterMessage("plugin instantiated").Len() != 1 {
		t.Error("instantiate not logged")
	}

	inst.Resize(ctx, 3)
	inst.Apply(ctx)
	entries := logs.FilterMessage("plugin call failed").All()
	if len(entries) != 1 {
		t.Fatalf("got %d failure entries", len(entries))
	}
	if entries[0].ContextMap()["export"] != "apply" {
		t.Errorf("fields = %v", entries[0].ContextMap())
	}
}
