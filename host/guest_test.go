package host

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"

	"github.com/wippyai/wasm-transform/codec"
	"github.com/wippyai/wasm-transform/transform"
)

// buildGoPlugin compiles ./cmd/plugin for wasip1 with the named kernel.
func buildGoPlugin(t *testing.T, kernel string) []byte {
	t.Helper()
	if testing.Short() {
		t.Skip("builds a wasip1 module")
	}
	gobin, err := exec.LookPath("go")
	if err != nil {
		t.Skipf("go toolchain not found: %v", err)
	}

	out := filepath.Join(t.TempDir(), kernel+".wasm")
	cmd := exec.Command(gobin, "build", "-buildmode=c-shared",
		"-ldflags", "-X main.kernelName="+kernel+" -X main.maxLength=64",
		"-o", out, "../cmd/plugin")
	cmd.Env = append(os.Environ(), "GOOS=wasip1", "GOARCH=wasm")
	if msg, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go build: %v\n%s", err, msg)
	}
	bin, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	return bin
}

func TestGoPlugin_Vector(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	mod, err := rt.Load(ctx, transform.NegateHalfF64, buildGoPlugin(t, transform.NegateHalfF64))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !mod.wasi {
		t.Error("wasip1 module not detected as importing WASI")
	}

	pool, err := NewPool(ctx, mod, 2)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer pool.Close(ctx)

	got, err := pool.ApplyVectors(ctx, [][]float64{{4, -3, 0}, {8}})
	if err != nil {
		t.Fatalf("ApplyVectors: %v", err)
	}
	if !slices.Equal(got[0], []float64{-2, 1.5, 0}) || !slices.Equal(got[1], []float64{-4}) {
		t.Errorf("got %v", got)
	}

	err = pool.Do(ctx, func(inst *Instance) error {
		d := inst.Descriptor()
		if d.ElementType != codec.Float64 || d.Shape != codec.Vector || d.Capacity != 64 {
			t.Errorf("descriptor = %s", d)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestGoPlugin_DeclaresLayout(t *testing.T) {
	ctx := context.Background()
	rt := newRuntime(t, Config{})

	mod, err := rt.Load(ctx, transform.ExpAvgF64Rows, buildGoPlugin(t, transform.ExpAvgF64Rows))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	defer inst.Close(ctx)

	if l := inst.Descriptor().Layout; l != codec.StrideByDim1 {
		t.Fatalf("layout = %v", l)
	}
	got, err := inst.ApplyMatrix(ctx, [][]float64{{1, 2, 3}, {10, 20, 30}})
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{smooth(smooth(1, 2), 3), smooth(smooth(10, 20), 30)}
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}
