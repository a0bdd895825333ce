// Package bench measures the cost of compiling and running guest code in
// each mode.
//
// Run with: go test -bench=. -benchtime=3x ./bench/
package bench

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/caffeineduck/dotstar/executor"
	"github.com/caffeineduck/dotstar/mode"
)

const computation = `
def squares(n):
    total = 0
    for i in range(n):
        total += i * i
    return total

return squares(1000)
`

func newExecutor(b *testing.B, opts ...executor.Option) *executor.Executor {
	b.Helper()
	opts = append([]executor.Option{executor.WithStdout(io.Discard), executor.WithStderr(io.Discard)}, opts...)
	e, err := executor.New(opts...)
	if err != nil {
		b.Fatal(err)
	}
	b.Cleanup(func() { e.Close() })
	return e
}

// --- Cold start: new executor each time ---

func BenchmarkColdStart(b *testing.B) {
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		e, err := executor.New(executor.WithStdout(io.Discard))
		if err != nil {
			b.Fatal(err)
		}
		if _, err := e.EvaluateSync(ctx, []byte("x = 1"), ""); err != nil {
			b.Fatal(err)
		}
		e.Close()
	}
}

// --- Warm start: one executor, one environment per mode ---

func BenchmarkRequire(b *testing.B) {
	path := writeFile(b, "unit.star", computation)

	for _, m := range mode.Modes {
		b.Run(m.String(), func(b *testing.B) {
			e := newExecutor(b)
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				factory, err := e.Compile(path, m)
				if err != nil {
					b.Fatal(err)
				}
				if _, err := factory().Execute(ctx).Await(ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkEvaluateSync_Echo(b *testing.B) {
	e := newExecutor(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.EvaluateSync(ctx, []byte(`echo(1)`), ""); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEvaluateSync_Computation(b *testing.B) {
	e := newExecutor(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.EvaluateSync(ctx, []byte(computation), ""); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEvaluateSync_HostFunction(b *testing.B) {
	e := newExecutor(b, executor.WithKV(""))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.EvaluateSync(ctx, []byte(`kv_set("k", "v")`), ""); err != nil {
			b.Fatal(err)
		}
	}
}

// --- Files ---

func BenchmarkRequireSync_Include(b *testing.B) {
	lib := writeFile(b, "lib.star", "def double(n):\n    return n * 2\n")
	main := filepath.Join(filepath.Dir(lib), "main.star")
	if err := os.WriteFile(main, []byte("include(\"lib.star\")\nreturn double(21)\n"), 0o644); err != nil {
		b.Fatal(err)
	}

	e := newExecutor(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.RequireSync(ctx, main); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkTranspile(b *testing.B) {
	e := newExecutor(b)
	src := []byte(computation)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Transpile(src, "bench.star"); err != nil {
			b.Fatal(err)
		}
	}
}

func writeFile(b *testing.B, name, content string) string {
	b.Helper()
	path := filepath.Join(b.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		b.Fatal(err)
	}
	return path
}
