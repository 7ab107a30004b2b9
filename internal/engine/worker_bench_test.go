package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rendis/pyconst/internal/inspect"
)

func BenchmarkWorkerPool(b *testing.B) {
	for _, size := range []int{1, 4, 16, 64} {
		b.Run(fmt.Sprintf("size=%d", size), func(b *testing.B) {
			pool := NewWorkerPool(size)
			defer pool.Shutdown()
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				_ = pool.Submit(ctx, func(ctx context.Context) error {
					return nil
				})
			}
			_ = pool.Wait()
		})
	}
}

// benchTree writes n Python files, each holding a mix of constant and
// undefined conditions.
func benchTree(b *testing.B, n int) string {
	b.Helper()
	dir := b.TempDir()
	var src strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&src, "if %d ** 40 // 7 > %d and -7.5 // 1.8 < 0:\n    pass\n", i, i)
		fmt.Fprintf(&src, "elif x_%d / 0 or 1 << 70:\n    pass\n", i)
	}
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, fmt.Sprintf("mod_%03d.py", i))
		if err := os.WriteFile(path, []byte(src.String()), 0o644); err != nil {
			b.Fatal(err)
		}
	}
	return dir
}

func BenchmarkBatchRun(b *testing.B) {
	dir := benchTree(b, 64)
	for _, size := range []int{1, 8} {
		b.Run(fmt.Sprintf("pool=%d", size), func(b *testing.B) {
			batch := NewBatch(inspect.New(inspect.Config{}, nil, nil), nil, nil, WithPoolSize(size))
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := batch.Run(context.Background(), []string{dir}); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
