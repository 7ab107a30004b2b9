package inspect

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rendis/pyconst/pkg/schema"
)

var skippedDirs = map[string]bool{
	"__pycache__": true, "node_modules": true, "venv": true, "site-packages": true,
}

// CollectFiles expands paths into a sorted, de-duplicated list of Python
// files. Directories are walked recursively, skipping hidden and virtualenv
// directories; explicit file arguments are kept whatever their extension.
func CollectFiles(paths []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeNotFound, "path not found").WithFile(root).WithCause(err)
		}
		if !info.IsDir() {
			add(filepath.Clean(root))
			continue
		}

		err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if p != root && (strings.HasPrefix(name, ".") || skippedDirs[name]) {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(p, ".py") {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, schema.NewError(schema.ErrCodeExecution, "walking directory").WithFile(root).WithCause(err)
		}
	}

	slices.Sort(out)
	return out, nil
}
