package chatsdk

import (
	"fmt"
	"go/parser"
	"go/token"
	"io/fs"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

const modulePath = "chatsdk/go-backend"

// The client talks to engines only through the engine contract, and engines
// never see the client or any host surface.
func TestArchitecture_ClientAndEngineImportBoundaries(t *testing.T) {
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("failed to resolve current test file path")
	}
	internalDir := filepath.Dir(filepath.Dir(currentFile))

	rules := []struct {
		dir       string
		forbidden []string
	}{
		{
			dir: "chatsdk",
			forbidden: []string{
				modulePath + "/internal/adapters",
				modulePath + "/internal/composition",
				modulePath + "/internal/engine/loopback",
				modulePath + "/internal/notify",
				modulePath + "/internal/waku",
				modulePath + "/internal/storage",
			},
		},
		{
			dir: "engine",
			forbidden: []string{
				modulePath + "/internal/chatsdk",
				modulePath + "/internal/adapters",
				modulePath + "/internal/composition",
				modulePath + "/internal/notify",
				modulePath + "/internal/config",
			},
		},
		{
			dir: "notify",
			forbidden: []string{
				modulePath + "/internal/adapters",
				modulePath + "/internal/composition",
				modulePath + "/internal/engine",
			},
		},
	}

	fset := token.NewFileSet()
	var violations []string
	for _, rule := range rules {
		root := filepath.Join(internalDir, rule.dir)
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			parsed, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
			if err != nil {
				return fmt.Errorf("parse file %s: %w", path, err)
			}
			for _, imp := range parsed.Imports {
				importPath := strings.Trim(imp.Path.Value, `"`)
				for _, prefix := range rule.forbidden {
					if !hasPrefixImport(importPath, prefix) {
						continue
					}
					relPath, relErr := filepath.Rel(internalDir, path)
					if relErr != nil {
						relPath = path
					}
					pos := fset.Position(imp.Path.Pos())
					violations = append(violations, fmt.Sprintf("%s:%d imports %q", relPath, pos.Line, importPath))
					break
				}
			}
			return nil
		})
		if walkErr != nil {
			t.Fatalf("walk %s tree: %v", rule.dir, walkErr)
		}
	}
	if len(violations) > 0 {
		t.Fatalf("import boundary violations detected:\n- %s", strings.Join(violations, "\n- "))
	}
}

func hasPrefixImport(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
