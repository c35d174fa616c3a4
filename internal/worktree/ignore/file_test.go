package ignore

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

func TestLoadMissingFileIsNotError(t *testing.T) {
	dir := t.TempDir()
	f, err := Load(dir, filepath.Join(dir, ".gitignore"))
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if len(f.Patterns) != 0 || f.NeedsRefresh {
		t.Fatalf("expected empty, non-refreshing File, got %+v", f)
	}
}

func TestFileMatchRelativeToAbsDir(t *testing.T) {
	dir := t.TempDir()
	gi := filepath.Join(dir, ".gitignore")
	writeFile(t, gi, "build/\n*.tmp\n")

	f, err := Load(dir, gi)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ignored, fired := f.match(filepath.Join(dir, "build"), true); !ignored || !fired {
		t.Errorf("build dir should be ignored, got ignored=%v fired=%v", ignored, fired)
	}
	if ignored, fired := f.match(filepath.Join(dir, "a.tmp"), false); !ignored || !fired {
		t.Errorf("a.tmp should be ignored, got ignored=%v fired=%v", ignored, fired)
	}
	if ignored, fired := f.match(filepath.Join(dir, "a.txt"), false); ignored || fired {
		t.Errorf("a.txt should not match, got ignored=%v fired=%v", ignored, fired)
	}
	if _, fired := f.match("/outside/build", true); fired {
		t.Error("paths outside AbsDir should never fire")
	}
}

func TestReloadClearsNeedsRefresh(t *testing.T) {
	dir := t.TempDir()
	gi := filepath.Join(dir, ".gitignore")
	writeFile(t, gi, "*.log\n")

	f, err := Load(dir, gi)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	f.MarkNeedsRefresh()
	writeFile(t, gi, "*.log\n*.tmp\n")
	if err := f.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if f.NeedsRefresh {
		t.Error("Reload should clear NeedsRefresh")
	}
	if ignored, _ := f.match(filepath.Join(dir, "a.tmp"), false); !ignored {
		t.Error("reloaded patterns should pick up *.tmp")
	}
}

func TestStackComposesAncestors(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "src")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	rootGi := filepath.Join(root, ".gitignore")
	writeFile(t, rootGi, "*.log\n")
	subGi := filepath.Join(sub, ".gitignore")
	writeFile(t, subGi, "!important.log\n")

	rootFile, err := Load(root, rootGi)
	if err != nil {
		t.Fatal(err)
	}
	subFile, err := Load(sub, subGi)
	if err != nil {
		t.Fatal(err)
	}

	stack := NewStack().Push(rootFile).Push(subFile)

	if !stack.IsIgnored(filepath.Join(root, "debug.log"), false) {
		t.Error("debug.log at root should be ignored")
	}
	if !stack.IsIgnored(filepath.Join(sub, "debug.log"), false) {
		t.Error("debug.log under src should still be ignored by the root rule")
	}
	if stack.IsIgnored(filepath.Join(sub, "important.log"), false) {
		t.Error("important.log under src should be un-ignored by the nested rule")
	}
}
