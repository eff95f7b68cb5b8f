package app

import (
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscover_SearchOrder(t *testing.T) {
	t.Parallel()
	first, second := t.TempDir(), t.TempDir()

	// The flat layout in the first dir wins over the nested one in the second.
	write(t, filepath.Join(first, "ggml-tiny.en.bin"))
	write(t, filepath.Join(second, "models", "ggml-tiny.en.bin"))

	// A voice model and its config may live in different dirs.
	write(t, filepath.Join(first, "voices", "en_US-lessac-medium.onnx"))
	write(t, filepath.Join(second, "models", "voices", "en_US-lessac-medium.onnx.json"))

	// A model without config is skipped.
	write(t, filepath.Join(first, "voices", "en_US-ryan-medium.onnx"))

	res := Discover([]string{first, second})

	if want := filepath.Join(first, "ggml-tiny.en.bin"); res.Model != want {
		t.Errorf("model = %q, want %q", res.Model, want)
	}
	if res.Executable != "" {
		t.Errorf("executable = %q, want none", res.Executable)
	}
	if len(res.Voices) != 1 {
		t.Fatalf("voices = %+v, want lessac only", res.Voices)
	}
	v := res.Voices[0]
	if v.ID != "lessac" || v.Name != "Lessac (Neutral)" {
		t.Errorf("voice = %+v", v)
	}
	if v.ConfigPath != filepath.Join(second, "models", "voices", "en_US-lessac-medium.onnx.json") {
		t.Errorf("config path = %q", v.ConfigPath)
	}
}

func TestDiscover_IgnoresDirectories(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "ggml-tiny.en.bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if res := Discover([]string{dir}); res.Model != "" {
		t.Errorf("model = %q, want directories ignored", res.Model)
	}
}

func TestDiscover_NothingFound(t *testing.T) {
	t.Parallel()
	res := Discover([]string{t.TempDir()})
	if res.Model != "" || res.Executable != "" || len(res.Voices) != 0 {
		t.Errorf("res = %+v, want empty", res)
	}
}

func TestSearchDirs(t *testing.T) {
	t.Parallel()
	dirs := SearchDirs([]string{"/opt/parrot"})
	if dirs[0] != "/opt/parrot" {
		t.Errorf("first dir = %q, want configured dir first", dirs[0])
	}
	if dirs[len(dirs)-1] != "." {
		t.Errorf("last dir = %q, want working directory", dirs[len(dirs)-1])
	}
	if len(dirs) != 4 {
		t.Errorf("dirs = %v, want configured + resources + dev root + cwd", dirs)
	}
}
