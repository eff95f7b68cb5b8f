package app

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/MrWong99/parrot/pkg/provider/tts"
)

// modelFile is the bundled whisper model.
const modelFile = "ggml-tiny.en.bin"

// Resources are the bundled model, synthesiser and voices found on disk.
// Zero fields were not found.
type Resources struct {
	Model      string
	Executable string
	Voices     []tts.Voice
}

type bundledVoice struct {
	id, name, base string
}

// bundledVoices are tried in order; the first one found becomes the default.
var bundledVoices = []bundledVoice{
	{"lessac", "Lessac (Neutral)", "en_US-lessac-medium"},
	{"ryan", "Ryan (Male)", "en_US-ryan-medium"},
	{"alba", "Alba (Female)", "en_GB-alba-medium"},
}

// SearchDirs returns the directories searched for bundled resources: extra
// first, then the "resources" directory next to the executable, the source
// tree root of a development build three levels above the executable, and
// the working directory.
func SearchDirs(extra []string) []string {
	dirs := append([]string(nil), extra...)
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		dirs = append(dirs,
			filepath.Join(dir, "resources"),
			filepath.Join(dir, "..", "..", ".."),
		)
	}
	return append(dirs, ".")
}

// Discover looks for bundled resources in dirs. Each file is searched
// independently, so a voice model and its config may come from different
// directories.
func Discover(dirs []string) Resources {
	var res Resources
	res.Model = firstExisting(dirs,
		modelFile,
		filepath.Join("models", modelFile),
	)

	piper := "piper"
	if runtime.GOOS == "windows" {
		piper += ".exe"
	}
	res.Executable = firstExisting(dirs,
		piper,
		filepath.Join("piper", "piper", piper),
	)

	for _, v := range bundledVoices {
		model := firstExisting(dirs,
			filepath.Join("voices", v.base+".onnx"),
			filepath.Join("models", "voices", v.base+".onnx"),
		)
		config := firstExisting(dirs,
			filepath.Join("voices", v.base+".onnx.json"),
			filepath.Join("models", "voices", v.base+".onnx.json"),
		)
		if model == "" || config == "" {
			slog.Debug("bundled voice not found", "voice", v.id)
			continue
		}
		res.Voices = append(res.Voices, tts.Voice{ID: v.id, Name: v.name, ModelPath: model, ConfigPath: config})
	}
	return res
}

// firstExisting returns the first dir/name (dirs outer, names inner) that is
// a regular file, or "".
func firstExisting(dirs []string, names ...string) string {
	for _, d := range dirs {
		for _, n := range names {
			p := filepath.Join(d, n)
			if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
				return p
			}
		}
	}
	return ""
}
