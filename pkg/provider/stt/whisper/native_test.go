package whisper_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/MrWong99/parrot/pkg/provider/stt"
	"github.com/MrWong99/parrot/pkg/provider/stt/whisper"
)

// testModelPath returns the path to a whisper model for integration tests.
// It reads from the WHISPER_MODEL_PATH environment variable. If unset the
// test is skipped.
func testModelPath(t *testing.T) string {
	t.Helper()
	p := os.Getenv("WHISPER_MODEL_PATH")
	if p == "" {
		t.Skip("WHISPER_MODEL_PATH not set; skipping native whisper test")
	}
	return p
}

func TestNewNative_EmptyPath_NotLoaded(t *testing.T) {
	p, err := whisper.NewNative("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer p.Close()
	if p.Loaded() {
		t.Error("Loaded() = true without a model")
	}
	_, err = p.Transcribe(context.Background(), make([]float32, 16000), 16000)
	if !errors.Is(err, stt.ErrModelNotLoaded) {
		t.Errorf("Transcribe err = %v, want ErrModelNotLoaded", err)
	}
}

func TestNewNative_InvalidPath_ReturnsError(t *testing.T) {
	_, err := whisper.NewNative("/nonexistent/path/to/model.bin")
	if err == nil {
		t.Fatal("expected error for invalid model path, got nil")
	}
}

func TestLoadModel_FailureKeepsState(t *testing.T) {
	p, err := whisper.NewNative("")
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	if err := p.LoadModel("/nonexistent/model.bin"); err == nil {
		t.Fatal("expected error for invalid model path")
	}
	if p.Loaded() || p.ModelPath() != "" {
		t.Error("failed load changed provider state")
	}
}

func TestNativeTranscribe_CancelledContext(t *testing.T) {
	p, err := whisper.NewNative("")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Transcribe(ctx, nil, 16000); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNativeTranscribe_Silence(t *testing.T) {
	modelPath := testModelPath(t)
	p, err := whisper.NewNative(modelPath, whisper.WithNativeLanguage("en"))
	if err != nil {
		t.Fatalf("NewNative: %v", err)
	}
	defer p.Close()

	// Half a second of 48 kHz silence: resampled and padded internally.
	text, err := p.Transcribe(context.Background(), make([]float32, 24000), 48000)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	t.Logf("transcript of silence: %q", text)
}
