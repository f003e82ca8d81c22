package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidate(t *testing.T) {
	s := Defaults()
	if err := s.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	if s.MergeSeparator != " " {
		t.Errorf("MergeSeparator = %q, want single space", s.MergeSeparator)
	}
}

func TestValidateRejectsBadSendMode(t *testing.T) {
	s := Defaults()
	s.SendMode = "yolo"
	if err := s.Validate(); err == nil {
		t.Error("bad send mode accepted")
	}
}

func TestValidateRejectsBadHudStyle(t *testing.T) {
	s := Defaults()
	s.HudStyle = "gigantic"
	if err := s.Validate(); err == nil {
		t.Error("bad HUD style accepted")
	}
}

func TestValidateMaxCaptureCeiling(t *testing.T) {
	s := Defaults()
	s.MaxCaptureMs = 60001
	if err := s.Validate(); err == nil {
		t.Error("max capture above 60000 accepted")
	}
	s.MaxCaptureMs = 60000
	if err := s.Validate(); err != nil {
		t.Errorf("max capture of 60000 rejected: %v", err)
	}
}

func TestValidateMissingModelFatalWithoutFallback(t *testing.T) {
	s := Defaults()
	s.WhisperModel = filepath.Join(t.TempDir(), "nope.bin")
	s.NoPythonFallback = true
	if err := s.Validate(); err == nil {
		t.Error("missing model accepted with fallback disabled")
	}
}

func TestValidateMissingModelToleratedWithFallback(t *testing.T) {
	s := Defaults()
	s.WhisperModel = filepath.Join(t.TempDir(), "nope.bin")
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if s.WhisperModel != "" {
		t.Errorf("WhisperModel = %q, want cleared", s.WhisperModel)
	}
}

func TestValidateCanonicalizesModelPath(t *testing.T) {
	dir := t.TempDir()
	model := filepath.Join(dir, "model.bin")
	if err := os.WriteFile(model, []byte("ggml"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := Defaults()
	s.WhisperModel = model
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !filepath.IsAbs(s.WhisperModel) {
		t.Errorf("WhisperModel = %q, want absolute", s.WhisperModel)
	}
}

func TestValidateEmptyModelRequiresFallback(t *testing.T) {
	s := Defaults()
	s.NoPythonFallback = true
	if err := s.Validate(); err == nil {
		t.Error("empty model path accepted with fallback disabled")
	}
}
