package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/capturekit/usd2urdf/materials"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Inertial.Mass != 1.0 || cfg.Inertial.Diagonal != 0.1 {
		t.Errorf("inertial defaults %v", cfg.Inertial)
	}
	if cfg.Joint.Effort != 100 || cfg.Joint.Velocity != 1 {
		t.Errorf("joint defaults %v", cfg.Joint)
	}
	if cfg.MeshesDir != "meshes" || cfg.MaterialsDir != "materials" || cfg.TexturesDir != "textures" {
		t.Errorf("directory defaults %q %q %q", cfg.MeshesDir, cfg.MaterialsDir, cfg.TexturesDir)
	}
	if len(cfg.TextureKeywords) == 0 {
		t.Error("keyword table empty")
	}
}

func TestLoadOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	body := `
robot_name: oven
inertial:
  mass: 2.5
texture_keywords:
  - keyword: wood
    slot: diffuse
`
	if err := os.WriteFile(path, []byte(body), 0666); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RobotName != "oven" {
		t.Errorf("robot_name=%q", cfg.RobotName)
	}
	if cfg.Inertial.Mass != 2.5 {
		t.Errorf("mass=%v; expected overlay 2.5", cfg.Inertial.Mass)
	}
	// Untouched fields keep their defaults.
	if cfg.Joint.Effort != 100 {
		t.Errorf("effort=%v; expected default 100", cfg.Joint.Effort)
	}
	if len(cfg.TextureKeywords) != 1 || cfg.TextureKeywords[0] != (materials.KeywordRule{Keyword: "wood", Slot: "diffuse"}) {
		t.Errorf("keyword table=%v", cfg.TextureKeywords)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
	cfg, err := Load("")
	if err != nil || cfg == nil {
		t.Fatalf("empty path must return defaults, got %v %v", cfg, err)
	}
}
