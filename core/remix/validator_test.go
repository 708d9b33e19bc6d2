package remix

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path string, size int) string {
	t.Helper()
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xAB}, size), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

func TestValidateStemsFiltersBySizeFloor(t *testing.T) {
	dir := t.TempDir()
	stems := map[string]string{
		"vocals": writeFile(t, filepath.Join(dir, "vocals.wav"), 4000),
		"drums":  writeFile(t, filepath.Join(dir, "drums.wav"), 500),
		"bass":   filepath.Join(dir, "missing.wav"),
	}

	valid := ValidateStems(stems, 1000)
	if len(valid) != 1 {
		t.Fatalf("expected 1 valid stem, got %d: %v", len(valid), valid)
	}
	if _, ok := valid["vocals"]; !ok {
		t.Fatal("vocals should have survived validation")
	}
}

func TestValidateStemsEmptyInputIsNotAnError(t *testing.T) {
	valid := ValidateStems(map[string]string{}, 1000)
	if len(valid) != 0 {
		t.Fatalf("expected empty result, got %v", valid)
	}
}

func TestValidateStemsExactFloorPasses(t *testing.T) {
	dir := t.TempDir()
	stems := map[string]string{
		"other": writeFile(t, filepath.Join(dir, "other.wav"), 1000),
	}
	valid := ValidateStems(stems, 1000)
	if len(valid) != 1 {
		t.Fatalf("a stem exactly at the floor should pass, got %v", valid)
	}
}
