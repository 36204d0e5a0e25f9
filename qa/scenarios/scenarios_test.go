package scenarios

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScenario(t *testing.T) {
	files, err := filepath.Glob("*.yaml")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) == 0 {
		t.Fatal("no scenario files")
	}
	for _, f := range files {
		sc, err := Load(f)
		if err != nil {
			t.Fatalf("load %s: %v", f, err)
		}
		t.Run(sc.Name, func(t *testing.T) {
			RunScenario(t, sc)
		})
	}
}

func TestLoad(t *testing.T) {
	sc, err := Load("two_producers.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.Steps != 2 || len(sc.Grid.Producers) != 2 || sc.Grid.Consumers[0].FixedDemand == nil {
		t.Fatalf("unexpected scenario: %+v", sc)
	}
	if *sc.Expected.TotalPower != 248 {
		t.Fatalf("total power %v", *sc.Expected.TotalPower)
	}

	sc, err = Load("no_demand.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if sc.Steps != 1 {
		t.Fatalf("default steps %d", sc.Steps)
	}
}

func TestLoadInvalid(t *testing.T) {
	if _, err := Load("no-file.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte(":"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatal("expected unmarshal error")
	}
	unnamed := filepath.Join(dir, "unnamed.yaml")
	if err := os.WriteFile(unnamed, []byte("steps: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(unnamed); err == nil {
		t.Fatal("expected error for scenario without name")
	}
}
