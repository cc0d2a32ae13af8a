package catconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadValidConfig(t *testing.T) {
	p := writeConfig(t, `
tasks:
  - cmd: "./bench --size 1"
    stdout: /tmp/out.log
cat_policy:
  kind: clustered
  model: linear
sched:
  kind: fair
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Tasks) != 1 {
		t.Fatalf("expected 1 task, got %d", len(cfg.Tasks))
	}
	if cfg.CatPolicy.Every != 1 {
		t.Fatalf("expected default every=1, got %d", cfg.CatPolicy.Every)
	}
	if cfg.CatPolicy.EvalClusters != "dunn" {
		t.Fatalf("expected default eval_clusters=dunn, got %s", cfg.CatPolicy.EvalClusters)
	}
}

func TestLoadRejectsNoTasks(t *testing.T) {
	p := writeConfig(t, `
tasks: []
sched:
  kind: passthrough
`)
	if _, err := Load(p); err != ErrNoTasks {
		t.Fatalf("expected ErrNoTasks, got %v", err)
	}
}

func TestLoadRejectsUnknownModel(t *testing.T) {
	p := writeConfig(t, `
tasks:
  - cmd: "./bench"
cat_policy:
  kind: clustered
  model: bogus
sched:
  kind: random
`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected an error for an unknown model")
	}
}

func TestLoadRejectsUnknownSchedKind(t *testing.T) {
	p := writeConfig(t, `
tasks:
  - cmd: "./bench"
sched:
  kind: bogus
`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected an error for an unknown sched kind")
	}
}

func TestLoadRejectsEmptyCmd(t *testing.T) {
	p := writeConfig(t, `
tasks:
  - cmd: ""
sched:
  kind: passthrough
`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected an error for an empty task cmd")
	}
}
