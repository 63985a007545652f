package config

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleDoc = `guilds:
  "111":
    target_roles:
      "0": "r0"
      "main": "rm"
    role_display_names:
      "0": "First Clan"
    timezone: UTC
    ocr:
      alphabet: "abc"
      save_processed: true
      processed_dir: data/processed
      max_processed_files: 10
      match_threshold: 0.8
      detailed_logging:
        enabled: true
        similarity_threshold: 0.3
`

func writeDoc(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guilds.yaml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadGuild(t *testing.T) {
	p, err := Load(writeDoc(t, sampleDoc))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	g, ok := p.Guild("111")
	if !ok {
		t.Fatalf("guild not found")
	}
	if g.TargetRoles["0"] != "r0" || g.TargetRoles["main"] != "rm" {
		t.Fatalf("unexpected roles %+v", g.TargetRoles)
	}
	if g.MatchThreshold() != 0.8 {
		t.Fatalf("unexpected threshold %v", g.MatchThreshold())
	}
	if !g.OCR.DetailedLogging.Enabled || g.OCR.DetailedLogging.SimilarityThreshold != 0.3 {
		t.Fatalf("unexpected logging %+v", g.OCR.DetailedLogging)
	}
	if g.ClanLabel("0") != "First Clan" || g.ClanLabel("main") != "main" {
		t.Fatalf("unexpected labels")
	}
	if _, ok := p.Guild("222"); ok {
		t.Fatalf("unconfigured guild must not resolve")
	}
}

func TestDefaults(t *testing.T) {
	var g GuildConfig
	if g.MatchThreshold() != 0.7 {
		t.Fatalf("default threshold %v", g.MatchThreshold())
	}
	if g.Location() == nil {
		t.Fatalf("location must never be nil")
	}
	opts := g.OCR.Preprocessing.Options()
	if opts.WhiteThreshold != 180 || opts.Upscale != 2 {
		t.Fatalf("zero preprocessing block must fall back to defaults: %+v", opts)
	}
}

func TestReloadKeepsServingOnParseError(t *testing.T) {
	path := writeDoc(t, sampleDoc)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := os.WriteFile(path, []byte("guilds: [\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := p.Reload(); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, ok := p.Guild("111"); !ok {
		t.Fatalf("broken reload must not drop the served config")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
