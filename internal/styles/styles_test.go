package styles

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuiltinCatalog(t *testing.T) {
	c := Builtin()
	all := c.All()
	if len(all) != 8 {
		t.Fatalf("expected 8 built-in styles, got %d", len(all))
	}
	s, ok := c.Lookup("pink-bangs")
	if !ok {
		t.Fatalf("pink-bangs missing from builtin catalog")
	}
	if s.Name != "Short Pink with Bangs" {
		t.Fatalf("unexpected name %q", s.Name)
	}
	if _, ok := c.Lookup("mullet"); ok {
		t.Fatalf("unknown id should not resolve")
	}
}

func TestLoadEmptyPathFallsBackToBuiltin(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.All()) != len(Builtin().All()) {
		t.Fatalf("expected builtin catalog")
	}
}

func TestLoadCustomCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "styles.yaml")
	content := `
styles:
  - id: mohawk
    name: Green Mohawk
    prompt: tall green mohawk
  - id: perm
    name: Tight Perm
    prompt: tight curly perm
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.All()) != 2 {
		t.Fatalf("expected 2 styles, got %d", len(c.All()))
	}
	s, ok := c.Lookup("mohawk")
	if !ok || s.Prompt != "tall green mohawk" {
		t.Fatalf("unexpected style %+v", s)
	}
}

func TestLoadRejectsBadCatalogs(t *testing.T) {
	cases := map[string]string{
		"empty":     "styles: []",
		"missing":   "styles:\n  - id: x\n    name: X\n",
		"duplicate": "styles:\n  - {id: x, name: X, prompt: p}\n  - {id: x, name: Y, prompt: q}\n",
	}
	for label, content := range cases {
		path := filepath.Join(t.TempDir(), label+".yaml")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture: %v", err)
		}
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected error", label)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read") {
		t.Fatalf("expected read error, got %v", err)
	}
}
