package heroes

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const catalogJSON = `{"heroes":[{"name":"Mei","abilities":[{"name":"Blizzard","ultimate":true}]},{"name":"Ana","alts":["mei"],"abilities":[]}]}`

func TestParseYAML(t *testing.T) {
	data := []byte(`
heroes:
  - name: "Soldier: 76"
    alts: [soldier, "76"]
    abilities:
      - name: Helix Rockets
      - name: Tactical Visor
        ultimate: true
  - name: Lucio
    alts: [lúcio]
    abilities:
      - name: Sound Barrier
        ultimate: true
`)
	c, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		in   string
		want string
	}{
		{"Soldier: 76", "Soldier: 76"},
		{"soldier", "Soldier: 76"},
		{" 76 ", "Soldier: 76"},
		{"LÚCIO", "Lucio"},
		{"lucio", "Lucio"},
	}
	for _, tt := range tests {
		got, err := c.Canonical(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("Canonical(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}

	if _, err := c.Canonical("Genji"); !errors.Is(err, ErrUnknownHero) {
		t.Errorf("expected ErrUnknownHero, got %v", err)
	}

	h, _ := c.Lookup("76")
	if ab, ok := h.Ability("Tactical Visor"); !ok || !ab.Ultimate {
		t.Errorf("Tactical Visor = %v %v", ab, ok)
	}
	if _, ok := h.Ability("helix rockets"); !ok {
		t.Error("expected ability lookup to ignore case")
	}
}

func TestParseRejectsInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("heroes: [")); err == nil {
		t.Error("truncated document should not parse")
	}
	if _, err := Parse([]byte("heroes:\n  - alts: [x]\n")); err == nil {
		t.Error("hero without a name should be rejected")
	}
}

func TestLoadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heroes.json")
	if err := os.WriteFile(path, []byte(catalogJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := c.Names(); len(got) != 2 || got[0] != "Ana" || got[1] != "Mei" {
		t.Errorf("Names = %v", got)
	}
	if h, _ := c.Lookup("mei"); h.Name != "Mei" {
		t.Errorf("an alt must not shadow a hero name, got %s", h.Name)
	}
}

func TestNilCatalogAcceptsAnything(t *testing.T) {
	var c *Catalog
	if got, err := c.Canonical("Whoever"); err != nil || got != "Whoever" {
		t.Errorf("got %q %v", got, err)
	}
	if _, ok := c.Lookup("x"); ok {
		t.Error("nil catalog should not find heroes")
	}
}
