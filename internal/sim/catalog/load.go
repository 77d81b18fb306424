package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type kindsFile struct {
	Kinds []KindDef `json:"kinds"`
}

type areasFile struct {
	Areas []AreaDef `json:"areas"`
}

// archetypesFile keys weights by kind name on the wire; keys are parsed to
// Kind and rejected when unknown, so a misspelled key fails loudly instead
// of silently dropping out of generation.
type archetypesFile struct {
	Archetypes map[string]map[string]float64 `json:"archetypes"`
}

// Load reads kinds.json, areas.json and archetypes.json from dir,
// remembering a sha256 digest of each file's raw bytes.
func Load(dir string) (*Catalog, error) {
	rawKinds, err := os.ReadFile(filepath.Join(dir, "kinds.json"))
	if err != nil {
		return nil, fmt.Errorf("kinds.json: %w", err)
	}
	var kf kindsFile
	if err := json.Unmarshal(rawKinds, &kf); err != nil {
		return nil, fmt.Errorf("kinds.json: %w", err)
	}

	rawAreas, err := os.ReadFile(filepath.Join(dir, "areas.json"))
	if err != nil {
		return nil, fmt.Errorf("areas.json: %w", err)
	}
	var af areasFile
	if err := json.Unmarshal(rawAreas, &af); err != nil {
		return nil, fmt.Errorf("areas.json: %w", err)
	}

	rawArch, err := os.ReadFile(filepath.Join(dir, "archetypes.json"))
	if err != nil {
		return nil, fmt.Errorf("archetypes.json: %w", err)
	}
	var xf archetypesFile
	if err := json.Unmarshal(rawArch, &xf); err != nil {
		return nil, fmt.Errorf("archetypes.json: %w", err)
	}

	arch := make(map[string]Weights, len(xf.Archetypes))
	for id, wire := range xf.Archetypes {
		w := make(Weights, len(wire))
		for name, v := range wire {
			k := Kind(name)
			if !k.Valid() {
				return nil, fmt.Errorf("archetypes.json: archetype %s: unknown kind %q", id, name)
			}
			w[k] = v
		}
		arch[id] = w
	}

	c, err := newCatalog(kf.Kinds, af.Areas, arch)
	if err != nil {
		return nil, err
	}
	c.KindsDigest = sha256Hex(rawKinds)
	c.AreasDigest = sha256Hex(rawAreas)
	c.ArchetypesDigest = sha256Hex(rawArch)
	return c, nil
}

func newCatalog(kinds []KindDef, areas []AreaDef, arch map[string]Weights) (*Catalog, error) {
	c := &Catalog{
		Kinds:      make(map[Kind]KindDef, len(kinds)),
		Areas:      make(map[AreaID]AreaDef, len(areas)),
		Archetypes: arch,
	}
	for _, d := range kinds {
		if !d.ID.Valid() {
			return nil, fmt.Errorf("catalog: unknown kind %q", d.ID)
		}
		if _, dup := c.Kinds[d.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate kind %s", d.ID)
		}
		c.Kinds[d.ID] = d
	}
	for _, a := range areas {
		if !a.ID.Valid() {
			return nil, fmt.Errorf("catalog: unknown area %q", a.ID)
		}
		if _, dup := c.Areas[a.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate area %s", a.ID)
		}
		c.Areas[a.ID] = a
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func defaultArchetypeWire() map[string]map[string]float64 {
	src := defaultArchetypes()
	out := make(map[string]map[string]float64, len(src))
	for id, w := range src {
		m := make(map[string]float64, len(w))
		for k, v := range w {
			m[string(k)] = v
		}
		out[id] = m
	}
	return out
}

func sha256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func digestJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return sha256Hex(b)
}
