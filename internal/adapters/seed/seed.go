// Package seed loads the locality reference table from YAML.
package seed

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Overland-East-Bay/rider-standings-api/internal/domain"
	"github.com/Overland-East-Bay/rider-standings-api/internal/ports/out/localityrepo"
)

//go:embed localities.yaml
var defaultLocalities []byte

type file struct {
	Localities []entry `yaml:"localities"`
}

type entry struct {
	Name     string  `yaml:"name"`
	Comarca  string  `yaml:"comarca"`
	Province string  `yaml:"province"`
	X        float64 `yaml:"x"`
	Y        float64 `yaml:"y"`
}

// Default parses the bundled locality table.
func Default() ([]domain.Locality, error) {
	return Parse(bytes.NewReader(defaultLocalities))
}

// LoadFile parses a locality table from path.
func LoadFile(path string) ([]domain.Locality, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open locality seed: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes and validates a locality table. Names are normalized; duplicates after
// normalization and coordinates outside WGS84 ranges are rejected.
func Parse(r io.Reader) ([]domain.Locality, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f file
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decode locality seed: %w", err)
	}

	seen := make(map[domain.LocalityName]bool, len(f.Localities))
	out := make([]domain.Locality, 0, len(f.Localities))
	for i, e := range f.Localities {
		name := domain.NormalizeLocalityName(e.Name)
		if name == "" {
			return nil, fmt.Errorf("locality %d: name is required", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("locality %q: duplicate name", name)
		}
		seen[name] = true
		if e.X < -180 || e.X > 180 || e.Y < -90 || e.Y > 90 {
			return nil, fmt.Errorf("locality %q: coordinates (%v, %v) out of range", name, e.X, e.Y)
		}
		out = append(out, domain.Locality{
			Name:     name,
			Comarca:  domain.NormalizeHumanName(e.Comarca),
			Province: domain.NormalizeHumanName(e.Province),
			X:        e.X,
			Y:        e.Y,
		})
	}
	return out, nil
}

// Apply upserts every locality into repo and returns how many were written.
func Apply(ctx context.Context, repo localityrepo.Repository, ls []domain.Locality) (int, error) {
	for i, l := range ls {
		if err := repo.Upsert(ctx, l); err != nil {
			return i, fmt.Errorf("upsert locality %q: %w", l.Name, err)
		}
	}
	return len(ls), nil
}
