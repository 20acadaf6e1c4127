package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jobez/dojo/internal/schema"
	"github.com/jobez/dojo/internal/store"

	"gopkg.in/yaml.v3"
)

// fixture is the on-disk seed format:
//
//	models:
//	  - name: Position
//	    members:
//	      - {name: player, type: ContractAddress, key: true}
//	      - {name: x, type: u32}
//	records:
//	  - model: Position
//	    values: {player: "0x1", x: 10}
type fixture struct {
	Models  []fixtureModel  `yaml:"models"`
	Records []fixtureRecord `yaml:"records"`
}

type fixtureModel struct {
	Name    string          `yaml:"name"`
	Version int             `yaml:"version"`
	Members []fixtureMember `yaml:"members"`
}

type fixtureMember struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	Key  bool   `yaml:"key"`
}

type fixtureRecord struct {
	Model  string                 `yaml:"model"`
	Values map[string]interface{} `yaml:"values"`
}

type seedStats struct {
	models  int
	records int
}

func loadFixture(r io.Reader) (*fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var fx fixture
	if err := dec.Decode(&fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	return &fx, nil
}

func (fm fixtureModel) model() (schema.Model, error) {
	version := fm.Version
	if version == 0 {
		version = 1
	}
	m := schema.Model{Name: fm.Name, Version: version}
	for _, member := range fm.Members {
		field, err := schema.NewField(member.Name, member.Type, member.Key)
		if err != nil {
			return schema.Model{}, fmt.Errorf("model %s: %w", fm.Name, err)
		}
		m.Fields = append(m.Fields, field)
	}
	return m, m.Validate()
}

// apply registers every model before writing any record, so records may
// reference models declared later in the file.
func (fx *fixture) apply(ctx context.Context, w *store.Writer) (seedStats, error) {
	var stats seedStats
	models := make(map[string]schema.Model, len(fx.Models))
	for _, fm := range fx.Models {
		m, err := fm.model()
		if err != nil {
			return stats, err
		}
		if err := w.RegisterModel(ctx, m); err != nil {
			return stats, fmt.Errorf("failed to register %s: %w", m.Name, err)
		}
		models[m.Name] = m
		stats.models++
	}

	for i, rec := range fx.Records {
		m, ok := models[rec.Model]
		if !ok {
			return stats, fmt.Errorf("record %d: unknown model %q", i, rec.Model)
		}
		if _, err := w.SetRecord(ctx, m, rec.Values); err != nil {
			return stats, fmt.Errorf("record %d (%s): %w", i, rec.Model, err)
		}
		stats.records++
	}
	return stats, nil
}
