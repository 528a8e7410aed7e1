package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Seed holds the documents read from a seed directory
type Seed struct {
	Models  map[Operation]*ModelDocument
	Prompts map[Operation]*PromptDocument
}

// SeedWriter receives seed documents
type SeedWriter interface {
	PutModelDocument(op Operation, doc *ModelDocument) error
	PutPromptDocument(op Operation, doc *PromptDocument) error
}

// LoadSeed reads <dir>/models/<operation>.{yaml,yml,json} and
// <dir>/prompts/<operation>.{yaml,yml,json}. Either subdirectory may be absent.
func LoadSeed(dir string) (*Seed, error) {
	seed := &Seed{
		Models:  make(map[Operation]*ModelDocument),
		Prompts: make(map[Operation]*PromptDocument),
	}

	err := readSeedDir(filepath.Join(dir, "models"), func(op Operation, data []byte) error {
		var doc ModelDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return err
		}
		seed.Models[op] = &doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = readSeedDir(filepath.Join(dir, "prompts"), func(op Operation, data []byte) error {
		var doc PromptDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return err
		}
		seed.Prompts[op] = &doc
		return nil
	})
	if err != nil {
		return nil, err
	}

	return seed, nil
}

func readSeedDir(dir string, decode func(Operation, []byte) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading seed directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		op := Operation(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("reading seed file: %w", err)
		}
		if err := decode(op, data); err != nil {
			return fmt.Errorf("decoding seed file %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Apply writes every seed document to w
func (s *Seed) Apply(w SeedWriter) error {
	for _, op := range sortedOperations(s.Models) {
		if err := w.PutModelDocument(op, s.Models[op]); err != nil {
			return fmt.Errorf("writing model document %s: %w", op, err)
		}
		slog.Info("Seeded model configuration", "operation", op, "selected_provider", s.Models[op].SelectedProvider)
	}
	for _, op := range sortedOperations(s.Prompts) {
		if err := w.PutPromptDocument(op, s.Prompts[op]); err != nil {
			return fmt.Errorf("writing prompt document %s: %w", op, err)
		}
		slog.Info("Seeded prompt configuration", "operation", op, "providers", len(s.Prompts[op].Providers))
	}
	return nil
}

func sortedOperations[T any](m map[Operation]T) []Operation {
	ops := make([]Operation, 0, len(m))
	for op := range m {
		ops = append(ops, op)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i] < ops[j] })
	return ops
}
