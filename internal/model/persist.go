package model

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// artifact is the on-disk form of a fitted pipeline. A single file holds
// both the fitted preprocessing state and the forest so they can never
// drift apart.
type artifact struct {
	Preprocessor *Preprocessor
	Forest       *Forest
	Version      string
}

// Save persists the fitted pipeline to path. The write goes through a
// temp file and rename so a crash never leaves a truncated artifact.
func (p *Pipeline) Save(path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create artifact directory: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, "kestrel-model-*.gob")
	if err != nil {
		return fmt.Errorf("failed to create artifact temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := gob.NewEncoder(tmp)
	if err := enc.Encode(&artifact{
		Preprocessor: p.Preprocessor,
		Forest:       p.Forest,
		Version:      p.Version,
	}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to encode model artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// Load reads a persisted pipeline from path. Returns an error when the
// file is missing or structurally invalid; the caller decides whether to
// fall back to training.
func Load(path string) (*Pipeline, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open model artifact: %w", err)
	}
	defer f.Close()

	var a artifact
	if err := gob.NewDecoder(f).Decode(&a); err != nil {
		return nil, fmt.Errorf("failed to decode model artifact: %w", err)
	}
	if a.Preprocessor == nil || !a.Preprocessor.Fitted || a.Forest == nil || len(a.Forest.Trees) == 0 {
		return nil, fmt.Errorf("model artifact is incomplete")
	}

	return &Pipeline{
		Preprocessor: a.Preprocessor,
		Forest:       a.Forest,
		Version:      a.Version,
	}, nil
}
