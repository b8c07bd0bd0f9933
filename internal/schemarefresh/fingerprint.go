package schemarefresh

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	componentModels  = "models"
	componentSchemas = "schemas"
)

type fingerprint struct {
	value      string
	components map[string]string
}

// sources are the files a schema build reads.
type sources struct {
	modelsDir   string
	schemaFiles []string
}

func (s sources) fingerprint() (fingerprint, error) {
	components := make(map[string]string, 2)

	if s.modelsDir != "" {
		files, err := modelFiles(s.modelsDir)
		if err != nil {
			return fingerprint{}, err
		}
		h, err := hashFiles(files)
		if err != nil {
			return fingerprint{}, fmt.Errorf("failed to hash %s component: %w", componentModels, err)
		}
		components[componentModels] = h
	}

	var schemaFiles []string
	for _, f := range s.schemaFiles {
		if f != "" {
			schemaFiles = append(schemaFiles, f)
		}
	}
	if len(schemaFiles) > 0 {
		h, err := hashFiles(schemaFiles)
		if err != nil {
			return fingerprint{}, fmt.Errorf("failed to hash %s component: %w", componentSchemas, err)
		}
		components[componentSchemas] = h
	}

	return fingerprint{value: combineComponentHashes(components), components: components}, nil
}

// modelFiles lists the files contentmodel.LoadDir reads, sorted.
func modelFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read models dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if !entry.IsDir() && (ext == ".yaml" || ext == ".yml") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// hashFiles hashes names and contents in order. Every cell is length-prefixed
// so adjacent values cannot collide.
func hashFiles(files []string) (string, error) {
	h := sha256.New()
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", err
		}
		writeCell(h, filepath.Base(f))
		writeCell(h, string(data))
		_, _ = h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeCell(h hash.Hash, cell string) {
	_, _ = fmt.Fprintf(h, "%d:%s|", len(cell), cell)
}

func combineComponentHashes(componentHashes map[string]string) string {
	if len(componentHashes) == 0 {
		return ""
	}
	keys := make([]string, 0, len(componentHashes))
	for key := range componentHashes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, key := range keys {
		_, _ = fmt.Fprintf(h, "%s=%s\n", key, componentHashes[key])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// changedComponents compares over the union of keys so added and removed
// components are reported too.
func changedComponents(previous, current map[string]string) []string {
	keySet := make(map[string]struct{}, len(previous)+len(current))
	for key := range previous {
		keySet[key] = struct{}{}
	}
	for key := range current {
		keySet[key] = struct{}{}
	}
	changed := make([]string, 0, len(keySet))
	for key := range keySet {
		if previous[key] != current[key] {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}
