package contract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/llmcouncil/llmcouncil/backend/pkg/safego"
)

// Pack 合同包文件结构 (contracts.yaml)
type Pack struct {
	Contracts []Spec `yaml:"contracts"`
}

// LoadPack merges a YAML contract pack over the built-ins. Pack entries with
// the base contract id are rejected: the factory contract is immutable.
func (r *Registry) LoadPack(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read contract pack: %w", err)
	}

	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return fmt.Errorf("parse contract pack: %w", err)
	}

	loaded := 0
	r.mu.Lock()
	for _, spec := range pack.Contracts {
		spec.ID = strings.TrimSpace(spec.ID)
		if spec.ID == "" || spec.SystemPrompt == "" {
			r.logger.Warn("Skipping pack contract without id or system_prompt")
			continue
		}
		if spec.ID == BaseContractID {
			r.logger.Warn("Pack may not override the base contract", zap.String("contract_id", spec.ID))
			continue
		}
		if spec.Name == "" {
			spec.Name = spec.ID
		}
		r.specs[spec.ID] = spec
		loaded++
	}
	r.mu.Unlock()

	r.logger.Info("Contract pack loaded",
		zap.String("path", path),
		zap.Int("contracts", loaded),
	)
	return nil
}

// Watch hot-reloads the pack whenever the file is written. Runs until ctx-free
// shutdown via the returned closer. Reload failures keep the previous state.
func (r *Registry) Watch(path string) (func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create pack watcher: %w", err)
	}

	// Watch the directory: editors replace files on save, which drops the
	// watch when pointed at the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	safego.Go(r.logger, "contract-pack-watcher", func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := r.LoadPack(path); err != nil {
					r.logger.Warn("Contract pack reload failed", zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("Contract pack watcher error", zap.Error(err))
			}
		}
	})

	return watcher.Close, nil
}
