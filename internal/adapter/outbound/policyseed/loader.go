// Package policyseed loads an optional YAML seed file of policy rules into a
// policy.Store at startup and hot-reloads it on change, grounded on the
// teacher's own fsnotify-watched config file (a direct teacher go.mod
// dependency the copied tree never imported, since the teacher's CEL rules
// were compiled once from flags and never watched for changes).
package policyseed

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/Sentinel-Gate/Sentinelgate/internal/domain/policy"
)

// seedFile is the on-disk shape of a policies.yaml seed.
type seedFile struct {
	Rules []seedRule `yaml:"rules"`
}

type seedRule struct {
	ID                string                 `yaml:"rule_id"`
	Name              string                 `yaml:"name"`
	Description       string                 `yaml:"description"`
	ActionTypes       []string               `yaml:"action_types"`
	Conditions        map[string]interface{} `yaml:"conditions"`
	RiskScoreModifier float64                `yaml:"risk_score_modifier"`
	Priority          int                    `yaml:"priority"`
	Enabled           *bool                  `yaml:"enabled"`
}

// Loader applies a policies.yaml seed file to a policy.Store, once at
// startup and again on every write fsnotify reports.
type Loader struct {
	path   string
	store  policy.Store
	logger *slog.Logger
}

// NewLoader constructs a Loader for path against store.
func NewLoader(path string, store policy.Store, logger *slog.Logger) *Loader {
	return &Loader{path: path, store: store, logger: logger}
}

// LoadOnce reads and applies the seed file once. A missing file is not an
// error: the seed is optional per spec.md §4.3, and a gateway can run with
// rules managed purely through the admin API.
func (l *Loader) LoadOnce(ctx context.Context) error {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		l.logger.Info("no policy seed file found; skipping", "path", l.path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("policyseed: read %s: %w", l.path, err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("policyseed: parse %s: %w", l.path, err)
	}

	applied := 0
	for _, sr := range seed.Rules {
		conditions, err := policy.DecodeConditions(sr.Conditions)
		if err != nil {
			l.logger.Error("policy seed rule rejected", "rule_id", sr.ID, "error", err)
			continue
		}
		enabled := true
		if sr.Enabled != nil {
			enabled = *sr.Enabled
		}
		rule := &policy.Rule{
			ID:                sr.ID,
			Name:              sr.Name,
			Description:       sr.Description,
			ActionTypes:       sr.ActionTypes,
			Conditions:        conditions,
			RiskScoreModifier: sr.RiskScoreModifier,
			Priority:          sr.Priority,
			Enabled:           enabled,
		}
		if err := l.store.SaveRule(ctx, rule); err != nil {
			l.logger.Error("failed to save policy seed rule", "rule_id", sr.ID, "error", err)
			continue
		}
		applied++
	}

	l.logger.Info("applied policy seed file", "path", l.path, "rules", applied)
	return nil
}

// Watch blocks watching l.path for writes, reapplying the seed on each one,
// until ctx is canceled. Rules removed from the file are not deleted from
// the store -- the seed is additive/upsert-only: a seeded rule overwrites a
// stored rule with the same rule_id (unlike the admin API's Create, which
// rejects a duplicate rule_id), and rules with other IDs are left untouched.
func (l *Loader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("policyseed: new watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.path); err != nil {
		l.logger.Warn("policy seed file not watchable; hot reload disabled", "path", l.path, "error", err)
		<-ctx.Done()
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := l.LoadOnce(ctx); err != nil {
				l.logger.Error("policy seed reload failed", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			l.logger.Error("policy seed watcher error", "error", err)
		}
	}
}
