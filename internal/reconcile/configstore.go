package reconcile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/clubmetrics/districtsync/internal/blob"
	"github.com/clubmetrics/districtsync/internal/model"
)

const (
	configKey   = "reconciliation/config.json"
	auditLogKey = "reconciliation/config-audit.jsonl"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateConfig checks a reconciliation configuration. Invalid values are
// rejected outright, never clamped.
func ValidateConfig(cfg model.ReconciliationConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return eris.Wrap(err, "reconcile: invalid config")
	}
	if cfg.AutoExtensionEnabled && cfg.ExtensionIncrementDays > cfg.MaxExtensionDays {
		return eris.Errorf("reconcile: invalid config: extension_increment_days %d exceeds max_extension_days %d",
			cfg.ExtensionIncrementDays, cfg.MaxExtensionDays)
	}
	return nil
}

// ConfigAuditEntry is one line of the append-only configuration change log.
type ConfigAuditEntry struct {
	ChangedAt time.Time                  `json:"changed_at"`
	ChangedBy string                     `json:"changed_by,omitempty"`
	Reason    string                     `json:"reason,omitempty"`
	Previous  model.ReconciliationConfig `json:"previous"`
	New       model.ReconciliationConfig `json:"new"`
}

// ConfigStore persists the reconciliation configuration as a single JSON
// document plus an append-only JSONL change audit.
type ConfigStore struct {
	blobs blob.Store
}

// NewConfigStore creates a config store over the given blob provider.
func NewConfigStore(blobs blob.Store) *ConfigStore {
	return &ConfigStore{blobs: blobs}
}

// Load returns the persisted configuration, or the defaults when the
// document is absent or fails validation. A failed validation discards the
// whole loaded document; it is never merged field-by-field with defaults.
func (c *ConfigStore) Load(ctx context.Context) (model.ReconciliationConfig, error) {
	fallback := model.DefaultReconciliationConfig()

	data, err := c.blobs.Get(ctx, configKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return fallback, nil
		}
		return fallback, eris.Wrap(err, "reconcile: load config")
	}

	var cfg model.ReconciliationConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		zap.L().Warn("persisted reconciliation config is malformed, using defaults",
			zap.String("component", "reconcile.config"),
			zap.Error(err),
		)
		return fallback, nil
	}
	if err := ValidateConfig(cfg); err != nil {
		zap.L().Warn("persisted reconciliation config failed validation, using defaults",
			zap.String("component", "reconcile.config"),
			zap.Error(err),
		)
		return fallback, nil
	}
	return cfg, nil
}

// Update validates and persists a new configuration, appending an audit
// entry recording the transition. Invalid configurations are rejected and
// nothing is written.
func (c *ConfigStore) Update(ctx context.Context, cfg model.ReconciliationConfig, changedBy, reason string) error {
	if err := ValidateConfig(cfg); err != nil {
		return err
	}

	previous, err := c.Load(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		return eris.Wrap(err, "reconcile: marshal config")
	}
	if err := c.blobs.Put(ctx, configKey, data); err != nil {
		return eris.Wrap(err, "reconcile: write config")
	}

	entry := ConfigAuditEntry{
		ChangedAt: time.Now().UTC(),
		ChangedBy: changedBy,
		Reason:    reason,
		Previous:  previous,
		New:       cfg,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return eris.Wrap(err, "reconcile: marshal audit entry")
	}
	if err := c.blobs.Append(ctx, auditLogKey, line); err != nil {
		return eris.Wrap(err, "reconcile: append audit")
	}

	zap.L().Info("reconciliation config updated",
		zap.String("component", "reconcile.config"),
		zap.String("changed_by", changedBy),
	)
	return nil
}

// Audit returns configuration change entries, most recent first. Limit 0
// returns everything. Malformed lines are skipped with a warning.
func (c *ConfigStore) Audit(ctx context.Context, limit int) ([]ConfigAuditEntry, error) {
	data, err := c.blobs.Get(ctx, auditLogKey)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "reconcile: read audit")
	}

	var entries []ConfigAuditEntry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e ConfigAuditEntry
		if err := json.Unmarshal(line, &e); err != nil {
			zap.L().Warn("skipping malformed audit line",
				zap.String("component", "reconcile.config"),
				zap.Error(err),
			)
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "reconcile: scan audit")
	}

	// Stored oldest-first; return newest-first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
