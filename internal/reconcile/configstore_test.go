package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clubmetrics/districtsync/internal/blob"
	"github.com/clubmetrics/districtsync/internal/model"
)

func newTestConfigStore(t *testing.T) *ConfigStore {
	t.Helper()
	blobs, err := blob.NewLocal(t.TempDir())
	require.NoError(t, err)
	return NewConfigStore(blobs)
}

func TestValidateConfigDefaults(t *testing.T) {
	assert.NoError(t, ValidateConfig(model.DefaultReconciliationConfig()))
}

func TestValidateConfigRejectsOutOfRange(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.ReconciliationConfig)
	}{
		{"zero max days", func(c *model.ReconciliationConfig) { c.MaxReconciliationDays = 0 }},
		{"max days too large", func(c *model.ReconciliationConfig) { c.MaxReconciliationDays = 91 }},
		{"zero stability", func(c *model.ReconciliationConfig) { c.StabilityPeriodDays = 0 }},
		{"zero check frequency", func(c *model.ReconciliationConfig) { c.CheckFrequencyHours = 0 }},
		{"negative membership threshold", func(c *model.ReconciliationConfig) { c.Thresholds.MembershipPercent = -1 }},
		{"zero club threshold", func(c *model.ReconciliationConfig) { c.Thresholds.ClubCountAbsolute = 0 }},
		{"extension days over cap", func(c *model.ReconciliationConfig) { c.MaxExtensionDays = 31 }},
		{"increment exceeds max extension", func(c *model.ReconciliationConfig) {
			c.ExtensionIncrementDays = 10
			c.MaxExtensionDays = 7
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := model.DefaultReconciliationConfig()
			tt.mutate(&cfg)
			assert.Error(t, ValidateConfig(cfg))
		})
	}
}

func TestConfigStoreLoadAbsentReturnsDefaults(t *testing.T) {
	store := newTestConfigStore(t)

	cfg, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.DefaultReconciliationConfig(), cfg)
}

func TestConfigStoreUpdateRoundTrip(t *testing.T) {
	store := newTestConfigStore(t)
	ctx := context.Background()

	cfg := model.DefaultReconciliationConfig()
	cfg.MaxReconciliationDays = 21
	cfg.Thresholds.MembershipPercent = 2.5
	require.NoError(t, store.Update(ctx, cfg, "ops", "longer window for July"))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestConfigStoreUpdateRejectsInvalid(t *testing.T) {
	store := newTestConfigStore(t)
	ctx := context.Background()

	bad := model.DefaultReconciliationConfig()
	bad.StabilityPeriodDays = 0
	assert.Error(t, store.Update(ctx, bad, "ops", "oops"))

	// Nothing was written.
	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultReconciliationConfig(), loaded)
}

func TestConfigStoreMalformedDocumentDiscardedWhole(t *testing.T) {
	blobs, err := blob.NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, blobs.Put(ctx, configKey, []byte(`{not json`)))

	store := NewConfigStore(blobs)
	cfg, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultReconciliationConfig(), cfg)
}

func TestConfigStoreInvalidDocumentDiscardedWhole(t *testing.T) {
	blobs, err := blob.NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	// Valid JSON, but stability_period_days fails validation: the entire
	// document falls back to defaults, it is not merged field-by-field.
	require.NoError(t, blobs.Put(ctx, configKey,
		[]byte(`{"max_reconciliation_days":21,"stability_period_days":0,"check_frequency_hours":24,"significant_change_thresholds":{"membership_percent":1,"club_count_absolute":1,"distinguished_percent":5},"auto_extension_enabled":true,"max_extension_days":7,"extension_increment_days":3,"extension_trigger_window_days":3}`)))

	store := NewConfigStore(blobs)
	cfg, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultReconciliationConfig().MaxReconciliationDays, cfg.MaxReconciliationDays)
}

func TestConfigStoreAuditNewestFirst(t *testing.T) {
	store := newTestConfigStore(t)
	ctx := context.Background()

	first := model.DefaultReconciliationConfig()
	first.MaxReconciliationDays = 20
	require.NoError(t, store.Update(ctx, first, "alice", "first"))

	second := first
	second.MaxReconciliationDays = 25
	require.NoError(t, store.Update(ctx, second, "bob", "second"))

	entries, err := store.Audit(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "bob", entries[0].ChangedBy)
	assert.Equal(t, 20, entries[0].Previous.MaxReconciliationDays)
	assert.Equal(t, 25, entries[0].New.MaxReconciliationDays)
	assert.Equal(t, "alice", entries[1].ChangedBy)

	limited, err := store.Audit(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "bob", limited[0].ChangedBy)
}

func TestConfigStoreAuditSkipsMalformedLines(t *testing.T) {
	blobs, err := blob.NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	store := NewConfigStore(blobs)
	require.NoError(t, store.Update(ctx, model.DefaultReconciliationConfig(), "ops", "seed"))
	require.NoError(t, blobs.Append(ctx, auditLogKey, []byte("garbage")))

	entries, err := store.Audit(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
