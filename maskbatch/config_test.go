package maskbatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lewtec/maskbatch/internal/domain"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
database: /data/annotations.db
listen: ":9090"
log_level: debug
autosave_debounce: 250ms
export:
  image_statuses: [approved]
  layer_statuses: [approved, edited]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/data/annotations.db", cfg.Database)
	assert.Equal(t, ":9090", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 250*time.Millisecond, cfg.AutosaveDebounce)
	assert.Equal(t, []domain.ImageStatus{domain.ImageApproved}, cfg.ExportImageStatuses())
	assert.Equal(t, []domain.LayerStatus{domain.LayerApproved, domain.LayerEdited}, cfg.ExportLayerStatuses())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "{}"))
	require.NoError(t, err)

	assert.Equal(t, "maskbatch.db", cfg.Database)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Positive(t, cfg.AutosaveDebounce)
	assert.Empty(t, cfg.ExportImageStatuses(), "empty filter selects everything")
}

func TestLoadConfigRejectsUnknownStatuses(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, `
export:
  image_statuses: [finished]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finished")

	_, err = LoadConfig(writeConfig(t, `
export:
  layer_statuses: [automask]
`))
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
