package fusionconfig_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/mec-fusion/internal/fusionconfig"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir string, body map[string]any) string {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	path := filepath.Join(dir, "fusion.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestLoadAppliesDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"association_threshold": 7.5,
	})

	cfg, err := fusionconfig.Load(path)
	require.NoError(t, err)

	require.Equal(t, 7.5, cfg.GetAssociationThreshold())
	require.Equal(t, 0.3, cfg.GetConfidenceThreshold())
	require.Equal(t, 50, cfg.GetMaxTrackAge())
	require.Equal(t, 115200, cfg.GetRadarBaudRate())
}

func TestLoadRejectsNonJSONExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fusion.txt")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	_, err := fusionconfig.Load(path)
	require.Error(t, err)
}

func TestValidateRejectsBadBaudRate(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"radar_baud_rate": 4800,
	})

	_, err := fusionconfig.Load(path)
	require.Error(t, err)
}

func TestValidateRejectsConfidenceOutOfRange(t *testing.T) {
	cfg := fusionconfig.Empty()
	bad := 1.5
	cfg.ConfidenceThreshold = &bad
	require.Error(t, cfg.Validate())
}
