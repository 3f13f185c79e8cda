package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/totegamma/jsonkeeper/internal/domain"
)

const sample = `
server:
  url: https://keeper.example.org/
  apiPath: /api/
identity:
  audience: keeper.example.org
  timeoutSeconds: 3
rewrite:
  types:
    - http://codh.rois.ac.jp/iiif/curation/1#Curation
    - http://iiif.io/api/presentation/2#Manifest
activity:
  collectionPath: as/collection.json
  types:
    - http://codh.rois.ac.jp/iiif/curation/1#Curation
  pageSize: 50
gc:
  intervalSeconds: 3600
  ageSeconds: 86400
userdocsExtra:
  - label
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	conf, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	cfg := conf.ToDomain()
	assert.Equal(t, "https://keeper.example.org", cfg.ServerURL)
	assert.Equal(t, "api", cfg.APIPath)
	assert.Equal(t, domain.DefaultContainerType, cfg.Rewrite.ContainerType)
	assert.Equal(t, domain.DefaultNestedType, cfg.Rewrite.NestedType)
	assert.Equal(t, 50, cfg.Activity.PageSize)
	assert.True(t, cfg.Activity.Enabled())
	assert.Equal(t, time.Hour, cfg.GC.Interval)
	assert.Equal(t, 24*time.Hour, cfg.GC.Age)
	assert.Equal(t, 3*time.Second, cfg.VerifyTimeout)
	assert.Equal(t, 10*time.Second, cfg.PersistenceTimeout)
	assert.Equal(t, []string{"label"}, cfg.UserdocsExtra)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing url", func(c *Config) { c.Server.URL = "" }},
		{"gc interval without age", func(c *Config) { c.GC.IntervalSeconds = 10 }},
		{"collection without types", func(c *Config) { c.Activity.CollectionPath = "as/collection.json" }},
		{"activity type outside rewrite types", func(c *Config) { c.Activity.Types = []string{"urn:x"} }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			conf := Default()
			tc.mutate(&conf)
			assert.Error(t, conf.Validate())
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestDefaultPageSize(t *testing.T) {
	conf := Default()
	conf.Activity.PageSize = 0
	assert.Equal(t, domain.DefaultPageSize, conf.ToDomain().Activity.PageSize)
}
