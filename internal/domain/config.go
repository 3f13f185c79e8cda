package domain

import (
	"slices"
	"time"
)

const (
	DefaultContainerType = "http://codh.rois.ac.jp/iiif/curation/1#Curation"
	DefaultNestedType    = "http://iiif.io/api/presentation/2#Range"
	DefaultPageSize      = 100
)

// Config is built once at process start and handed to every component.
// It is treated as immutable after construction.
type Config struct {
	ServerURL string
	APIPath   string

	Rewrite  RewriteConfig
	Activity ActivityConfig
	GC       GCConfig

	VerifyTimeout      time.Duration
	PersistenceTimeout time.Duration

	UserdocsExtra []string
}

type RewriteConfig struct {
	Types         []string
	ContainerType string
	NestedType    string
}

func (c RewriteConfig) Enabled() bool {
	return len(c.Types) > 0
}

type ActivityConfig struct {
	// CollectionPath is relative to ServerURL, e.g. "as/collection.json".
	CollectionPath string
	Types          []string
	PageSize       int
}

func (c ActivityConfig) Enabled() bool {
	return c.CollectionPath != "" && len(c.Types) > 0
}

type GCConfig struct {
	Interval time.Duration
	Age      time.Duration
}

func (c GCConfig) Enabled() bool {
	return c.Interval > 0 && c.Age > 0
}

// Clone returns a deep copy so callers cannot mutate shared slices.
func (c Config) Clone() Config {
	c.Rewrite.Types = slices.Clone(c.Rewrite.Types)
	c.Activity.Types = slices.Clone(c.Activity.Types)
	c.UserdocsExtra = slices.Clone(c.UserdocsExtra)
	return c
}
