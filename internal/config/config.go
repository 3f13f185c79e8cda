package config

import (
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/pkg/errors"

	"github.com/totegamma/jsonkeeper/internal/domain"
)

type Config struct {
	Server   Server   `yaml:"server"`
	Identity Identity `yaml:"identity"`
	Rewrite  Rewrite  `yaml:"rewrite"`
	Activity Activity `yaml:"activity"`
	GC       GC       `yaml:"gc"`
	Storage  Storage  `yaml:"storage"`
	Log      Log      `yaml:"log"`
	JSONLD   JSONLD   `yaml:"jsonld"`

	UserdocsExtra []string `yaml:"userdocsExtra"`
}

type Server struct {
	URL                       string `yaml:"url"`
	APIPath                   string `yaml:"apiPath"`
	Bind                      string `yaml:"bind"`
	PersistenceTimeoutSeconds int    `yaml:"persistenceTimeoutSeconds"`
	EnableTrace               bool   `yaml:"enableTrace"`
	TraceEndpoint             string `yaml:"traceEndpoint"`
}

type Identity struct {
	// Audience enables local verification of signed identity tokens.
	Audience string `yaml:"audience"`
	// Endpoint enables remote verification.
	Endpoint        string `yaml:"endpoint"`
	TimeoutSeconds  int    `yaml:"timeoutSeconds"`
	CacheTTLSeconds int    `yaml:"cacheTTLSeconds"`
}

type Rewrite struct {
	Types         []string `yaml:"types"`
	ContainerType string   `yaml:"containerType"`
	NestedType    string   `yaml:"nestedType"`
}

type Activity struct {
	CollectionPath string   `yaml:"collectionPath"`
	Types          []string `yaml:"types"`
	PageSize       int      `yaml:"pageSize"`
}

type GC struct {
	IntervalSeconds int `yaml:"intervalSeconds"`
	AgeSeconds      int `yaml:"ageSeconds"`
}

type Storage struct {
	PostgresDsn     string `yaml:"postgresDsn"`
	RedisAddr       string `yaml:"redisAddr"`
	RedisPassword   string `yaml:"redisPassword"`
	RedisDB         int    `yaml:"redisDB"`
	RealtimeChannel string `yaml:"realtimeChannel"`
	MemcachedAddr   string `yaml:"memcachedAddr"`
	CacheTTLSeconds int    `yaml:"cacheTTLSeconds"`
	TimeoutMillis   int    `yaml:"timeoutMillis"`
}

type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type JSONLD struct {
	// Preload maps context URLs to local files served instead of fetching.
	Preload        map[string]string `yaml:"preload"`
	TimeoutSeconds int               `yaml:"timeoutSeconds"`
}

// Default returns a configuration that runs without any external service
// beyond Postgres.
func Default() Config {
	return Config{
		Server: Server{
			URL:                       "http://localhost:5000",
			APIPath:                   "api",
			Bind:                      ":5000",
			PersistenceTimeoutSeconds: 10,
		},
		Identity: Identity{
			TimeoutSeconds:  5,
			CacheTTLSeconds: 300,
		},
		Rewrite: Rewrite{
			ContainerType: domain.DefaultContainerType,
			NestedType:    domain.DefaultNestedType,
		},
		Activity: Activity{
			PageSize: domain.DefaultPageSize,
		},
		Storage: Storage{
			PostgresDsn:     "host=localhost user=postgres password=postgres dbname=jsonkeeper port=5432 sslmode=disable",
			RealtimeChannel: "jsonkeeper:activity",
			CacheTTLSeconds: 60,
			TimeoutMillis:   200,
		},
		Log: Log{
			Level: "info",
		},
		JSONLD: JSONLD{
			TimeoutSeconds: 10,
		},
	}
}

func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer file.Close()

	config := Default()
	err = yaml.NewDecoder(file).Decode(&config)
	if err != nil {
		return Config{}, errors.Wrapf(err, "decode %s", path)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) Validate() error {
	if c.Server.URL == "" {
		return errors.New("server.url is required")
	}
	if strings.Trim(c.Server.APIPath, "/") == "" {
		return errors.New("server.apiPath is required")
	}
	if (c.GC.IntervalSeconds > 0) != (c.GC.AgeSeconds > 0) {
		return errors.New("gc.intervalSeconds and gc.ageSeconds must be set together")
	}
	if c.Activity.CollectionPath != "" && len(c.Activity.Types) == 0 {
		return errors.New("activity.types is required when activity.collectionPath is set")
	}
	for _, t := range c.Activity.Types {
		if !slices.Contains(c.Rewrite.Types, t) {
			return errors.Errorf("activity type %s is not a rewrite type", t)
		}
	}
	if c.Activity.PageSize < 0 {
		return errors.New("activity.pageSize must not be negative")
	}
	return nil
}

// ToDomain converts the file layout into the value handed to every component.
func (c Config) ToDomain() domain.Config {
	cfg := domain.Config{
		ServerURL: strings.TrimRight(c.Server.URL, "/"),
		APIPath:   strings.Trim(c.Server.APIPath, "/"),
		Rewrite: domain.RewriteConfig{
			Types:         c.Rewrite.Types,
			ContainerType: c.Rewrite.ContainerType,
			NestedType:    c.Rewrite.NestedType,
		},
		Activity: domain.ActivityConfig{
			CollectionPath: strings.Trim(c.Activity.CollectionPath, "/"),
			Types:          c.Activity.Types,
			PageSize:       c.Activity.PageSize,
		},
		GC: domain.GCConfig{
			Interval: seconds(c.GC.IntervalSeconds),
			Age:      seconds(c.GC.AgeSeconds),
		},
		VerifyTimeout:      seconds(c.Identity.TimeoutSeconds),
		PersistenceTimeout: seconds(c.Server.PersistenceTimeoutSeconds),
		UserdocsExtra:      c.UserdocsExtra,
	}
	if cfg.Rewrite.ContainerType == "" {
		cfg.Rewrite.ContainerType = domain.DefaultContainerType
	}
	if cfg.Rewrite.NestedType == "" {
		cfg.Rewrite.NestedType = domain.DefaultNestedType
	}
	if cfg.Activity.PageSize == 0 {
		cfg.Activity.PageSize = domain.DefaultPageSize
	}
	return cfg.Clone()
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
