package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/rs/zerolog"

	"github.com/totegamma/jsonkeeper/internal/domain"
	"github.com/totegamma/jsonkeeper/internal/logger"
)

const keyPrefix = "jk:doc:"

// DocumentCache is a read-through document cache on memcached. Cache
// failures are logged and otherwise ignored.
type DocumentCache struct {
	mc  *memcache.Client
	ttl int32
	log zerolog.Logger
}

func NewDocumentCache(mc *memcache.Client, ttl time.Duration) *DocumentCache {
	return &DocumentCache{
		mc:  mc,
		ttl: int32(ttl / time.Second),
		log: logger.Module("cache"),
	}
}

type entry struct {
	ID         string     `json:"id"`
	Payload    []byte     `json:"payload"`
	OwnerMode  string     `json:"ownerMode"`
	OwnerValue string     `json:"ownerValue"`
	Unlisted   bool       `json:"unlisted"`
	IsJSONLD   bool       `json:"isJsonLd"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  *time.Time `json:"updatedAt"`
}

func (c *DocumentCache) Get(ctx context.Context, id string) (domain.Document, bool) {
	item, err := c.mc.Get(keyPrefix + id)
	if err != nil {
		if err != memcache.ErrCacheMiss {
			c.log.Debug().Err(err).Str("id", id).Msg("cache get failed")
		}
		return domain.Document{}, false
	}

	var e entry
	if err := json.Unmarshal(item.Value, &e); err != nil {
		c.log.Debug().Err(err).Str("id", id).Msg("cache entry corrupt")
		return domain.Document{}, false
	}

	return domain.Document{
		ID:      e.ID,
		Payload: e.Payload,
		Ownership: domain.Ownership{
			Mode:  domain.ParseOwnershipMode(e.OwnerMode),
			Value: e.OwnerValue,
		},
		Unlisted:  e.Unlisted,
		IsJSONLD:  e.IsJSONLD,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}, true
}

func (c *DocumentCache) Set(ctx context.Context, doc domain.Document) {
	value, err := json.Marshal(entry{
		ID:         doc.ID,
		Payload:    doc.Payload,
		OwnerMode:  doc.Ownership.Mode.String(),
		OwnerValue: doc.Ownership.Value,
		Unlisted:   doc.Unlisted,
		IsJSONLD:   doc.IsJSONLD,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	})
	if err != nil {
		return
	}

	err = c.mc.Set(&memcache.Item{Key: keyPrefix + doc.ID, Value: value, Expiration: c.ttl})
	if err != nil {
		c.log.Debug().Err(err).Str("id", doc.ID).Msg("cache set failed")
	}
}

func (c *DocumentCache) Invalidate(ctx context.Context, id string) {
	err := c.mc.Delete(keyPrefix + id)
	if err != nil && err != memcache.ErrCacheMiss {
		c.log.Debug().Err(err).Str("id", id).Msg("cache delete failed")
	}
}
