package database

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

func NewMemcached(timeout time.Duration, servers ...string) *memcache.Client {
	mc := memcache.New(servers...)
	if timeout > 0 {
		mc.Timeout = timeout
	}
	return mc
}
