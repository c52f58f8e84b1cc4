package db

import (
	"log"

	"github.com/redis/go-redis/v9"
)

// OpenRedis returns a Redis client for the given URL, or nil when the URL is
// empty or unparsable. A nil client puts the revocation store into degraded
// mode: nothing is ever reported as revoked.
func OpenRedis(url string) *redis.Client {
	if url == "" {
		log.Println("REDIS_URL not set, token revocation disabled")
		return nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		log.Printf("invalid REDIS_URL, token revocation disabled: %v", err)
		return nil
	}
	return redis.NewClient(opts)
}
