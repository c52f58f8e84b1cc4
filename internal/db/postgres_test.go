package db

import (
	"os"
	"testing"
)

func TestOpen_InvalidDSN(t *testing.T) {
	for _, dsn := range []string{"", "invalid-dsn", "postgres://"} {
		db, err := Open(dsn)
		if err == nil {
			if db != nil {
				db.Close()
			}
			t.Errorf("Open(%q) should return error", dsn)
			continue
		}
		if db != nil {
			t.Error("Open should return nil db on error")
		}
	}
}

func TestOpen_Success(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	db, err := Open(dsn)
	if err != nil {
		t.Skipf("database connection failed (expected in test environment): %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		t.Errorf("database connection should be usable after Open: %v", err)
	}
}

func TestOpenRedis_EmptyURL(t *testing.T) {
	if c := OpenRedis(""); c != nil {
		t.Error("OpenRedis with empty URL should return nil client")
	}
}

func TestOpenRedis_InvalidURL(t *testing.T) {
	if c := OpenRedis("not-a-redis-url"); c != nil {
		t.Error("OpenRedis with invalid URL should return nil client")
	}
}

func TestOpenRedis_ValidURL(t *testing.T) {
	c := OpenRedis("redis://localhost:6379/0")
	if c == nil {
		t.Fatal("OpenRedis with valid URL should return a client")
	}
	_ = c.Close()
}
