package redis

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"

	"github.com/formsmith/stepflow-go/persist"
	"github.com/formsmith/stepflow-go/persist/persisttest"
)

func TestRedisStore(t *testing.T) {
	// Quick availability check to allow graceful skip in environments
	// without Redis.
	client := goredis.NewClient(&goredis.Options{
		Addr: "127.0.0.1:6379",
		DB:   3, // separate DB for snapshot tests
	})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer client.FlushDB(ctx)
	defer client.Close()

	persisttest.RunStoreTests(t, func(t *testing.T) persist.Store {
		s, err := New(Config{Client: client, KeyPrefix: "stepflow:test:" + t.Name() + ":"})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return s
	})
}
