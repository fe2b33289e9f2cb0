package mongostore

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/driftbox/driftbox/internal/metadata"
	"github.com/driftbox/driftbox/internal/metadata/storetest"
)

func TestToDocumentWidensInt32(t *testing.T) {
	doc := toDocument(bson.M{"size": int32(42), "name": "a.txt", "synced": true})

	if n, ok := doc["size"].(int64); !ok || n != 42 {
		t.Errorf("Expected int64 42, got %T %v", doc["size"], doc["size"])
	}
	if doc["name"] != "a.txt" || doc["synced"] != true {
		t.Errorf("Unexpected document %v", doc)
	}
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("DRIFTBOX_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("DRIFTBOX_TEST_MONGO_URI not set")
	}

	n := 0
	storetest.Run(t, func(t *testing.T) metadata.Store {
		n++
		db := fmt.Sprintf("driftbox_test_%d_%d", time.Now().Unix(), n)
		s, err := Open(context.Background(), Options{URI: uri, Database: db, ConnectTimeout: 5 * time.Second})
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
		t.Cleanup(func() {
			s.coll.Database().Drop(context.Background())
			s.Close()
		})
		return s
	})
}
