// Command reindex drops and recreates the face collection. Run it before a
// full re-ingest when the embedding model or dimension changes; the daemon
// itself never wipes the collection.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/piclens/faceindex/engine/facestore"
)

func main() {
	var (
		qdrantAddr = flag.String("qdrant", envOr("QDRANT_URL", "localhost:6334"), "Qdrant gRPC address")
		collection = flag.String("collection", envOr("QDRANT_COLLECTION", "faces"), "collection name")
		dims       = flag.Int("dims", 128, "vector dimension")
		ensure     = flag.Bool("ensure", false, "create only if missing instead of dropping")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := facestore.New(*qdrantAddr, *collection)
	if err != nil {
		log.Fatalf("qdrant connect: %v", err)
	}
	defer store.Close()

	if *ensure {
		if err := store.EnsureCollection(ctx, *dims); err != nil {
			log.Fatalf("ensure collection: %v", err)
		}
		log.Printf("collection %s ready (dims=%d)", *collection, *dims)
		return
	}

	if err := store.RecreateCollection(ctx, *dims); err != nil {
		log.Fatalf("recreate collection: %v", err)
	}
	log.Printf("collection %s recreated (dims=%d)", *collection, *dims)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
