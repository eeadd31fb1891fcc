package main

import (
	"fmt"
	"os"
	"time"

	"github.com/flowmesh/tieredstore/internal/storage"
	"github.com/flowmesh/tieredstore/internal/storage/flatfile"
	"github.com/flowmesh/tieredstore/internal/storage/metastore"
)

func main() {
	// Use default data directory (same as running server)
	dataDir := "./data"
	if len(os.Args) > 1 {
		dataDir = os.Args[1]
	}

	provider, err := flatfile.NewPebbleProvider(dataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open tier provider: %v\n", err)
		os.Exit(1)
	}
	defer provider.Close()

	metaStore, err := metastore.NewStore(dataDir + "/metadata")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open metadata store: %v\n", err)
		os.Exit(1)
	}

	topics := []struct {
		name     string
		topicID  int32
		queues   int
		messages int
	}{
		{"test-topic", 1, 2, 200},
		{"orders", 2, 1, 50},
	}

	fmt.Println("Seeding test data...")
	baseTime := time.Now().Add(-time.Hour).UnixMilli()

	for _, t := range topics {
		if err := metaStore.CreateTopic(&metastore.TopicMetadata{Topic: t.name, TopicID: t.topicID, ReserveTime: -1}); err != nil {
			if _, ok := err.(metastore.TopicExistsError); !ok {
				fmt.Fprintf(os.Stderr, "Failed to register topic %s: %v\n", t.name, err)
				os.Exit(1)
			}
		}

		for q := 0; q < t.queues; q++ {
			mq := storage.MessageQueue{Topic: t.name, BrokerName: "broker-0", QueueID: int32(q)}
			for i := 0; i < t.messages; i++ {
				body := []byte(fmt.Sprintf("%s-%d-message-%06d", t.name, q, i))
				storeTime := baseTime + int64(i)*10
				key := fmt.Sprintf("key-%d", i%16)

				_, commitLogOffset, err := provider.AppendMessage(mq, body, storeTime, 0)
				if err != nil {
					fmt.Fprintf(os.Stderr, "Failed to append message: %v\n", err)
					os.Exit(1)
				}

				size := int32(storage.MessageHeaderSize + len(body))
				entry := flatfile.EncodeIndexEntry(flatfile.IndexEntry{
					Hash:            flatfile.IndexKeyHash(flatfile.BuildKey(t.name, key)),
					TopicID:         t.topicID,
					QueueID:         mq.QueueID,
					CommitLogOffset: commitLogOffset,
					Size:            size,
					TimeDiff:        int32(storeTime - baseTime),
				})
				if err := provider.AppendIndexEntry(baseTime, entry); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to append index entry: %v\n", err)
					os.Exit(1)
				}
			}
			fmt.Printf("Seeded %d messages into %s\n", t.messages, mq.String())
		}
	}

	fmt.Println("Done.")
}
