// Command gen_test_data seeds a badger store with a couple of rooms of
// conversation so the inspector and debug server have something to show.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"chat-relay/domain"
	"chat-relay/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

func main() {
	dbPath := flag.String("db", "/tmp/chat-relay/badger", "Path to badger DB")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).WithLogger(nil))
	if err != nil {
		fmt.Fprintf(os.Stderr, "badger open: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	repo := repositories.NewMessageRepository(db, slog.Default())
	defer repo.Close()

	seed := []domain.Message{
		{Room: "general", Sender: "alice", Text: "morning everyone"},
		{Room: "general", Sender: "bob", Text: "hey alice"},
		{Room: "general", Sender: "carol", Text: "anyone seen the deploy logs?"},
		{Room: "general", Sender: "bob", To: lo.ToPtr("alice"), Text: "psst, standup moved to 10"},
		{Room: "random", Sender: "alice", Text: "lunch?"},
		{Room: "random", Sender: "carol", Text: "🍜"},
	}

	for _, msg := range seed {
		msg.ID = uuid.New()
		stored, err := repo.Append(msg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "append: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("seeded %s/%d %s\n", stored.Room, stored.Seq, stored.ID)
	}
}
