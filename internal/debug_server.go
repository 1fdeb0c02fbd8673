package internal

import (
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"chat-relay/domain"

	"github.com/dgraph-io/badger/v4"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key       string
	Room      string
	Seq       string
	Sender    string
	Recipient string
	CreatedAt string
	Detail    string
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  map[string]any
}

// StartDebugServer serves a read-only HTML view over the badger keyspace,
// plus the live stats snapshot. Debug builds only; it binds its own port and
// never touches the chat router.
func StartDebugServer(db *badger.DB, port int, mapper RowMapper, statsProvider StatsProvider) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	if mapper == nil {
		mapper = MessageMapper
	}

	mux.HandleFunc("/inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "msg:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  make(map[string]any),
		}
		if statsProvider != nil {
			data.Stats = statsProvider()
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapper(string(item.Key()), val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		_ = http.ListenAndServe(fmt.Sprintf("0.0.0.0:%d", port), mux)
	}()
}

// MessageMapper decodes a "msg:{room}:{seq}" record into a table row. Keys
// with other shapes fall back to a raw size line.
func MessageMapper(key string, val []byte) InspectRow {
	row := InspectRow{
		Key:       key,
		Room:      "-",
		Seq:       "-",
		Sender:    "-",
		Recipient: "broadcast",
		CreatedAt: "--:--:--",
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}

	parts := strings.Split(key, ":")
	if len(parts) >= 3 && parts[0] == "msg" {
		if room, err := url.QueryUnescape(parts[1]); err == nil {
			row.Room = room
		} else {
			row.Room = parts[1]
		}
		row.Seq = strings.TrimLeft(parts[2], "0")
		if row.Seq == "" {
			row.Seq = "0"
		}
	}

	var msg domain.Message
	if err := json.Unmarshal(val, &msg); err != nil {
		return row
	}
	row.Sender = msg.Sender
	if msg.To != nil {
		row.Recipient = *msg.To
	}
	row.CreatedAt = msg.CreatedAt.Format("15:04:05")
	row.Detail = msg.Text
	if len(row.Detail) > 80 {
		row.Detail = row.Detail[:80] + "…"
	}
	return row
}
