// Package observability aggregates live counters of the chat core for the
// stats endpoint and the badger debug server.
package observability

import (
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// ChatStats is safe for concurrent use; every counter is atomic.
type ChatStats struct {
	log       *slog.Logger
	startedAt time.Time
	proc      *process.Process

	connectionsOpened uint64
	connectionsClosed uint64
	roomsCreated      uint64
	messagesStored    uint64
	messagesEdited    uint64
	messagesDeleted   uint64
	deliveries        uint64
	droppedDeliveries uint64
	storeFailures     uint64
}

// Snapshot is the JSON shape served at /api/stats.
type Snapshot struct {
	UptimeSeconds     int64   `json:"uptime_seconds"`
	ActiveConnections int64   `json:"active_connections"`
	RoomsCreated      uint64  `json:"rooms_created"`
	MessagesStored    uint64  `json:"messages_stored"`
	MessagesEdited    uint64  `json:"messages_edited"`
	MessagesDeleted   uint64  `json:"messages_deleted"`
	Deliveries        uint64  `json:"deliveries"`
	DroppedDeliveries uint64  `json:"dropped_deliveries"`
	StoreFailures     uint64  `json:"store_failures"`
	Goroutines        int     `json:"goroutines"`
	AllocMemMb        uint64  `json:"alloc_mem_mb"`
	NumGC             uint32  `json:"num_gc"`
	CPUPercent        float64 `json:"cpu_percent"`
	RSSBytes          uint64  `json:"rss_bytes"`
}

func NewChatStats(log *slog.Logger) *ChatStats {
	stats := &ChatStats{log: log, startedAt: time.Now()}

	// Self-process handle for CPU/RSS; stats stay usable without it.
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process stats unavailable", "error", err)
	} else {
		stats.proc = proc
	}
	return stats
}

func (s *ChatStats) IncrConnectionsOpened() { atomic.AddUint64(&s.connectionsOpened, 1) }
func (s *ChatStats) IncrConnectionsClosed() { atomic.AddUint64(&s.connectionsClosed, 1) }
func (s *ChatStats) IncrRoomsCreated()      { atomic.AddUint64(&s.roomsCreated, 1) }
func (s *ChatStats) IncrMessagesStored()    { atomic.AddUint64(&s.messagesStored, 1) }
func (s *ChatStats) IncrMessagesEdited()    { atomic.AddUint64(&s.messagesEdited, 1) }
func (s *ChatStats) IncrMessagesDeleted()   { atomic.AddUint64(&s.messagesDeleted, 1) }
func (s *ChatStats) IncrDeliveries()        { atomic.AddUint64(&s.deliveries, 1) }
func (s *ChatStats) IncrDroppedDeliveries() { atomic.AddUint64(&s.droppedDeliveries, 1) }
func (s *ChatStats) IncrStoreFailures()     { atomic.AddUint64(&s.storeFailures, 1) }

func (s *ChatStats) GetLatest() Snapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	snapshot := Snapshot{
		UptimeSeconds:     int64(time.Since(s.startedAt).Seconds()),
		ActiveConnections: int64(atomic.LoadUint64(&s.connectionsOpened)) - int64(atomic.LoadUint64(&s.connectionsClosed)),
		RoomsCreated:      atomic.LoadUint64(&s.roomsCreated),
		MessagesStored:    atomic.LoadUint64(&s.messagesStored),
		MessagesEdited:    atomic.LoadUint64(&s.messagesEdited),
		MessagesDeleted:   atomic.LoadUint64(&s.messagesDeleted),
		Deliveries:        atomic.LoadUint64(&s.deliveries),
		DroppedDeliveries: atomic.LoadUint64(&s.droppedDeliveries),
		StoreFailures:     atomic.LoadUint64(&s.storeFailures),
		Goroutines:        runtime.NumGoroutine(),
		AllocMemMb:        m.Alloc / 1024 / 1024,
		NumGC:             m.NumGC,
	}

	if s.proc != nil {
		if cpu, err := s.proc.CPUPercent(); err == nil {
			snapshot.CPUPercent = cpu
		}
		if mem, err := s.proc.MemoryInfo(); err == nil {
			snapshot.RSSBytes = mem.RSS
		}
	}
	return snapshot
}

// Provider feeds the badger debug server dashboard.
func (s *ChatStats) Provider() map[string]any {
	snapshot := s.GetLatest()
	return map[string]any{
		"Uptime":      (time.Duration(snapshot.UptimeSeconds) * time.Second).String(),
		"Connections": snapshot.ActiveConnections,
		"Rooms":       snapshot.RoomsCreated,
		"Messages":    snapshot.MessagesStored,
		"Deliveries":  snapshot.Deliveries,
		"Dropped":     snapshot.DroppedDeliveries,
		"Goroutines":  snapshot.Goroutines,
	}
}
