// Package ingest runs the streaming ingestion pipeline: records from a
// feed source are decoded, grouped into sessions, and applied to the state
// store one at a time. Processing is strictly sequential; the blocking
// network read is the only suspension point, so the socket's receive
// buffer provides backpressure instead of an in-process queue.
package ingest

import (
	"context"
	"log"
	"sync"
	"time"

	"sbs_tracker/internal/feed"
	"sbs_tracker/internal/sbs"
	"sbs_tracker/internal/session"
	"sbs_tracker/internal/store"
)

// defaultArchiveBatch is how many records accumulate before an archive
// flush when no batch size is configured.
const defaultArchiveBatch = 64

// defaultFlushInterval is how often the background flusher empties a
// partially filled batch so a quiet feed does not hold records back
// indefinitely.
const defaultFlushInterval = 5 * time.Second

// Source delivers framed records until the context is cancelled. Both
// feed.Client and feed.NATSSource satisfy it.
type Source interface {
	Run(ctx context.Context, h feed.Handler) error
}

// Archiver receives batches of decoded records. store.Archive satisfies it.
type Archiver interface {
	InsertBatch(ctx context.Context, records []store.ArchiveRecord) error
}

// Stats counts what the loop has seen. Snapshot with Loop.Stats.
type Stats struct {
	Records      int64 // framed records received
	StateUpdates int64 // MSG records applied to the store
	Discarded    int64 // non-MSG or hex-less records
	Positions    int64 // records that produced a history sample
	StoreErrors  int64 // records dropped on a store failure
}

// Loop orchestrates one ingestion pipeline. Store is required; Sessions
// and Archive are optional layers.
type Loop struct {
	Store    store.Store
	Sessions *session.Tracker
	Archive  Archiver
	LogRaw   bool // also write each record to the store's message log

	ArchiveBatch  int
	FlushInterval time.Duration    // idle-batch flush period; defaults to 5s
	Now           func() time.Time // test hook; defaults to time.Now

	mu         sync.Mutex
	stats      Stats
	archiveBuf []store.ArchiveRecord
	lastFlush  time.Time
}

// Run consumes the source until ctx is done. Decode and store failures
// drop the current record and keep going; transport failures surface to
// the source, which reconnects. A background flusher empties partially
// filled archive batches while the feed is quiet. The returned error is
// always the context's.
func (l *Loop) Run(ctx context.Context, src Source) error {
	stopFlusher := l.startFlusher(ctx)

	err := src.Run(ctx, func(line string) error {
		return l.handle(ctx, line)
	})

	stopFlusher()
	l.flushArchive(context.Background())
	st := l.Stats()
	log.Printf("ingest: stopped (records=%d applied=%d discarded=%d positions=%d store_errors=%d)",
		st.Records, st.StateUpdates, st.Discarded, st.Positions, st.StoreErrors)
	return err
}

// handle processes one framed record end to end.
func (l *Loop) handle(ctx context.Context, line string) error {
	l.count(func(s *Stats) { s.Records++ })

	msg := sbs.Decode(line)
	if !msg.IsStateUpdate() {
		l.count(func(s *Stats) { s.Discarded++ })
		return nil
	}

	received := time.Now()
	if l.Now != nil {
		received = l.Now()
	}
	ts := msg.Timestamp(received)

	rec := store.Record{
		Hex:       msg.Hex,
		Timestamp: ts,
		Update:    msg.Update(),
	}
	if l.Sessions != nil {
		if a, ok := l.Sessions.Assign(msg.Callsign, ts); ok {
			rec.Session = &a
		}
	}
	if l.LogRaw {
		rec.Raw = msg.Raw
	}

	if err := l.Store.ApplyRecord(ctx, rec); err != nil {
		// A single bad write must not stall ingestion: log, drop the
		// record, move on.
		err = StoreError(err)
		l.count(func(s *Stats) { s.StoreErrors++ })
		log.Printf("ingest: dropping record for %s: %v", msg.Hex, err)
		return nil
	}

	l.count(func(s *Stats) {
		s.StateUpdates++
		if rec.Update.Latitude != nil && rec.Update.Longitude != nil {
			s.Positions++
		}
	})

	l.archive(ctx, store.ArchiveRecord{Timestamp: ts, Message: msg})
	return nil
}

// startFlusher runs the idle-batch flusher until the returned stop
// function is called or ctx is done.
func (l *Loop) startFlusher(ctx context.Context) func() {
	if l.Archive == nil {
		return func() {}
	}

	interval := l.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.flushArchive(ctx)
			}
		}
	}()

	return func() {
		close(done)
		wg.Wait()
	}
}

// archive buffers a record for the optional archive, flushing when the
// batch fills; the background flusher covers partially filled batches.
// Archive failures are logged and forgotten; the state store is the
// source of truth.
func (l *Loop) archive(ctx context.Context, rec store.ArchiveRecord) {
	if l.Archive == nil {
		return
	}

	l.mu.Lock()
	l.archiveBuf = append(l.archiveBuf, rec)
	if l.lastFlush.IsZero() {
		l.lastFlush = time.Now()
	}
	batch := l.ArchiveBatch
	if batch <= 0 {
		batch = defaultArchiveBatch
	}
	due := len(l.archiveBuf) >= batch
	l.mu.Unlock()

	if due {
		l.flushArchive(ctx)
	}
}

func (l *Loop) flushArchive(ctx context.Context) {
	if l.Archive == nil {
		return
	}

	l.mu.Lock()
	buf := l.archiveBuf
	l.archiveBuf = nil
	l.lastFlush = time.Now()
	l.mu.Unlock()

	if len(buf) == 0 {
		return
	}
	if err := l.Archive.InsertBatch(ctx, buf); err != nil {
		log.Printf("ingest: archive flush failed, %d records lost: %v", len(buf), err)
	}
}

// Stats returns a snapshot of the loop's counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

func (l *Loop) count(fn func(*Stats)) {
	l.mu.Lock()
	fn(&l.stats)
	l.mu.Unlock()
}
