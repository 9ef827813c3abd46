// Command-line entry point for the SBS aircraft tracker.
//
// The tracker ingests a BaseStation-style text feed (dump1090 and friends
// publish one on TCP port 30003), maintains the latest known state of
// every aircraft plus an append-only position history, and serves the
// result over a small read-only HTTP API.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sbs_tracker/internal/api"
	"sbs_tracker/internal/feed"
	"sbs_tracker/internal/ingest"
	"sbs_tracker/internal/session"
	"sbs_tracker/internal/store"
)

func usage(w io.Writer) {
	fmt.Fprintln(w, "sbs_tracker - commands:")
	fmt.Fprintln(w, "  ingest  - connect to a receiver feed and maintain the state store")
	fmt.Fprintln(w, "  api     - serve the read-only query API over a state store")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  sbs_tracker ingest [-host 127.0.0.1] [-port 30003] [-db flights.db] ...")
	fmt.Fprintln(w, "  sbs_tracker api [-db flights.db] [-listen :8000]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'sbs_tracker <command> -h' for command flags.")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "ingest":
		runIngest(os.Args[2:])
	case "api":
		runAPI(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)

	host := fs.String("host", "127.0.0.1", "Receiver host")
	port := fs.Int("port", 30003, "Receiver BaseStation output port")
	natsURL := fs.String("nats", "", "Ingest from a NATS subject instead of TCP (URL)")
	natsSubject := fs.String("subject", "sbs.feed", "NATS subject carrying feed records")

	pgDefaults := store.DefaultPostgresConfig()
	dbPath := fs.String("db", "flights.db", "SQLite database path")
	pgFlag := fs.Bool("postgres", false, "Use PostgreSQL instead of SQLite")
	pgHost := fs.String("pg-host", pgDefaults.Host, "PostgreSQL host")
	pgPort := fs.Int("pg-port", pgDefaults.Port, "PostgreSQL port")
	pgDB := fs.String("pg-db", pgDefaults.Database, "PostgreSQL database")
	pgUser := fs.String("pg-user", pgDefaults.User, "PostgreSQL user")
	pgPass := fs.String("pg-pass", pgDefaults.Password, "PostgreSQL password")

	chDefaults := store.DefaultClickHouseConfig()
	chFlag := fs.Bool("clickhouse", false, "Also archive records to ClickHouse")
	chHost := fs.String("ch-host", chDefaults.Host, "ClickHouse host")
	chPort := fs.Int("ch-port", chDefaults.Port, "ClickHouse port")
	chDB := fs.String("ch-db", chDefaults.Database, "ClickHouse database")
	chUser := fs.String("ch-user", chDefaults.User, "ClickHouse user")
	chPass := fs.String("ch-pass", chDefaults.Password, "ClickHouse password")

	sessionTimeout := fs.Duration("session-timeout", session.DefaultTimeout, "Quiet period that splits flight sessions (0 disables grouping)")
	reconnectDelay := fs.Duration("reconnect-delay", 3*time.Second, "Base delay between reconnect attempts")
	backoffMax := fs.Duration("reconnect-max", 0, "Cap for exponential backoff (0 keeps the delay fixed)")
	logRaw := fs.Bool("log-messages", false, "Keep a raw message log in the state store")

	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var st store.Store
	var err error
	if *pgFlag {
		st, err = store.OpenPostgres(ctx, store.PostgresConfig{
			Host: *pgHost, Port: *pgPort, Database: *pgDB, User: *pgUser, Password: *pgPass,
		})
	} else {
		st, err = store.OpenSQLite(*dbPath)
	}
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer func() { _ = st.Close() }()

	var archive *store.Archive
	if *chFlag {
		archive, err = store.OpenArchive(ctx, store.ClickHouseConfig{
			Host: *chHost, Port: *chPort, Database: *chDB, User: *chUser, Password: *chPass,
		})
		if err != nil {
			log.Fatalf("open archive: %v", err)
		}
		defer func() { _ = archive.Close() }()
	}

	var sessions *session.Tracker
	if *sessionTimeout > 0 {
		maxID, err := st.MaxSessionID(ctx)
		if err != nil {
			log.Fatalf("seed session ids: %v", err)
		}
		sessions = session.New(*sessionTimeout, maxID+1)
	}

	policy := feed.ReconnectPolicy{Delay: *reconnectDelay}
	if *backoffMax > 0 {
		policy.Max = *backoffMax
		policy.Multiplier = 2
	}

	var src ingest.Source
	if *natsURL != "" {
		src = &feed.NATSSource{URL: *natsURL, Subject: *natsSubject, Policy: policy}
	} else {
		src = &feed.Client{
			Addr:        fmt.Sprintf("%s:%d", *host, *port),
			Policy:      policy,
			DialTimeout: 10 * time.Second,
		}
	}

	loop := &ingest.Loop{
		Store:    st,
		Sessions: sessions,
		LogRaw:   *logRaw,
	}
	if archive != nil {
		loop.Archive = archive
	}

	if err := loop.Run(ctx, src); err != nil && err != context.Canceled {
		log.Printf("ingest: %v", err)
	}
}

func runAPI(args []string) {
	fs := flag.NewFlagSet("api", flag.ExitOnError)

	pgDefaults := store.DefaultPostgresConfig()
	dbPath := fs.String("db", "flights.db", "SQLite database path")
	pgFlag := fs.Bool("postgres", false, "Use PostgreSQL instead of SQLite")
	pgHost := fs.String("pg-host", pgDefaults.Host, "PostgreSQL host")
	pgPort := fs.Int("pg-port", pgDefaults.Port, "PostgreSQL port")
	pgDB := fs.String("pg-db", pgDefaults.Database, "PostgreSQL database")
	pgUser := fs.String("pg-user", pgDefaults.User, "PostgreSQL user")
	pgPass := fs.String("pg-pass", pgDefaults.Password, "PostgreSQL password")
	listen := fs.String("listen", ":8000", "Listen address")

	_ = fs.Parse(args)

	ctx := context.Background()

	var st store.Store
	var err error
	if *pgFlag {
		st, err = store.OpenPostgres(ctx, store.PostgresConfig{
			Host: *pgHost, Port: *pgPort, Database: *pgDB, User: *pgUser, Password: *pgPass,
		})
	} else {
		st, err = store.OpenSQLite(*dbPath)
	}
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer func() { _ = st.Close() }()

	srv := api.NewServer(st, *listen)
	if err := srv.Run(); err != nil {
		log.Fatalf("api: %v", err)
	}
}
