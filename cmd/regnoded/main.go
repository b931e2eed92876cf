// Command regnoded runs one node of the distributed name registry: a
// registrar, its cluster transport, a persistent peer address book, and a
// read-only admin HTTP surface. Flag parsing and wiring follow the flat,
// flag.String-per-concern style of the teacher's cmd/dplaned/main.go.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"regnode/internal/adminauth"
	"regnode/internal/api"
	"regnode/internal/membership"
	"regnode/internal/registry"
	"regnode/internal/transport/wsconn"
	"regnode/internal/wsevents"
)

const version = "1.0.0"

func main() {
	nodeID := flag.String("node-id", "", "this node's identity (default: a freshly generated UUID, not stable across restarts)")
	listenAddr := flag.String("listen", "127.0.0.1:9100", "listen address for peer connections and the admin HTTP API")
	dbPath := flag.String("db", "/var/lib/regnoded/regnoded.db", "path to the SQLite peer address book")
	seeds := flag.String("seeds", "", "comma-separated node=address pairs to seed the peer address book, e.g. b=ws://10.0.0.2:9100/_registrar")
	redialPeriod := flag.Duration("redial-period", 10*time.Second, "interval between redial attempts for known, disconnected peers")
	ldapServer := flag.String("ldap-server", "", "optional LDAP server to gate the admin API behind (disabled if empty)")
	ldapPort := flag.Int("ldap-port", 389, "LDAP server port")
	ldapBaseDN := flag.String("ldap-base-dn", "", "LDAP base DN for bind, e.g. ou=people,dc=example,dc=com")
	ldapTLS := flag.Bool("ldap-tls", false, "dial the LDAP server over TLS")
	flag.Parse()

	if *nodeID == "" {
		generated := uuid.NewString()
		nodeID = &generated
		log.Printf("regnoded: -node-id not set, generated %s (pass -node-id to keep a stable identity across restarts)", generated)
	}

	db, err := sql.Open("sqlite3", *dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		log.Fatalf("regnoded: open peer address book: %v", err)
	}
	defer db.Close()

	store, err := membership.NewStore(db)
	if err != nil {
		log.Fatalf("regnoded: init peer address book: %v", err)
	}

	cluster := wsconn.New(registry.NodeID(*nodeID), log.Default())

	redialer := membership.NewRedialer(store, cluster, *redialPeriod, log.Default())
	for node, addr := range parseSeeds(*seeds) {
		redialer.AddSeed(node, addr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registrar := registry.New(cluster, log.Default())

	hub := wsevents.NewHub(log.Default())
	registrar.SetObserver(func(kind string, name registry.Name, node registry.NodeID) {
		hub.Publish(kind, string(name), string(node))
	})

	go hub.Run(ctx.Done())
	go redialer.Run(ctx.Done())
	go registrar.Run(ctx)

	authCfg := adminauth.Config{
		Server:  *ldapServer,
		Port:    *ldapPort,
		UseTLS:  *ldapTLS,
		BaseDN:  *ldapBaseDN,
		Timeout: 5 * time.Second,
	}
	auth := adminauth.New(authCfg)
	if authCfg.Enabled() {
		log.Printf("regnoded: admin API gated behind LDAP bind at %s:%d", *ldapServer, *ldapPort)
	}

	adminSrv := api.NewServer(registrar, hub, log.Default())

	mux := http.NewServeMux()
	mux.Handle("/_registrar", cluster)
	mux.Handle("/", auth.Middleware(adminSrv.Router()))

	srv := &http.Server{
		Addr:    *listenAddr,
		Handler: loggingMiddleware(mux),
	}

	go func() {
		log.Printf("regnoded %s: node %q listening on %s", version, *nodeID, *listenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("regnoded: server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("regnoded: shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("regnoded: server shutdown error: %v", err)
	}
	log.Println("regnoded: stopped")
}

// parseSeeds parses "node=address,node=address" into a map. Malformed
// entries are logged and skipped rather than failing startup.
func parseSeeds(s string) map[registry.NodeID]string {
	out := make(map[registry.NodeID]string)
	if s == "" {
		return out
	}
	for _, pair := range strings.Split(s, ",") {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			log.Printf("regnoded: ignoring malformed -seeds entry %q", pair)
			continue
		}
		out[registry.NodeID(kv[0])] = kv[1]
	}
	return out
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}
