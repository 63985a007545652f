package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"cwscore/pkg/config"
	"cwscore/pkg/session"
	"cwscore/pkg/store"
)

var jwtSecret []byte // loaded from env JWT_SECRET (fallback to dev default)

func main() {
	// Auto-load ./.env if present (no external dependency) before reading vars
	loadDotEnv()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-insecure-secret-change" // development fallback
	}
	jwtSecret = []byte(secret)

	// Support a lightweight migrate command: `./cwscore migrate`
	// It runs AutoMigrate and seeding then exits. Useful for CI or manual DB setup.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		initDB()
		fmt.Println("migration and seeding completed")
		return
	}

	initDB()

	cfgPath := os.Getenv("GUILD_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/guilds.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("guild config: %v", err)
	}
	log.Printf("guild config loaded from %s (%d guilds)", cfgPath, len(cfg.GuildIDs()))
	stop := make(chan struct{})
	defer close(stop)
	if err := cfg.Watch(stop); err != nil {
		log.Printf("config watch unavailable: %v", err)
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	st := store.New(dataDir)

	mgr := session.NewManager(cfg, st, dbRoster{}, dbAudit{})
	mgr.Notify = func(ev session.Event) {
		// the chat transport collaborator polls /sessions; out-of-band events only get logged here
		log.Printf("event type=%s guild=%s session=%s operator=%s status=%s",
			ev.Type, ev.GuildID, ev.SessionID, ev.Operator, ev.Status)
	}
	defer mgr.Shutdown()

	r := gin.Default()

	setupRoutes(r, mgr, st)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8082"
	}
	r.Run(addr)
}

// loadDotEnv loads key=value pairs from a local .env file into the environment
// without overwriting variables that are already set. Lines starting with # are ignored.
func loadDotEnv() {
	path := ".env"
	if _, err := os.Stat(path); err != nil {
		return // no .env file
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// split on first '='
		if eq := strings.IndexByte(line, '='); eq > 0 {
			key := strings.TrimSpace(line[:eq])
			val := strings.TrimSpace(line[eq+1:])
			if _, exists := os.LookupEnv(key); !exists {
				_ = os.Setenv(key, val)
			}
		}
	}
}
