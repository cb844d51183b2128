// Command exqd runs a worker daemon: it loads configuration, connects
// to Redis, and processes jobs from its configured queues until it
// receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Agiley/exq"
	"github.com/spf13/viper"
)

func main() {
	var configFile string
	flag.StringVar(&configFile, "config", "", "path to a config file (optional)")
	flag.Parse()

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	cfg, err := exq.LoadConfig(v)
	if err != nil {
		log.Fatalf("exqd: loading config: %v", err)
	}

	m := exq.New(cfg)
	registerBuiltinProcessors(m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		log.Fatalf("exqd: starting manager: %v", err)
	}
	log.Printf("exqd: running with queues=%v concurrency=%d namespace=%s", cfg.Queues, cfg.Concurrency, cfg.Namespace)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigc
	log.Printf("exqd: received %v, shutting down", sig)

	if err := m.Close(); err != nil {
		log.Fatalf("exqd: shutdown: %v", err)
	}
	log.Println("exqd: stopped")
}

// registerBuiltinProcessors wires up the classes this daemon binary
// knows how to run. A real deployment replaces this with its own set.
func registerBuiltinProcessors(m *exq.Manager) {
	_ = m.Register("noop", func(ctx context.Context, args []interface{}) error {
		return nil
	})
}
