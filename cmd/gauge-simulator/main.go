// Command gauge-simulator runs a standalone gauge head emulator that speaks
// the binary request/response protocol the daemon polls.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/boxboy523/inzi/internal/gauge"
	"github.com/boxboy523/inzi/internal/log"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5000", "TCP address to listen on")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim := gauge.NewSimulator(*addr, gauge.DefaultLayout())
	if err := sim.Start(ctx); err != nil {
		log.Fatalf("failed to start gauge simulator: %v", err)
	}
	log.Infof("gauge simulator listening on %s", sim.Addr())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("shutting down")
}
