package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/lanemc/swarmmem/memory"
	"github.com/lanemc/swarmmem/observability"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to engine config JSON file (optional)")
		dir        = flag.String("dir", "", "Path to the memory directory (overrides config)")
		dbFile     = flag.String("db", "", "Database filename inside the memory directory (overrides config)")
		mode       = flag.String("mode", "generic", "Operation mode: generic (raw entries) or swarm (coordination records)")
		namespace  = flag.String("namespace", "", "Namespace for generic operations (default \"default\")")
		limit      = flag.Int("limit", 0, "Result limit; 0 for the default page, negative for everything")
		ttl        = flag.Duration("ttl", 0, "Time-to-live applied by generic store; 0 for none")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging to stderr")
		extraObs   = flag.String("observer", "", "Additional observer resolved from the registry by name (\"noop\", \"slog\")")
	)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: swarmmem [flags] <operation> [args]")
		fmt.Fprintln(os.Stderr, "Operations:")
		fmt.Fprintln(os.Stderr, "  generic mode: store <key> <value> | get <key> | list | search <pattern> |")
		fmt.Fprintln(os.Stderr, "                delete <key> | cleanup | stats | backup <path>")
		fmt.Fprintln(os.Stderr, "  swarm mode:   store <kind> <json> | get <id> | list | cleanup | stats |")
		fmt.Fprintln(os.Stderr, "                backup <path> | export <path> | import <path>")
		flag.PrintDefaults()
		os.Exit(1)
	}

	cfg := memory.DefaultConfig()
	if *configFile != "" {
		loaded, err := memory.LoadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = *loaded
	}
	if *dir != "" {
		cfg.Directory = *dir
	}
	if *dbFile != "" {
		cfg.Filename = *dbFile
	}

	var observer observability.Observer = observability.NewTextObserver(os.Stderr, *verbose)
	if *extraObs != "" {
		named, err := observability.GetObserver(*extraObs)
		if err != nil {
			log.Fatalf("Failed to resolve observer: %v", err)
		}
		observer = observability.NewMultiObserver(observer, named)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	op, opArgs := args[0], args[1:]

	var err error
	switch *mode {
	case "generic":
		err = runGeneric(ctx, cfg, observer, op, opArgs, genericFlags{
			namespace: *namespace,
			limit:     *limit,
			ttl:       *ttl,
		})
	case "swarm":
		err = runSwarm(ctx, cfg, observer, op, opArgs, *limit)
	default:
		err = fmt.Errorf("unknown mode %q (want generic or swarm)", *mode)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", op, err)
	}
}
