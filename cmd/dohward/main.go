package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/asgrim/dohward/internal/adminapi"
	"github.com/asgrim/dohward/internal/cache"
	"github.com/asgrim/dohward/internal/config"
	"github.com/asgrim/dohward/internal/filter"
	"github.com/asgrim/dohward/internal/logging"
	"github.com/asgrim/dohward/internal/pipeline"
	"github.com/asgrim/dohward/internal/resolver"
)

// adminAPIHost and adminAPIPort are the fixed loopback admin surface address. The
// documented config schema has no field for it, so it is not
// configurable — only the DNS bind address varies with config.
const adminAPIHost = "127.0.0.1"
const adminAPIPort = 8080

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	debug         bool
	configuration string
}

func parseFlags() cliFlags {
	var f cliFlags
	flagSet(&f)
	return f
}

func flagSet(f *cliFlags) {
	fs := os.Args[1:]
	f.configuration = "./config.toml"
	for i := 0; i < len(fs); i++ {
		switch fs[i] {
		case "--debug":
			f.debug = true
		case "--configuration":
			if i+1 < len(fs) {
				f.configuration = fs[i+1]
				i++
			}
		}
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(flags.configuration)
	if err != nil {
		return fmt.Errorf("fatal-init: loading config: %w", err)
	}

	verbosity := cfg.Snapshot().Verbosity
	if flags.debug {
		verbosity = "DEBUG"
	}
	logger := logging.Configure(logging.Config{Level: verbosity, Structured: true, StructuredFormat: "json"})

	addr := bindAddress(flags.debug, cfg.Snapshot().External)
	logger.Info("dohward starting", "addr", addr, "configuration", flags.configuration)

	conn, err := pipeline.ListenReusePort(addr)
	if err != nil {
		return fmt.Errorf("fatal-init: binding %s: %w", addr, err)
	}
	defer conn.Close()

	snap := cfg.Snapshot()
	filterClient := filter.NewClient(0)
	liveFilter := bootFilter(logger, filterClient, snap.FiltersPath, filter.Version(snap.FilterVersion), pipeline.Representation(snap.Small))

	mgr := resolver.NewManager(resolver.DefaultResolvers(), time.Now().UnixNano())
	dohClient := resolver.NewClient(nil)
	c := cache.New(cache.Capacity)

	p := pipeline.New(conn, cfg, c, liveFilter, mgr, dohClient, filterClient, filter.Version(snap.FilterVersion), logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go p.Listen(ctx)
	go p.Respond(ctx)
	go p.RunFilterUpdater(ctx)
	go p.RunFilterUpdaterTicker(ctx)

	adminSrv := adminapi.New(adminAPIHost, adminAPIPort, snap.WebPassword, logger, adminapi.Dependencies{
		Config:       cfg,
		Cache:        c,
		LiveFilter:   p.CurrentFilter,
		Instrumented: p.Instrumented,
		Pipeline:     p,
	})
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("admin api server error", "error", err)
		}
	}()
	logger.Info("admin api listening", "addr", adminSrv.Addr())

	<-ctx.Done()
	logger.Info("shutting down")
	cfg.SetServerClosing(true)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	_ = adminSrv.Shutdown(shutdownCtx)
	shutdownCancel()

	time.Sleep(200 * time.Millisecond) // let in-flight query tasks reach the responder
	return nil
}

// bindAddress follows the documented rule: debug always wins with the
// loopback debug port; otherwise external selects the wildcard address,
// and the default is loopback on the standard DNS port.
func bindAddress(debug, external bool) string {
	switch {
	case debug:
		return "127.0.0.1:5553"
	case external:
		return net.JoinHostPort("0.0.0.0", "53")
	default:
		return "127.0.0.1:53"
	}
}

// bootFilter tries the on-disk cached copy for version, falling back to
// an internet fetch, and finally an empty filter so the process can
// still start per the documented filter-load error taxonomy.
func bootFilter(logger *slog.Logger, client *filter.Client, filtersPath string, version filter.Version, rep filter.Representation) *filter.Filter {
	path := filepath.Join(filtersPath, version.DiskFilename())
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		if loaded, err := filter.Load(f, rep); err == nil {
			loaded.SetBuiltAt(time.Now().Unix())
			logger.Info("filter loaded from disk", "path", path, "size", loaded.Size())
			return loaded
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if fresh, err := client.FromInternet(ctx, version, rep); err == nil {
		fresh.SetBuiltAt(time.Now().Unix())
		logger.Info("filter loaded from internet", "version", version, "size", fresh.Size())
		return fresh
	} else {
		logger.Warn("filter load failed, starting with empty filter", "error", err)
	}

	empty, _ := filter.LoadNames(nil, rep)
	empty.SetBuiltAt(time.Now().Unix())
	return empty
}
