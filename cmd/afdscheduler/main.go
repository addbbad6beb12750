// afdscheduler is the delivery daemon: it watches the staging queue,
// dispatches Send Workers for eligible directories, rotates the output
// log, and serves the operator-facing query/resend HTTP API plus a
// Prometheus projection of the Host Status Array.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/hfs/afd-sub007/internal/api"
	"github.com/hfs/afd-sub007/internal/config"
	"github.com/hfs/afd-sub007/internal/fifo"
	"github.com/hfs/afd-sub007/internal/hsa"
	"github.com/hfs/afd-sub007/internal/jobid"
	"github.com/hfs/afd-sub007/internal/logging"
	"github.com/hfs/afd-sub007/internal/logstore"
	"github.com/hfs/afd-sub007/internal/metrics"
	"github.com/hfs/afd-sub007/internal/perm"
	"github.com/hfs/afd-sub007/internal/scheduler"
)

// maxLogSize triggers output-log rotation on the tick that first sees
// the current file at or above it.
const maxLogSize = 32 << 20

var (
	cfgFile   string
	quiet     bool
	slotCount int
)

func main() {
	cmd := &cobra.Command{
		Use:   "afdscheduler",
		Short: "Run the AFD delivery scheduler and query API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is resolved from AFD_HOME)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Run in quiet mode")
	cmd.Flags().IntVar(&slotCount, "slots", 16, "host status array slots to create if missing")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	opts := []logging.Option{logging.WithFormat(cfg.LogFormat)}
	if cfg.Debug {
		opts = append(opts, logging.WithDebug())
	}
	if quiet {
		opts = append(opts, logging.WithQuiet())
	}
	logger := logging.NewLogger(opts...)

	for _, dir := range []string{cfg.QueueDir(), cfg.FifoDir(), cfg.ArchiveDir, cfg.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	for _, path := range []string{cfg.FinFifo(), cfg.WakeupFifo(), cfg.TransferLogFifo()} {
		if err := fifo.Ensure(path); err != nil {
			return err
		}
	}

	if _, err := os.Stat(cfg.HostStatusFile); os.IsNotExist(err) {
		if err := hsa.Create(cfg.HostStatusFile, slotCount); err != nil {
			return err
		}
	}
	array, err := hsa.Open(cfg.HostStatusFile)
	if err != nil {
		return err
	}
	defer array.Close()

	jobs, err := jobid.Open(cfg.JobIDMapFile, cfg.DirectoryMapFile)
	if err != nil {
		logger.Warnf("job identity map unavailable, jobs run without time windows: %v", err)
		jobs = nil
	} else {
		defer jobs.Close()
	}

	store := logstore.NewStore(cfg.WorkDir(), logstore.DefaultMaxLogFiles)

	sched := &scheduler.Scheduler{
		QueueRoot:  cfg.QueueDir(),
		WakeupFifo: cfg.WakeupFifo(),
		Jobs:       jobs,
		Launcher: &workerLauncher{
			binary: "afdsendscp",
			logger: logger,
		},
		Logger:     logger,
		Tick:       cfg.SchedulerTickInterval,
		Store:      store,
		MaxLogSize: maxLogSize,
	}

	server := api.NewServer(store, jobs, cfg.ArchiveDir, cfg.QueueDir(),
		cfg.WakeupFifo(), perm.All(), logger)
	server.CORSOrigins = cfg.APICORSOrigins
	server.HSA = array

	registry := prometheus.NewRegistry()
	if err := registry.Register(metrics.NewCollector(array)); err != nil {
		return err
	}

	mux := server.Routes()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	httpServer := &http.Server{Addr: cfg.APIAddr, Handler: mux}
	go func() {
		logger.Info("query/resend API listening", "addr", cfg.APIAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("api server failed: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("scheduler starting",
		"queue", cfg.QueueDir(),
		"tick", sched.Tick.String())
	return sched.Start(ctx)
}

// workerLauncher spawns one afdsendscp process per dispatched staging
// directory, matching the one-worker-per-(job, slot) process model.
type workerLauncher struct {
	binary string
	logger logging.Logger
}

func (l *workerLauncher) Launch(ctx context.Context, job scheduler.StagingJob) error {
	cmd := exec.CommandContext(ctx, l.binary,
		"--job-id", strconv.FormatUint(job.JobID, 10),
		"--priority", strconv.Itoa(int(job.Priority)),
		job.Dir,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	l.logger.Debug("launching send worker", "job_id", job.JobID, "dir", job.Dir)
	return cmd.Run()
}
