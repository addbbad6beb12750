// afdsendscp is the SCP Send Worker binary: a one-shot process that
// drains one staging directory to one remote host and exits with one
// of the stable delivery status codes. It is normally launched by
// afdscheduler, but can be run by hand for diagnosis.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hfs/afd-sub007/internal/archivemirror"
	"github.com/hfs/afd-sub007/internal/config"
	"github.com/hfs/afd-sub007/internal/dupcheck"
	"github.com/hfs/afd-sub007/internal/fifo"
	"github.com/hfs/afd-sub007/internal/hsa"
	"github.com/hfs/afd-sub007/internal/jobid"
	"github.com/hfs/afd-sub007/internal/logging"
	"github.com/hfs/afd-sub007/internal/logstore"
	"github.com/hfs/afd-sub007/internal/transport"
	"github.com/hfs/afd-sub007/internal/worker"
)

var (
	cfgFile string
	quiet   bool

	jobID       uint64
	hostAlias   string
	hostSlot    int
	destHost    string
	destPort    int
	destDir     string
	destUser    string
	credential  string
	protocol    string
	priority    int
	blockSize   int
	ageLimit    time.Duration
	archiveTime time.Duration
	timeout     time.Duration
	wmoHeader   bool
)

func main() {
	cmd := &cobra.Command{
		Use:   "afdsendscp [flags] <staging-dir>",
		Short: "Deliver one staging directory over SCP/SFTP",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(int(run(args[0])))
		},
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (default is resolved from AFD_HOME)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Run in quiet mode")
	cmd.Flags().Uint64Var(&jobID, "job-id", 0, "job identifier of this batch")
	cmd.Flags().StringVar(&hostAlias, "host", "", "host alias for logging and the status array")
	cmd.Flags().IntVar(&hostSlot, "slot", 0, "host status array slot index")
	cmd.Flags().StringVar(&destHost, "dest-host", "", "remote hostname")
	cmd.Flags().IntVar(&destPort, "dest-port", 22, "remote port")
	cmd.Flags().StringVar(&destDir, "dest-dir", "", "remote target directory")
	cmd.Flags().StringVar(&destUser, "dest-user", "", "remote user")
	cmd.Flags().StringVar(&credential, "credential", "", "composite credential (<i>identity</i><p>password</p> or bare password)")
	cmd.Flags().StringVar(&protocol, "protocol", "sftp", "transport driver: scp or sftp")
	cmd.Flags().IntVar(&priority, "priority", int(worker.NoPriority), "job priority digit")
	cmd.Flags().IntVar(&blockSize, "block-size", 0, "transfer block size in bytes")
	cmd.Flags().DurationVar(&ageLimit, "age-limit", 0, "drop staged files older than this")
	cmd.Flags().DurationVar(&archiveTime, "archive-time", 0, "retain delivered files in the archive for this long")
	cmd.Flags().DurationVar(&timeout, "transfer-timeout", 60*time.Second, "per-call transport timeout")
	cmd.Flags().BoolVar(&wmoHeader, "wmo-header", false, "synthesize a WMO header from each filename")

	if err := cmd.Execute(); err != nil {
		os.Exit(int(worker.AllocError))
	}
}

func run(stagingDir string) worker.ExitCode {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		logging.NewLogger().Errorf("configuration load failed: %v", err)
		return worker.AllocError
	}

	opts := []logging.Option{logging.WithFormat(cfg.LogFormat)}
	if cfg.Debug {
		opts = append(opts, logging.WithDebug())
	}
	if quiet {
		opts = append(opts, logging.WithQuiet())
	}
	logger := logging.NewLogger(opts...)

	// Exit status is reported on sf_fin whatever happens from here on.
	defer func() {
		if err := fifo.PostPID(cfg.FinFifo(), os.Getpid()); err != nil {
			logger.Warnf("failed to post pid to sf_fin: %v", err)
		}
	}()

	array, err := hsa.Open(cfg.HostStatusFile)
	if err != nil {
		logger.Errorf("cannot attach host status array: %v", err)
		return worker.AllocError
	}
	defer array.Close()

	jobs, err := jobid.Open(cfg.JobIDMapFile, cfg.DirectoryMapFile)
	if err != nil {
		logger.Warnf("job identity map unavailable, continuing without it: %v", err)
		jobs = nil
	} else {
		defer jobs.Close()
	}

	// When launched by the scheduler only job-id and priority are on
	// the command line; everything else comes from the job's recorded
	// identity.
	if destHost == "" && jobs != nil {
		if ident, ok := jobs.Get(jobID); ok {
			destHost = ident.Recipient.Host
			destDir = ident.Recipient.Path
			destUser = ident.Recipient.User
			if credential == "" {
				credential = ident.Recipient.Password
			}
			if hostAlias == "" {
				hostAlias = ident.Recipient.Host
			}
			if p, err := strconv.Atoi(ident.Recipient.Port); err == nil {
				destPort = p
			}
			for _, opt := range append(ident.LocalOptions, ident.SendOptions...) {
				switch opt.Kind {
				case jobid.OptionArchive:
					if hours, err := strconv.Atoi(opt.Arg); err == nil {
						archiveTime = time.Duration(hours) * time.Hour
					}
				case jobid.OptionAgeLimit:
					if secs, err := strconv.Atoi(opt.Arg); err == nil {
						ageLimit = time.Duration(secs) * time.Second
					}
				}
			}
		}
	}

	var driver transport.Driver
	switch protocol {
	case "scp":
		driver = transport.NewSCPDriver(2)
	default:
		driver = transport.NewSFTPDriver(2)
	}

	w := worker.New(worker.Descriptor{
		JobID:        jobID,
		HostAlias:    hostAlias,
		HostSlot:     hostSlot,
		Credentials:  transport.Credentials{User: destUser, Password: credential},
		Destination:  destDir,
		AgeLimit:     ageLimit,
		ArchiveTime:  archiveTime,
		HeaderFlag:   wmoHeader,
		BlockSize:    blockSize,
		Priority:     byte(priority),
	}, driver, transport.Config{
		Host:            destHost,
		Port:            destPort,
		Directory:       destDir,
		TransferTimeout: timeout,
	})
	w.HSA = array
	w.Store = logstore.NewStore(cfg.WorkDir(), logstore.DefaultMaxLogFiles)
	w.Directories = jobs
	w.ArchiveRoot = cfg.ArchiveDir
	w.Logger = logger
	w.WakeupFifo = cfg.WakeupFifo()
	w.TransferLog = fifo.NewTransferLog(cfg.TransferLogFifo())

	if cfg.RedisAddr != "" {
		cache := dupcheck.NewRedisCache(cfg.RedisAddr)
		defer cache.Close()
		w.DupCache = cache
	} else {
		w.DupCache = dupcheck.NewInProcessCache()
	}

	if cfg.ArchiveMirror.Enabled {
		mirror, err := archivemirror.New(archivemirror.Config{
			Endpoint:        cfg.ArchiveMirror.Endpoint,
			Bucket:          cfg.ArchiveMirror.Bucket,
			AccessKeyID:     cfg.ArchiveMirror.AccessKeyID,
			SecretAccessKey: cfg.ArchiveMirror.SecretAccessKey,
			UseSSL:          cfg.ArchiveMirror.UseSSL,
		})
		if err != nil {
			logger.Warnf("archive mirror disabled: %v", err)
		} else {
			w.Mirror = mirror
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var killed atomic.Bool
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		logger.Warnf("received %v, shutting down", sig)
		killed.Store(true)
		cancel()
	}()

	code, err := w.Run(ctx, stagingDir)
	if killed.Load() {
		code = worker.GotKilled
	}
	if err != nil {
		logger.Errorf("delivery failed: %s: %v", code, err)
	}
	return code
}
