// afdshow is the operator console for the output log: it queries
// delivered-file records by time window and filters, and resends
// selections either back through the live queue or directly to an
// operator-supplied destination.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/hfs/afd-sub007/internal/config"
	"github.com/hfs/afd-sub007/internal/fifo"
	"github.com/hfs/afd-sub007/internal/hsa"
	"github.com/hfs/afd-sub007/internal/jobid"
	"github.com/hfs/afd-sub007/internal/logging"
	"github.com/hfs/afd-sub007/internal/logstore"
	"github.com/hfs/afd-sub007/internal/perm"
	"github.com/hfs/afd-sub007/internal/resend"
	"github.com/hfs/afd-sub007/internal/schedtime"
	"github.com/hfs/afd-sub007/internal/transport"
)

var (
	workDir     string
	font        string
	beginRaw    string
	endRaw      string
	filePattern string
	sizeRaw     string
	protocols   string
	dirPattern  string
	userPattern string
	showRemote  bool
	listLimit   int
	permTokens  []string
)

func main() {
	root := &cobra.Command{
		Use:   "afdshow [flags] [host ...]",
		Short: "Query the output log and resend archived deliveries",
		Long: `afdshow [-w workdir] [-f font] [host1 host2 ...]

Positional hostnames prepopulate the recipient filter; each is treated
as a prefix and auto-wildcarded when shorter than the maximum host
alias length.`,
		RunE: runQuery,
	}

	root.PersistentFlags().StringVarP(&workDir, "workdir", "w", "", "AFD work directory (default is resolved from AFD_HOME)")
	root.PersistentFlags().StringVarP(&font, "font", "f", "", "display font (accepted for compatibility, unused)")
	root.PersistentFlags().StringSliceVar(&permTokens, "permissions", []string{"all"}, "resolved operator permission tokens")

	root.Flags().StringVar(&beginRaw, "begin", "", "window start ([MM[DD]]hhmm, or -hhmm relative; empty means now)")
	root.Flags().StringVar(&endRaw, "end", "", "window end (same forms as --begin)")
	root.Flags().StringVar(&filePattern, "file", "", "filename pattern")
	root.Flags().StringVar(&sizeRaw, "size", "", "size filter: =N, <N or >N")
	root.Flags().StringVar(&protocols, "protocols", "", "comma-separated protocol names (ftp,smtp,loc,scp,wmo,map)")
	root.Flags().StringVar(&dirPattern, "directory", "", "source directory pattern")
	root.Flags().StringVar(&userPattern, "user", "", "recipient user pattern")
	root.Flags().BoolVar(&showRemote, "remote", false, "display remote filenames where logged")
	root.Flags().IntVar(&listLimit, "limit", 0, "stop after this many records (0 = operator's list limit)")

	root.AddCommand(resendCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadEnvironment() (*config.Config, perm.Permissions, error) {
	if workDir != "" {
		os.Setenv("AFD_HOME", workDir)
	}
	cfg, err := config.Load("")
	if err != nil {
		return nil, perm.Permissions{}, err
	}
	if _, err := os.Stat(cfg.WorkDir()); err != nil {
		return nil, perm.Permissions{}, fmt.Errorf("working directory %s: %w", cfg.WorkDir(), err)
	}
	perms, err := perm.Parse(permTokens)
	if err != nil {
		return nil, perm.Permissions{}, err
	}
	return cfg, perms, nil
}

// recipientPattern builds the recipient filter from positional host
// arguments: each is a prefix, auto-wildcarded when shorter than the
// host alias width.
func recipientPattern(hosts []string) string {
	if len(hosts) == 0 {
		return ""
	}
	patterns := make([]string, len(hosts))
	for i, h := range hosts {
		if len(h) < logstore.HostAliasWidth {
			h += "*"
		}
		patterns[i] = h
	}
	if len(patterns) == 1 {
		return patterns[0]
	}
	return "{" + strings.Join(patterns, ",") + "}"
}

// window evaluates the operator's begin/end strings. Both empty means
// "the last 24 hours up to now".
func window(now time.Time) (start, end int64, err error) {
	if beginRaw == "" && endRaw == "" {
		return now.Add(-24 * time.Hour).Unix(), now.Unix(), nil
	}
	startT, err := schedtime.Evaluate(beginRaw, now)
	if err != nil {
		return 0, 0, fmt.Errorf("begin time: %w", err)
	}
	endT, err := schedtime.Evaluate(endRaw, now)
	if err != nil {
		return 0, 0, fmt.Errorf("end time: %w", err)
	}
	return startT.Unix(), endT.Unix(), nil
}

func buildQuery(cfg *config.Config, perms perm.Permissions, hosts []string) (logstore.Query, *jobid.Map, error) {
	start, end, err := window(time.Now().UTC())
	if err != nil {
		return logstore.Query{}, nil, err
	}

	q := logstore.Query{
		StartTime:         start,
		EndTime:           end,
		RecipientPattern:  recipientPattern(hosts),
		FilenamePattern:   filePattern,
		DirectoryPattern:  dirPattern,
		UserPattern:       userPattern,
		DisplayRemoteName: showRemote,
		ListLimit:         listLimit,
	}
	if q.ListLimit == 0 && perms.ListLimit != perm.NoLimit {
		q.ListLimit = perms.ListLimit
	}

	if sizeRaw != "" {
		f, err := logstore.ParseSizeFilter(sizeRaw)
		if err != nil {
			return logstore.Query{}, nil, err
		}
		q.SizeFilter = &f
	}
	if protocols != "" {
		mask, err := logstore.ParseProtocolMask(protocols)
		if err != nil {
			return logstore.Query{}, nil, err
		}
		q.ProtocolMask = mask
	}

	var jobs *jobid.Map
	if q.DirectoryPattern != "" || q.UserPattern != "" {
		jobs, err = jobid.Open(cfg.JobIDMapFile, cfg.DirectoryMapFile)
		if err != nil {
			return logstore.Query{}, nil, fmt.Errorf("directory/user filters need the job identity map: %w", err)
		}
		q.Lookup = jobs
	}
	return q, jobs, nil
}

func runQuery(cmd *cobra.Command, hosts []string) error {
	cfg, perms, err := loadEnvironment()
	if err != nil {
		return err
	}

	q, jobs, err := buildQuery(cfg, perms, hosts)
	if err != nil {
		return err
	}
	if jobs != nil {
		defer jobs.Close()
	}

	store := logstore.NewStore(cfg.WorkDir(), logstore.DefaultMaxLogFiles)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Time", "Host", "Proto", "Filename", "Size", "Duration", "Job", "A", "Selection"})

	count := 0
	summary, msg, err := store.Query(q, func(r logstore.EmittedRecord) bool {
		archived := ""
		if r.Archived {
			archived = "Y"
		}
		t.AppendRow(table.Row{
			time.Unix(r.Timestamp, 0).UTC().Format("01.02. 15:04:05"),
			r.HostAlias,
			r.Protocol.String(),
			r.DisplayFilename,
			r.FileSize,
			fmt.Sprintf("%.2f", r.Duration),
			r.JobID,
			archived,
			fmt.Sprintf("%d:%d", r.LogFileIndex, r.LineOffset),
		})
		count++
		return true
	})
	if err != nil {
		return err
	}

	if count == 0 {
		fmt.Println("No data found.")
		return nil
	}

	t.Render()
	fmt.Printf("%d record(s), %d bytes, %.2fs transfer time, %s .. %s\n",
		summary.Count, summary.Bytes, summary.Duration,
		time.Unix(summary.FirstTS, 0).UTC().Format(time.RFC3339),
		time.Unix(summary.LastTS, 0).UTC().Format(time.RFC3339))
	if msg != "" {
		fmt.Println(msg)
	}
	return nil
}

var (
	direct     bool
	destHost   string
	destPort   int
	destUser   string
	destDir    string
	identity   string
)

func resendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resend [flags] <index:offset> [...]",
		Short: "Resend archived deliveries from query selections",
		Long: `Selections are <log-file-index>:<line-offset> pairs as printed in the
query output's Selection column. By default files are reinjected into
the live queue for the original job; with --direct an in-process send
worker delivers them to the given destination.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runResend,
	}
	cmd.Flags().BoolVar(&direct, "direct", false, "send directly instead of reinjecting")
	cmd.Flags().StringVar(&destHost, "dest-host", "", "destination host (direct mode)")
	cmd.Flags().IntVar(&destPort, "dest-port", 22, "destination port (direct mode)")
	cmd.Flags().StringVar(&destUser, "dest-user", "", "destination user (direct mode)")
	cmd.Flags().StringVar(&destDir, "dest-dir", "", "destination directory (direct mode)")
	cmd.Flags().StringVar(&identity, "identity", "", "ssh identity file (direct mode)")
	return cmd
}

func parseSelections(args []string) ([]resend.Selection, error) {
	out := make([]resend.Selection, len(args))
	for i, arg := range args {
		idxRaw, offRaw, found := strings.Cut(arg, ":")
		if !found {
			return nil, fmt.Errorf("invalid selection %q (want index:offset)", arg)
		}
		idx, err := strconv.Atoi(idxRaw)
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q: %w", arg, err)
		}
		off, err := strconv.ParseInt(offRaw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q: %w", arg, err)
		}
		out[i] = resend.Selection{LogFileIndex: idx, LineOffset: off}
	}
	return out, nil
}

func runResend(cmd *cobra.Command, args []string) error {
	cfg, perms, err := loadEnvironment()
	if err != nil {
		return err
	}
	selections, err := parseSelections(args)
	if err != nil {
		return err
	}

	logger := logging.NewLogger()
	store := logstore.NewStore(cfg.WorkDir(), logstore.DefaultMaxLogFiles)
	pipeline := resend.NewPipeline(&resend.ArchiveReader{
		Store:       store,
		ArchiveRoot: cfg.ArchiveDir,
	}, perms)

	jobs, err := jobid.Open(cfg.JobIDMapFile, cfg.DirectoryMapFile)
	if err != nil {
		jobs = nil
	} else {
		defer jobs.Close()
	}

	var entries []*resend.Entry
	var summary resend.Summary

	if direct {
		if destHost == "" {
			return fmt.Errorf("--direct requires --dest-host")
		}
		password, err := promptPassword(os.Stdin, os.Stdout)
		if err != nil {
			return err
		}
		credential := password
		if identity != "" {
			credential = "<i>" + identity + "</i><p>" + password + "</p>"
		}

		array, err := hsa.Open(cfg.HostStatusFile)
		if err != nil {
			return fmt.Errorf("cannot attach host status array: %w", err)
		}
		defer array.Close()

		entries, summary, err = pipeline.DirectSend(context.Background(), selections, &resend.DirectSender{
			ArchiveRoot: cfg.ArchiveDir,
			HSA:         array,
			Logger:      logger,
		}, resend.Destination{
			Host:       destHost,
			Port:       destPort,
			User:       destUser,
			Credential: credential,
			Directory:  destDir,
			Transport:  transport.Config{TransferTimeout: 60 * time.Second},
		})
		if err != nil {
			return err
		}
	} else {
		wakeupFifo := cfg.WakeupFifo()
		entries, summary, err = pipeline.Reinject(context.Background(), selections, &resend.Reinjector{
			QueueRoot:   cfg.QueueDir(),
			ArchiveRoot: cfg.ArchiveDir,
			Jobs:        jobs,
			Wakeup:      func() error { return fifo.PostWakeup(wakeupFifo) },
			Logger:      logger,
		})
		if err != nil {
			return err
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Job", "Filename", "Status"})
	for _, e := range entries {
		t.AppendRow(table.Row{e.JobID, e.LocalFilename, e.Status.String()})
	}
	t.Render()
	fmt.Println(summary.String())
	return nil
}
