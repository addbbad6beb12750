// Package api is the HTTP edge in front of the Log Query Engine and
// the Resend/Reinject Pipeline — the two structured APIs spec.md §1
// scopes in for external operator consoles. Handlers translate request
// parameters into logstore / resend values and never carry business
// logic of their own.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/hfs/afd-sub007/internal/fifo"
	"github.com/hfs/afd-sub007/internal/hsa"
	"github.com/hfs/afd-sub007/internal/jobid"
	"github.com/hfs/afd-sub007/internal/logging"
	"github.com/hfs/afd-sub007/internal/logstore"
	"github.com/hfs/afd-sub007/internal/perm"
	"github.com/hfs/afd-sub007/internal/resend"
)

// Server serves the query and resend endpoints for one operator
// permission set. The resend limit counters live in the pipeline and
// persist for the server's lifetime, matching the per-user,
// process-wide counters of spec.md §4.5 step 5.
type Server struct {
	Store       *logstore.Store
	Jobs        *jobid.Map
	ArchiveRoot string
	QueueRoot   string
	WakeupFifo  string
	Perms       perm.Permissions
	CORSOrigins []string
	Logger      logging.Logger

	// HSA and HostSlot enable the direct-send resend mode; a nil HSA
	// rejects direct-send requests.
	HSA      *hsa.Array
	HostSlot int

	pipeline *resend.Pipeline
}

// NewServer wires a Server and its resend pipeline.
func NewServer(store *logstore.Store, jobs *jobid.Map, archiveRoot, queueRoot, wakeupFifo string, perms perm.Permissions, logger logging.Logger) *Server {
	s := &Server{
		Store:       store,
		Jobs:        jobs,
		ArchiveRoot: archiveRoot,
		QueueRoot:   queueRoot,
		WakeupFifo:  wakeupFifo,
		Perms:       perms,
		Logger:      logger,
	}
	s.pipeline = resend.NewPipeline(&resend.ArchiveReader{Store: store, ArchiveRoot: archiveRoot}, perms)
	return s
}

// Routes builds the chi router.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()
	origins := s.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/olog", s.handleQuery)
		r.Post("/resend", s.handleResend)
	})
	return r
}

type queryRecord struct {
	Timestamp    int64   `json:"timestamp"`
	HostAlias    string  `json:"host_alias"`
	Protocol     string  `json:"protocol"`
	Filename     string  `json:"filename"`
	FileSize     int64   `json:"file_size"`
	Duration     float64 `json:"duration"`
	JobID        uint64  `json:"job_id"`
	Archived     bool    `json:"archived"`
	LogFileIndex int     `json:"log_file_index"`
	LineOffset   int64   `json:"line_offset"`
}

type querySummary struct {
	Count    int     `json:"count"`
	Bytes    int64   `json:"bytes"`
	Duration float64 `json:"duration"`
	FirstTS  int64   `json:"first_ts"`
	LastTS   int64   `json:"last_ts"`
}

type queryResponse struct {
	Records []queryRecord `json:"records"`
	Summary querySummary  `json:"summary"`
	Message string        `json:"message,omitempty"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromParams(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if s.Jobs != nil {
		q.Lookup = s.Jobs
	}
	if s.Perms.ListLimit != perm.NoLimit && (q.ListLimit == 0 || q.ListLimit > s.Perms.ListLimit) {
		q.ListLimit = s.Perms.ListLimit
	}

	records := []queryRecord{}
	summary, msg, err := s.Store.Query(q, func(rec logstore.EmittedRecord) bool {
		records = append(records, queryRecord{
			Timestamp:    rec.Timestamp,
			HostAlias:    rec.HostAlias,
			Protocol:     rec.Protocol.String(),
			Filename:     rec.DisplayFilename,
			FileSize:     rec.FileSize,
			Duration:     rec.Duration,
			JobID:        rec.JobID,
			Archived:     rec.Archived,
			LogFileIndex: rec.LogFileIndex,
			LineOffset:   rec.LineOffset,
		})
		return r.Context().Err() == nil
	})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	s.respondJSON(w, queryResponse{
		Records: records,
		Summary: querySummary{
			Count:    summary.Count,
			Bytes:    summary.Bytes,
			Duration: summary.Duration,
			FirstTS:  summary.FirstTS,
			LastTS:   summary.LastTS,
		},
		Message: msg,
	})
}

func queryFromParams(r *http.Request) (logstore.Query, error) {
	var q logstore.Query
	params := r.URL.Query()

	var err error
	if q.StartTime, err = int64Param(params.Get("start"), 0); err != nil {
		return q, errors.New("invalid start")
	}
	if q.EndTime, err = int64Param(params.Get("end"), 1<<62); err != nil {
		return q, errors.New("invalid end")
	}

	q.RecipientPattern = params.Get("recipient")
	q.FilenamePattern = params.Get("file")
	q.DirectoryPattern = params.Get("directory")
	q.UserPattern = params.Get("user")
	q.DisplayRemoteName = params.Get("remote") == "true"

	if raw := params.Get("size"); raw != "" {
		f, err := logstore.ParseSizeFilter(raw)
		if err != nil {
			return q, err
		}
		q.SizeFilter = &f
	}

	if raw := params.Get("protocols"); raw != "" {
		mask, err := logstore.ParseProtocolMask(raw)
		if err != nil {
			return q, err
		}
		q.ProtocolMask = mask
	}

	if raw := params.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return q, errors.New("invalid limit")
		}
		q.ListLimit = limit
	}
	return q, nil
}

func int64Param(raw string, def int64) (int64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}

type resendRequest struct {
	Mode       string `json:"mode"` // "reinject" or "direct"
	Selections []struct {
		LogFileIndex int   `json:"log_file_index"`
		LineOffset   int64 `json:"line_offset"`
	} `json:"selections"`
	Destination *struct {
		Host       string `json:"host"`
		Port       int    `json:"port"`
		User       string `json:"user"`
		Credential string `json:"credential"`
		Directory  string `json:"directory"`
	} `json:"destination,omitempty"`
}

type resendEntry struct {
	JobID    uint64 `json:"job_id"`
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

type resendResponse struct {
	Entries []resendEntry `json:"entries"`
	Summary string        `json:"summary"`
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	selections := make([]resend.Selection, len(req.Selections))
	for i, sel := range req.Selections {
		selections[i] = resend.Selection{LogFileIndex: sel.LogFileIndex, LineOffset: sel.LineOffset}
	}

	var entries []*resend.Entry
	var summary resend.Summary
	var err error

	switch req.Mode {
	case "", "reinject":
		wakeupFifo := s.WakeupFifo
		entries, summary, err = s.pipeline.Reinject(r.Context(), selections, &resend.Reinjector{
			QueueRoot:   s.QueueRoot,
			ArchiveRoot: s.ArchiveRoot,
			Jobs:        s.Jobs,
			Wakeup:      func() error { return fifo.PostWakeup(wakeupFifo) },
			Logger:      s.Logger,
		})
	case "direct":
		if req.Destination == nil {
			s.respondError(w, http.StatusBadRequest, errors.New("direct mode requires a destination"))
			return
		}
		if s.HSA == nil {
			s.respondError(w, http.StatusServiceUnavailable, errors.New("no host status array attached"))
			return
		}
		entries, summary, err = s.pipeline.DirectSend(r.Context(), selections, &resend.DirectSender{
			ArchiveRoot: s.ArchiveRoot,
			HSA:         s.HSA,
			HostSlot:    s.HostSlot,
			Logger:      s.Logger,
		}, resend.Destination{
			Host:       req.Destination.Host,
			Port:       req.Destination.Port,
			User:       req.Destination.User,
			Credential: req.Destination.Credential,
			Directory:  req.Destination.Directory,
		})
	default:
		s.respondError(w, http.StatusBadRequest, errors.New("unknown mode "+req.Mode))
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}

	resp := resendResponse{Summary: summary.String(), Entries: make([]resendEntry, len(entries))}
	for i, e := range entries {
		resp.Entries[i] = resendEntry{JobID: e.JobID, Filename: e.LocalFilename, Status: e.Status.String()}
	}
	s.respondJSON(w, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(data); err != nil && s.Logger != nil {
		s.Logger.Errorf("failed to encode response: %v", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
