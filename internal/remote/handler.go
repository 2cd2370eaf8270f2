package remote

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/ultratendency/sentry/internal/authzpaths"
	"github.com/ultratendency/sentry/internal/update"
)

// maxBodyBytes caps a pushed update, compressed or not.
const maxBodyBytes = 256 << 20

// Replica is an in-memory remote service: it applies pushed updates to
// its own path tree and remembers the last sequence number it applied.
type Replica struct {
	applyMu  sync.Mutex
	mu       sync.RWMutex
	paths    *authzpaths.Paths
	lastSeen atomic.Int64
	logger   *slog.Logger
}

// NewReplica creates an empty Replica.
func NewReplica(logger *slog.Logger) *Replica {
	if logger == nil {
		logger = slog.Default()
	}

	return &Replica{
		paths:  authzpaths.New(logger),
		logger: logger,
	}
}

// Apply applies u and records its sequence number as last seen. A full
// image replaces the tree. An incremental update at or below the tree's
// last applied sequence number is a redelivery and is skipped; Apply
// reports whether u was applied.
func (r *Replica) Apply(u *update.Update) bool {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	if !u.FullImage {
		r.mu.RLock()
		applied := r.paths.LastSeqNum()
		r.mu.RUnlock()

		if u.SeqNum <= applied {
			r.logger.Debug("skipping already applied path update",
				slog.Int64("seq_num", u.SeqNum),
				slog.Int64("applied_seq_num", applied),
			)

			return false
		}
	}

	r.paths.UpdatePartial([]*update.Update{u}, &r.mu)
	r.lastSeen.Store(u.SeqNum)

	return true
}

// LastSeen returns the sequence number of the last applied update.
func (r *Replica) LastSeen() int64 {
	return r.lastSeen.Load()
}

// SetLastSeen overwrites the last-seen sequence number.
func (r *Replica) SetLastSeen(seq int64) {
	r.lastSeen.Store(seq)
}

// Objects returns the authorized objects that own at least one path.
func (r *Replica) Objects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.paths.Objects()
}

// PathsOf returns the paths of authzObj.
func (r *Replica) PathsOf(authzObj string) [][]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.paths.PathsOf(authzObj)
}

// NewHandler serves the remote service protocol on top of r.
func NewHandler(r *Replica) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+PathUpdates, r.handleUpdate)
	mux.HandleFunc("GET "+PathLastSeen, r.handleLastSeen)
	mux.HandleFunc("GET "+PathPing, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func (r *Replica) handleUpdate(w http.ResponseWriter, req *http.Request) {
	reqID := req.Header.Get(requestIDHeader)

	data, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "update too large", http.StatusRequestEntityTooLarge)
			return
		}

		http.Error(w, "reading body: "+err.Error(), http.StatusBadRequest)

		return
	}

	switch req.Header.Get("Content-Encoding") {
	case "", "identity":
	case contentEncodingZstd:
		data, err = decompressBody(data)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "unsupported content encoding", http.StatusUnsupportedMediaType)
		return
	}

	u, err := update.Unmarshal(data)
	if err != nil {
		r.logger.Warn("rejecting malformed path update",
			slog.String("request_id", reqID),
			slog.String("error", err.Error()),
		)
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	if r.Apply(u) {
		r.logger.Debug("applied path update",
			slog.String("request_id", reqID),
			slog.Int64("seq_num", u.SeqNum),
			slog.Bool("full_image", u.FullImage),
			slog.Int("changes", u.Len()),
		)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (r *Replica) handleLastSeen(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(lastSeenResponse{SeqNum: r.LastSeen()}); err != nil {
		r.logger.Warn("writing last-seen response", slog.String("error", err.Error()))
	}
}
