// Package server exposes the classification serving surface. All request
// handlers hang off an explicitly constructed Service; the current index and
// store live behind one atomic pointer so a reload swaps them as a pair and
// concurrent readers never observe a torn state.
package server

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dolr-ai/content-moderation-sub000/internal/classifier"
	"github.com/dolr-ai/content-moderation-sub000/internal/index"
	"github.com/dolr-ai/content-moderation-sub000/internal/taxonomy"
)

// Service holds the server's dependencies and the swappable index pair.
type Service struct {
	tax          *taxonomy.Taxonomy
	logger       *zap.Logger
	current      atomic.Pointer[index.FlatIndex]
	remote       index.Searcher
	clf          *classifier.Classifier
	indexPath    string
	metadataPath string
}

// NewService builds the service context. The classifier is created by the
// caller with this service as its retriever (see Wire).
func NewService(tax *taxonomy.Taxonomy, logger *zap.Logger, indexPath, metadataPath string) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tax:          tax,
		logger:       logger,
		indexPath:    indexPath,
		metadataPath: metadataPath,
	}
}

// Wire attaches the classifier once it has been constructed with this
// service as its retriever.
func (s *Service) Wire(clf *classifier.Classifier) {
	s.clf = clf
}

// UseRemote routes retrieval through the warehouse-backed searcher instead
// of the local flat index.
func (s *Service) UseRemote(searcher index.Searcher) {
	s.remote = searcher
}

// Search implements index.Searcher. In local mode it dereferences the
// current index, so the orchestrator always sees a consistent index+store
// pair; in remote mode it delegates to the warehouse searcher.
func (s *Service) Search(ctx context.Context, query []float32, k int) ([]index.RetrievedExample, error) {
	if s.remote != nil {
		return s.remote.Search(ctx, query, k)
	}
	ix := s.current.Load()
	if ix == nil {
		return nil, index.ErrEmptyIndex
	}
	return ix.Search(ctx, query, k)
}

// Install makes ix the serving index. Safe to call while requests are in
// flight; in-flight searches finish against whichever pair they dereferenced.
func (s *Service) Install(ix *index.FlatIndex) {
	s.current.Store(ix)
}

// Reload rebuilds the index pair from disk into fresh structures and swaps
// the pointer only after the new pair is fully built.
func (s *Service) Reload() error {
	ix, err := index.LoadFlat(s.indexPath, s.metadataPath, s.tax)
	if err != nil {
		return err
	}
	s.Install(ix)
	s.logger.Info("index reloaded",
		zap.Int("size", ix.Size()),
		zap.Int("dimension", ix.Dimension()),
		zap.String("metric", string(ix.Metric())))
	return nil
}

// IndexLoaded reports whether a serving index is installed, and its size.
// Remote mode reports loaded with size 0: the warehouse owns the rows.
func (s *Service) IndexLoaded() (bool, int) {
	if s.remote != nil {
		return true, 0
	}
	ix := s.current.Load()
	if ix == nil {
		return false, 0
	}
	return true, ix.Size()
}

// Router builds the HTTP surface.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Post("/classify", s.handleClassify)
	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Post("/admin/reload", s.handleReload)

	return r
}

type ctxKey int

const requestIDKey ctxKey = 0

// RequestID returns the request ID the logging middleware assigned, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestLogger assigns a request ID, echoes it in the X-Request-ID response
// header and logs each call at Info. Handlers reach it via RequestID.
func (s *Service) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", reqID)
		ctx := context.WithValue(r.Context(), requestIDKey, reqID)
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))
		s.logger.Info("request",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()))
	})
}
