// Package server exposes a store over HTTP for inspection and editing
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/andybalholm/brotli"
	"github.com/kjk/regionstore/log"
	"github.com/kjk/regionstore/region"
	"github.com/kjk/regionstore/store"
)

// maxBody is the largest content that can fit in a record
const maxBody = 0xFFFF

type Config struct {
	// if true, PUT and DELETE are rejected with 405
	ReadOnly bool
	// called after a successful write or erase while the store is locked,
	// e.g. to flush an image file. If it fails the request gets a 500 but
	// the change is kept in memory.
	AfterChange func() error
}

// RecordInfo describes one record in a listing
type RecordInfo struct {
	Name       string `json:"name"`
	Offset     int    `json:"offset"`
	Size       int    `json:"size"`
	ContentLen int    `json:"content_len"`
}

// Listing is the response of GET /api/records
type Listing struct {
	Records []RecordInfo `json:"records"`
	Size    int          `json:"size"`
	Used    int          `json:"used"`
	Free    int          `json:"free"`
}

type Server struct {
	// store is single-writer, mu serializes all access
	mu      sync.Mutex
	st      *store.Store
	cfg     Config
	mux     *http.ServeMux
	Metrics *metrics.Set
}

func New(st *store.Store, cfg Config) *Server {
	s := &Server{
		st:      st,
		cfg:     cfg,
		mux:     http.NewServeMux(),
		Metrics: metrics.NewSet(),
	}
	s.mux.HandleFunc("GET /api/records", s.handleList)
	s.mux.HandleFunc("GET /api/record", s.handleRead)
	s.mux.HandleFunc("HEAD /api/record", s.handleExists)
	s.mux.HandleFunc("PUT /api/record", s.handleWrite)
	s.mux.HandleFunc("DELETE /api/record", s.handleErase)
	s.mux.HandleFunc("GET /metrics", s.handleMetrics)
	s.registerGauges()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	timeStart := time.Now()
	cw := &capturingResponseWriter{ResponseWriter: w}
	s.mux.ServeHTTP(cw, r)
	code := cw.StatusCode
	if code == 0 {
		code = http.StatusOK
	}
	log.IfErrf(log.HTTPRequest(r, code, cw.Size, time.Since(timeStart)))
}

// StatusForError maps store errors to http status codes
func StatusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrFileNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInsufficientSpace):
		return http.StatusInsufficientStorage
	case errors.Is(err, region.ErrRegionUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// ErrorKind is a short name of the error used as a metrics label
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, store.ErrFileNotFound):
		return "not_found"
	case errors.Is(err, store.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, store.ErrStorageFull):
		return "storage_full"
	case errors.Is(err, store.ErrStorageOverflow):
		return "storage_overflow"
	case errors.Is(err, store.ErrInvalidMagicNumber):
		return "invalid_magic"
	case errors.Is(err, store.ErrInvalidStorage):
		return "invalid_storage"
	case errors.Is(err, region.ErrRegionUnavailable):
		return "region_unavailable"
	}
	return "other"
}

func (s *Server) countRequest(op string) {
	s.Metrics.GetOrCreateCounter(fmt.Sprintf(`regionstore_requests_total{op=%q}`, op)).Inc()
}

func (s *Server) serveError(w http.ResponseWriter, op string, err error) {
	kind := ErrorKind(err)
	s.Metrics.GetOrCreateCounter(fmt.Sprintf(`regionstore_errors_total{op=%q,kind=%q}`, op, kind)).Inc()
	code := StatusForError(err)
	if code == http.StatusInternalServerError {
		log.Errorf("%s: %s\n", op, err)
	}
	http.Error(w, err.Error(), code)
}

// serveFlushError reports a failed AfterChange. The change stays applied to
// the in-memory store and is saved by the next successful AfterChange.
func (s *Server) serveFlushError(w http.ResponseWriter, op string, err error) {
	s.Metrics.GetOrCreateCounter(fmt.Sprintf(`regionstore_errors_total{op=%q,kind="flush"}`, op)).Inc()
	log.Errorf("%s: applied in memory but not saved: %s\n", op, err)
	w.Header().Set("X-Change-Applied", "1")
	http.Error(w, fmt.Sprintf("%s applied in memory but not saved: %s", op, err), http.StatusInternalServerError)
}

func nameArg(r *http.Request) (string, error) {
	name := r.URL.Query().Get("name")
	if name == "" {
		return "", fmt.Errorf("missing 'name' argument: %w", store.ErrInvalidInput)
	}
	return name, nil
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, _, _ = strings.Cut(enc, ";")
		if strings.TrimSpace(enc) == "br" {
			return true
		}
	}
	return false
}

// serveJSON writes v as json, brotli-compressed if the client accepts it
func serveJSON(w http.ResponseWriter, r *http.Request, v any) {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Add("Vary", "Accept-Encoding")
	var dst io.Writer = w
	if acceptsBrotli(r) {
		h.Set("Content-Encoding", "br")
		bw := brotli.NewWriterLevel(w, brotli.DefaultCompression)
		defer bw.Close()
		dst = bw
	}
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(dst)
	enc.SetEscapeHTML(false)
	log.IfErrf(enc.Encode(v))
}

func (s *Server) listing() (*Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := &Listing{Records: []RecordInfo{}}
	for rec, err := range s.st.Records() {
		if err != nil {
			return nil, err
		}
		res.Records = append(res.Records, RecordInfo{
			Name:       rec.Name,
			Offset:     rec.Offset,
			Size:       rec.Size,
			ContentLen: rec.ContentLen,
		})
	}
	stats, err := s.st.Stats()
	if err != nil {
		return nil, err
	}
	res.Size = stats.Size
	res.Used = stats.Used
	res.Free = stats.Free
	return res, nil
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.countRequest("list")
	res, err := s.listing()
	if err != nil {
		s.serveError(w, "list", err)
		return
	}
	serveJSON(w, r, res)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	s.countRequest("read")
	name, err := nameArg(r)
	if err != nil {
		s.serveError(w, "read", err)
		return
	}
	s.mu.Lock()
	// copy because the view is invalidated by the next erase
	d, err := s.st.ReadRawCopy(name)
	s.mu.Unlock()
	if err != nil {
		s.serveError(w, "read", err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(d)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(d)
}

func (s *Server) handleExists(w http.ResponseWriter, r *http.Request) {
	s.countRequest("exists")
	name, err := nameArg(r)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	ok := s.st.Exists(name)
	s.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) afterChange() error {
	if s.cfg.AfterChange == nil {
		return nil
	}
	return s.cfg.AfterChange()
}

func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	op := "write"
	replace := r.URL.Query().Get("replace") == "1"
	if replace {
		op = "replace"
	}
	s.countRequest(op)
	if s.cfg.ReadOnly {
		http.Error(w, "read-only", http.StatusMethodNotAllowed)
		return
	}
	name, err := nameArg(r)
	if err != nil {
		s.serveError(w, op, err)
		return
	}
	d, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			err = fmt.Errorf("content larger than %d bytes: %w", maxBody, store.ErrInvalidInput)
		}
		s.serveError(w, op, err)
		return
	}

	s.mu.Lock()
	if replace {
		err = s.st.Replace(name, d)
	} else {
		err = s.st.WriteRaw(name, d)
	}
	var errFlush error
	if err == nil {
		errFlush = s.afterChange()
	}
	s.mu.Unlock()
	if err != nil {
		s.serveError(w, op, err)
		return
	}
	if errFlush != nil {
		s.serveFlushError(w, op, errFlush)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleErase(w http.ResponseWriter, r *http.Request) {
	s.countRequest("erase")
	if s.cfg.ReadOnly {
		http.Error(w, "read-only", http.StatusMethodNotAllowed)
		return
	}
	name, err := nameArg(r)
	if err != nil {
		s.serveError(w, "erase", err)
		return
	}
	s.mu.Lock()
	err = s.st.Erase(name)
	var errFlush error
	if err == nil {
		errFlush = s.afterChange()
	}
	s.mu.Unlock()
	if err != nil {
		s.serveError(w, "erase", err)
		return
	}
	if errFlush != nil {
		s.serveFlushError(w, "erase", errFlush)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) stats() store.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats, _ := s.st.Stats()
	return stats
}

func (s *Server) registerGauges() {
	s.Metrics.NewGauge("regionstore_used_bytes", func() float64 {
		return float64(s.stats().Used)
	})
	s.Metrics.NewGauge("regionstore_free_bytes", func() float64 {
		return float64(s.stats().Free)
	})
	s.Metrics.NewGauge("regionstore_records", func() float64 {
		return float64(s.stats().Records)
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	s.Metrics.WritePrometheus(w)
}

// ListenAndServe runs the server until ctx is cancelled, then shuts
// it down, waiting up to 5 seconds for requests in flight
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	if addr == "" {
		return errors.New("need to provide addr")
	}
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  120 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	chErr := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		// mute error caused by Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		chErr <- err
	}()
	log.Logf("listening on %s\n", addr)

	select {
	case err := <-chErr:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := httpSrv.Shutdown(shutdownCtx)
	return errors.Join(err, <-chErr)
}
