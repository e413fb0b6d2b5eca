package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ivlev/vodscrub/internal/extract"
	"github.com/ivlev/vodscrub/internal/heroes"
	"github.com/ivlev/vodscrub/internal/ops"
	"github.com/ivlev/vodscrub/internal/timeline"
	log "github.com/sirupsen/logrus"
)

const defaultPushInterval = 250 * time.Millisecond

// Options настраивает Server. Frames и Job необязательны.
type Options struct {
	Addr            string
	Store           *timeline.Store
	DescriptionPath string
	Applier         ops.Applier
	Frames          *extract.Frames
	Job             *extract.Job
	PushInterval    time.Duration
}

// Server открывает хранилище разметки по HTTP. Любой доступ к хранилищу
// идет под mu, так что писатель всегда один.
type Server struct {
	httpServer   *http.Server
	descPath     string
	applier      ops.Applier
	frames       *extract.Frames
	job          *extract.Job
	pushInterval time.Duration

	mu      sync.Mutex
	store   *timeline.Store
	version uint64
	changed chan struct{}
}

type labelsPayload struct {
	T       float64 `json:"t"`
	Time    string  `json:"time"`
	Version uint64  `json:"version"`
	timeline.Labels
}

type statusPayload struct {
	Version    uint64            `json:"version"`
	Matches    int               `json:"matches"`
	Frames     int               `json:"frames"`
	Duration   float64           `json:"duration"`
	Heroes     []string          `json:"heroes"`
	Extraction *extract.Progress `json:"extraction,omitempty"`
}

type errorPayload struct {
	Error string `json:"error"`
}

// New создает HTTP-сервер для хранилища.
func New(opts Options) *Server {
	if opts.Store == nil {
		opts.Store = timeline.NewStore()
	}
	if opts.PushInterval <= 0 {
		opts.PushInterval = defaultPushInterval
	}

	mux := http.NewServeMux()
	s := &Server{
		httpServer:   &http.Server{Addr: opts.Addr, Handler: mux},
		descPath:     opts.DescriptionPath,
		applier:      opts.Applier,
		frames:       opts.Frames,
		job:          opts.Job,
		pushInterval: opts.PushInterval,
		store:        opts.Store,
		changed:      make(chan struct{}),
	}
	s.store.Updated()
	s.registerRoutes(mux)
	return s
}

// Handler возвращает маршруты сервера.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run блокируется и обслуживает HTTP.
func (s *Server) Run() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown плавно останавливает сервер.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/labels", s.handleLabels)
	mux.HandleFunc("GET /api/timeline", s.handleTimeline)
	mux.HandleFunc("POST /api/ops", s.handleOps)
	mux.HandleFunc("POST /api/save", s.handleSave)
	mux.HandleFunc("GET /api/frame", s.handleFrame)
	mux.HandleFunc("GET /ws/labels", s.handleLabelsWS)
}

// syncLocked превращает флаг изменений хранилища в новую версию и будит
// все ожидающие веб-сокеты. Вызывается под s.mu.
func (s *Server) syncLocked() {
	if !s.store.Updated() {
		return
	}
	s.version++
	close(s.changed)
	s.changed = make(chan struct{})
}

// watch возвращает текущую версию и канал, который закроется при следующем изменении.
func (s *Server) watch() (uint64, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncLocked()
	return s.version, s.changed
}

func (s *Server) labels(t float64) labelsPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncLocked()
	return labelsPayload{
		T:       t,
		Time:    timeline.FormatTime(t),
		Version: s.version,
		Labels:  s.store.LabelsAt(t),
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	s.syncLocked()
	payload := statusPayload{
		Version: s.version,
		Matches: len(s.store.Matches()),
		Heroes:  s.applier.Catalog.Names(),
	}
	s.mu.Unlock()

	if s.frames != nil {
		payload.Frames = s.frames.Len()
		payload.Duration = s.frames.Metadata.Duration()
	}
	if s.job != nil {
		p := s.job.Status()
		payload.Extraction = &p
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	t, err := parseTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.labels(t))
}

func (s *Server) handleTimeline(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.Encode(w); err != nil {
		log.Errorf("[-] Ошибка сериализации таймлайна: %v", err)
	}
}

func (s *Server) handleOps(w http.ResponseWriter, r *http.Request) {
	list, err := ops.Decode(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	s.mu.Lock()
	err = s.applier.ApplyAll(s.store, list)
	s.syncLocked()
	version := s.version
	s.mu.Unlock()

	if err != nil {
		log.WithField("ops", len(list)).Warnf("[!] Операция отклонена: %v", err)
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applied": len(list), "version": version})
}

func (s *Server) handleSave(w http.ResponseWriter, _ *http.Request) {
	if s.descPath == "" {
		writeError(w, http.StatusConflict, errors.New("no description file configured"))
		return
	}

	s.mu.Lock()
	err := s.store.Save(s.descPath)
	s.mu.Unlock()

	if err != nil {
		log.Errorf("[-] Не удалось сохранить %s: %v", s.descPath, err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	log.Infof("[+++] Описание сохранено: %s", s.descPath)
	writeJSON(w, http.StatusOK, map[string]string{"path": s.descPath})
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if s.frames == nil {
		writeError(w, http.StatusNotFound, extract.ErrNoFrames)
		return
	}
	t, err := parseTime(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	path, err := s.frames.PathAt(t)
	switch {
	case errors.Is(err, extract.ErrFrameNotReady):
		writeError(w, http.StatusAccepted, err)
	case err != nil:
		writeError(w, http.StatusNotFound, err)
	default:
		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeFile(w, r, path)
	}
}

func parseTime(r *http.Request) (float64, error) {
	raw := r.URL.Query().Get("t")
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseFloat(raw, 64)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, timeline.ErrOverlap):
		return http.StatusConflict
	case errors.Is(err, timeline.ErrNoCurrentMatch), errors.Is(err, timeline.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ops.ErrUnknownOp),
		errors.Is(err, ops.ErrMissingArgument),
		errors.Is(err, ops.ErrUnknownAbility),
		errors.Is(err, heroes.ErrUnknownHero),
		errors.Is(err, timeline.ErrInvalidSelection):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorPayload{Error: err.Error()})
}
