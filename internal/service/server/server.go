package server

import (
	"context"
	"encoding/json"
	"errors"
	"mpc_match/internal/config"
	"mpc_match/internal/model"
	"mpc_match/internal/service/matching"
	"mpc_match/internal/utils/log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type (
	Registry interface {
		ValidateHandle(handle string) error
		CreateUser(ctx context.Context, id, handle, shareHash string) (*model.User, error)
		GetUser(ctx context.Context, id string) (*model.User, error)
		MatchesFor(ctx context.Context, userID string) ([]string, error)
	}

	ShareStore interface {
		Validate(shares [][]byte) error
		Register(ctx context.Context, userID string, shares [][]byte) (string, error)
		Remove(ctx context.Context, userID, digest string) error
	}

	Matcher interface {
		RunMatches(ctx context.Context, userID string) (*matching.Result, error)
	}

	Splitter interface {
		SplitShares(input []byte) (model.ShareSet, error)
	}

	Tokens interface {
		Issue(ctx context.Context, userID string) (string, error)
		Resolve(ctx context.Context, token string) (string, error)
	}

	Mailbox interface {
		Push(ctx context.Context, userID string, n *model.Notification) error
		Drain(ctx context.Context, userID string) ([]*model.Notification, error)
	}

	Deps struct {
		Registry Registry
		Shares   ShareStore
		Matcher  Matcher
		Splitter Splitter
		Tokens   Tokens
		Mailbox  Mailbox
	}

	HttpServer struct {
		cfg  *config.ServerConfig
		deps Deps

		maxShareSize int

		mu     sync.Mutex
		mapper map[string]*wsClient
	}
)

func NewHttpServer(cfg *config.ServerConfig, maxShareSize int, deps Deps) *HttpServer {
	return &HttpServer{
		cfg:          cfg,
		deps:         deps,
		maxShareSize: maxShareSize,
		mapper:       make(map[string]*wsClient),
	}
}

func (s *HttpServer) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.HandleHealth()).Methods(http.MethodGet)
	r.HandleFunc("/upload", s.HandleUpload()).Methods(http.MethodPost)
	r.HandleFunc("/split", s.HandleSplit()).Methods(http.MethodPost)
	r.HandleFunc("/match", s.authenticated(s.HandleMatch())).Methods(http.MethodPost)
	r.HandleFunc("/matches", s.authenticated(s.HandleMatches())).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.HandleWS()).Methods(http.MethodGet)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HttpServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.closeClients()
	return srv.Shutdown(sctx)
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *HttpServer) authenticated(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		userID, err := s.deps.Tokens.Resolve(r.Context(), token)
		if err != nil {
			log.Debug("token rejected", zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r, userID)
	}
}

// writeError maps err to a status code. Details go to the log only.
func writeError(w http.ResponseWriter, op string, err error) {
	status, msg := http.StatusInternalServerError, "internal error"
	switch {
	case errors.Is(err, model.ErrValidation):
		status, msg = http.StatusBadRequest, "invalid request"
	case errors.Is(err, model.ErrDuplicate):
		status, msg = http.StatusConflict, "already registered"
	case errors.Is(err, model.ErrNotFound):
		status, msg = http.StatusNotFound, "not found"
	}

	if status == http.StatusInternalServerError {
		log.Error(op+" failed", zap.Error(err))
	} else {
		log.Debug(op+" rejected", zap.Error(err))
	}
	http.Error(w, msg, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Error("marshal response failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
