package server

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"mpc_match/internal/model"
	"mpc_match/internal/utils/log"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	uploadOverhead  = 64 << 10
	uploadMemory    = 1 << 20
	maxProfileBytes = 64 << 10
)

type (
	uploadResponse struct {
		UserID string `json:"user_id"`
		Token  string `json:"token"`
	}

	splitResponse struct {
		Shares []string `json:"shares"`
	}

	matchResponse struct {
		Candidates int `json:"candidates"`
		Matched    int `json:"matched"`
	}

	matchesResponse struct {
		Matches []string `json:"matches"`
	}
)

func (s *HttpServer) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

// HandleUpload registers a user from a multipart form carrying a handle and
// exactly three "shares" file parts, in party order.
func (s *HttpServer) HandleUpload() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, int64(model.PartyCount*s.maxShareSize+uploadOverhead))
		if err := r.ParseMultipartForm(uploadMemory); err != nil {
			writeError(w, "upload", fmt.Errorf("%w: %v", model.ErrValidation, err))
			return
		}
		defer r.MultipartForm.RemoveAll()

		shares, err := readShares(r.MultipartForm.File["shares"], s.maxShareSize)
		if err != nil {
			writeError(w, "upload", err)
			return
		}

		res, err := s.register(r.Context(), r.FormValue("handle"), shares)
		if err != nil {
			writeError(w, "upload", err)
			return
		}
		writeJSON(w, http.StatusCreated, res)
	}
}

func readShares(files []*multipart.FileHeader, maxSize int) ([][]byte, error) {
	if len(files) != model.PartyCount {
		return nil, fmt.Errorf("%w: got %d, want %d", model.ErrInvalidShareCount, len(files), model.PartyCount)
	}

	shares := make([][]byte, 0, len(files))
	for i, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open share %d: %v", model.ErrValidation, i, err)
		}
		// one byte past the limit is enough for Validate to reject it
		data, err := io.ReadAll(io.LimitReader(f, int64(maxSize)+1))
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read share %d: %v", model.ErrValidation, i, err)
		}
		shares = append(shares, data)
	}
	return shares, nil
}

// register stores the shares first so that duplicate content never creates
// a user row, then creates the user and undoes the share registration if
// that fails.
func (s *HttpServer) register(ctx context.Context, handle string, shares [][]byte) (*uploadResponse, error) {
	if err := s.deps.Registry.ValidateHandle(handle); err != nil {
		return nil, err
	}
	if err := s.deps.Shares.Validate(shares); err != nil {
		return nil, err
	}

	userID := uuid.NewString()
	digest, err := s.deps.Shares.Register(ctx, userID, shares)
	if err != nil {
		return nil, err
	}

	if _, err := s.deps.Registry.CreateUser(ctx, userID, handle, digest); err != nil {
		if rerr := s.deps.Shares.Remove(ctx, userID, digest); rerr != nil {
			log.Error("rollback share registration failed", zap.String("user_id", userID), zap.Error(rerr))
		}
		return nil, err
	}

	token, err := s.deps.Tokens.Issue(ctx, userID)
	if err != nil {
		return nil, err
	}

	log.Info("user registered", zap.String("user_id", userID), zap.String("handle", handle))
	return &uploadResponse{UserID: userID, Token: token}, nil
}

func (s *HttpServer) HandleSplit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var profile model.Profile
		dec := json.NewDecoder(io.LimitReader(r.Body, maxProfileBytes))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&profile); err != nil {
			writeError(w, "split", fmt.Errorf("%w: %v", model.ErrValidation, err))
			return
		}

		input, err := profile.Encode()
		if err != nil {
			writeError(w, "split", err)
			return
		}
		set, err := s.deps.Splitter.SplitShares(input)
		if err != nil {
			writeError(w, "split", err)
			return
		}

		res := splitResponse{Shares: make([]string, 0, len(set))}
		for _, share := range set {
			res.Shares = append(res.Shares, hex.EncodeToString(share))
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *HttpServer) HandleMatch() authedHandler {
	return func(w http.ResponseWriter, r *http.Request, userID string) {
		// candidates are marked before sessions start, so the run must not
		// die with the request
		ctx := context.WithoutCancel(r.Context())

		res, err := s.deps.Matcher.RunMatches(ctx, userID)
		if err != nil {
			writeError(w, "match", err)
			return
		}
		writeJSON(w, http.StatusOK, matchResponse{Candidates: len(res.Candidates), Matched: len(res.Verified)})
	}
}

func (s *HttpServer) HandleMatches() authedHandler {
	return func(w http.ResponseWriter, r *http.Request, userID string) {
		handles, err := s.deps.Registry.MatchesFor(r.Context(), userID)
		if err != nil {
			writeError(w, "matches", err)
			return
		}
		if handles == nil {
			handles = []string{}
		}
		writeJSON(w, http.StatusOK, matchesResponse{Matches: handles})
	}
}
