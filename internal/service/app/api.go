package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"mpc_match/internal/model"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
)

type (
	// API is the HTTP side of the matching server.
	API struct {
		base   url.URL
		client *http.Client
	}

	Session struct {
		UserID string `json:"user_id"`
		Token  string `json:"token"`
		Handle string `json:"handle,omitempty"`
	}

	MatchSummary struct {
		Candidates int `json:"candidates"`
		Matched    int `json:"matched"`
	}
)

func NewAPI(host string) *API {
	return &API{
		base:   url.URL{Scheme: "http", Host: host},
		client: http.DefaultClient,
	}
}

func (a *API) endpoint(path string) string {
	u := a.base
	u.Path = path
	return u.String()
}

func (a *API) Upload(ctx context.Context, handle string, shares [][]byte) (*Session, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("handle", handle); err != nil {
		return nil, err
	}
	for i, s := range shares {
		fw, err := mw.CreateFormFile("shares", fmt.Sprintf("share%d.bin", i))
		if err != nil {
			return nil, err
		}
		if _, err := fw.Write(s); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint("/upload"), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var s Session
	if err := a.do(req, http.StatusCreated, &s); err != nil {
		return nil, err
	}
	s.Handle = handle
	return &s, nil
}

func (a *API) Split(ctx context.Context, profile *model.Profile) ([]string, error) {
	data, err := json.Marshal(profile)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint("/split"), bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var res struct {
		Shares []string `json:"shares"`
	}
	if err := a.do(req, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return res.Shares, nil
}

func (a *API) Match(ctx context.Context, token string) (*MatchSummary, error) {
	req, err := a.authed(ctx, http.MethodPost, "/match", token)
	if err != nil {
		return nil, err
	}
	var res MatchSummary
	if err := a.do(req, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (a *API) Matches(ctx context.Context, token string) ([]string, error) {
	req, err := a.authed(ctx, http.MethodGet, "/matches", token)
	if err != nil {
		return nil, err
	}
	var res struct {
		Matches []string `json:"matches"`
	}
	if err := a.do(req, http.StatusOK, &res); err != nil {
		return nil, err
	}
	return res.Matches, nil
}

func (a *API) Notifications(token string) (*websocket.Conn, error) {
	u := a.base
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = url.Values{"token": []string{token}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (a *API) authed(ctx context.Context, method, path, token string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.endpoint(path), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req, nil
}

func (a *API) do(req *http.Request, want int, out any) error {
	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s %s: %s: %s", req.Method, req.URL.Path, resp.Status, bytes.TrimSpace(msg))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
