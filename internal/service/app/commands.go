package app

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mpc_match/internal/model"
	"os"
	"path/filepath"
	"strings"
)

var errNoSession = errors.New("not registered: use register or login first")

const helpText = `commands:
  split <profile.json> <dir>   split a profile into share files
  register <handle> <dir>      upload the share files in dir
  login <handle>               reuse a cached registration
  match                        run matching now
  matches                      list matched handles
  quit`

// Execute runs one command line and returns the lines to show.
func (c *App) Execute(ctx context.Context, line string) ([]string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		return strings.Split(helpText, "\n"), nil

	case "split":
		if len(args) != 2 {
			return nil, errors.New("usage: split <profile.json> <dir>")
		}
		return c.split(ctx, args[0], args[1])

	case "register":
		if len(args) != 2 {
			return nil, errors.New("usage: register <handle> <dir>")
		}
		return c.register(ctx, args[0], args[1])

	case "login":
		if len(args) != 1 {
			return nil, errors.New("usage: login <handle>")
		}
		s, err := c.LoadSession(ctx, args[0])
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, fmt.Errorf("no cached session for %s", args[0])
		}
		c.setSession(s)
		return []string{fmt.Sprintf("logged in as %s", s.Handle)}, nil

	case "match":
		s, err := c.currentSession()
		if err != nil {
			return nil, err
		}
		res, err := c.api.Match(ctx, s.Token)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("evaluated %d candidate(s), %d new match(es)", res.Candidates, res.Matched)}, nil

	case "matches":
		s, err := c.currentSession()
		if err != nil {
			return nil, err
		}
		handles, err := c.api.Matches(ctx, s.Token)
		if err != nil {
			return nil, err
		}
		if len(handles) == 0 {
			return []string{"no matches yet"}, nil
		}
		return append([]string{"matched with:"}, handles...), nil
	}

	return nil, fmt.Errorf("unknown command %q, try help", cmd)
}

func (c *App) split(ctx context.Context, profilePath, dir string) ([]string, error) {
	data, err := os.ReadFile(profilePath)
	if err != nil {
		return nil, err
	}
	var profile model.Profile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}

	shares, err := c.api.Split(ctx, &profile)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	for i, h := range shares {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("share %d: %w", i, err)
		}
		if err := os.WriteFile(filepath.Join(dir, model.ShareFileName(i)), raw, 0o600); err != nil {
			return nil, err
		}
	}
	return []string{fmt.Sprintf("wrote %d shares to %s", len(shares), dir)}, nil
}

func (c *App) register(ctx context.Context, handle, dir string) ([]string, error) {
	shares := make([][]byte, model.PartyCount)
	for i := range shares {
		data, err := os.ReadFile(filepath.Join(dir, model.ShareFileName(i)))
		if err != nil {
			return nil, err
		}
		shares[i] = data
	}

	s, err := c.api.Upload(ctx, handle, shares)
	if err != nil {
		return nil, err
	}
	c.setSession(s)

	out := []string{fmt.Sprintf("registered %s as %s", handle, s.UserID)}
	if err := c.SaveSession(ctx, s); err != nil {
		out = append(out, fmt.Sprintf("session not cached: %v", err))
	}
	return out, nil
}

func (c *App) setSession(s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

func (c *App) currentSession() (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil, errNoSession
	}
	return c.session, nil
}
