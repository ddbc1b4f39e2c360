package sharestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mpc_match/internal/config"
	"mpc_match/internal/cryptographic/encryption"
	"mpc_match/internal/cryptographic/hash"
	"mpc_match/internal/cryptographic/kdf"
	"mpc_match/internal/model"
	"mpc_match/internal/utils/log"
	"os"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
)

const (
	flagPlain     byte = 0
	flagEncrypted byte = 1
)

var (
	fileMagic = []byte("MPS1")
	validID   = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

type (
	// HashIndex records share content hashes so the same secret material
	// cannot be registered twice under different identities.
	HashIndex interface {
		Claim(ctx context.Context, hash, userID string) error
		Release(ctx context.Context, hash, userID string) error
	}

	// Store persists each user's three shares as files under a per-user
	// directory.
	Store struct {
		dir     string
		maxSize int
		master  []byte
		hashes  HashIndex
	}
)

func NewStore(cfg *config.StorageConfig, hashes HashIndex) *Store {
	return &Store{
		dir:     filepath.Join(cfg.DataDir, "shares"),
		maxSize: cfg.MaxShareSize,
		master:  cfg.ShareKey(),
		hashes:  hashes,
	}
}

// Validate checks share count and sizes without touching storage.
func (s *Store) Validate(shares [][]byte) error {
	if len(shares) != model.PartyCount {
		return fmt.Errorf("%w: got %d, want %d", model.ErrInvalidShareCount, len(shares), model.PartyCount)
	}
	for i, share := range shares {
		if len(share) == 0 || len(share) > s.maxSize {
			return fmt.Errorf("%w: share %d is %d bytes, limit %d", model.ErrInvalidShareSize, i, len(share), s.maxSize)
		}
	}
	return nil
}

// Register validates and persists the shares of userID and returns their
// content hash. Identical content registered before under any id is
// rejected with model.ErrDuplicateShare.
func (s *Store) Register(ctx context.Context, userID string, shares [][]byte) (string, error) {
	if !validID.MatchString(userID) {
		return "", fmt.Errorf("%w: malformed user id", model.ErrValidation)
	}
	if err := s.Validate(shares); err != nil {
		return "", err
	}

	digest := hash.ShareSetDigest(shares...)
	if err := s.hashes.Claim(ctx, digest, userID); err != nil {
		return "", err
	}

	if err := s.write(userID, shares); err != nil {
		if rerr := s.hashes.Release(ctx, digest, userID); rerr != nil {
			log.Error("release share hash failed", zap.String("user_id", userID), zap.Error(rerr))
		}
		return "", err
	}

	return digest, nil
}

func (s *Store) write(userID string, shares [][]byte) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}

	dir := s.userDir(userID)
	if err := os.Mkdir(dir, 0o700); err != nil {
		if errors.Is(err, os.ErrExist) {
			return model.ErrDuplicateID
		}
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}

	for i, share := range shares {
		data, err := s.seal(userID, i, share)
		if err != nil {
			os.RemoveAll(dir)
			return fmt.Errorf("%w: %v", model.ErrStorage, err)
		}
		if err := writeFile(s.sharePath(userID, i), data, 0o600); err != nil {
			os.RemoveAll(dir)
			return fmt.Errorf("%w: %v", model.ErrStorage, err)
		}
	}
	return nil
}

// Fetch returns the three shares of userID.
func (s *Store) Fetch(_ context.Context, userID string) (model.ShareSet, error) {
	var set model.ShareSet
	if !validID.MatchString(userID) {
		return set, model.ErrShareNotFound
	}

	for i := range set {
		data, err := os.ReadFile(s.sharePath(userID, i))
		if errors.Is(err, os.ErrNotExist) {
			return set, fmt.Errorf("%w: user %s party %d", model.ErrShareNotFound, userID, i)
		}
		if err != nil {
			return set, fmt.Errorf("%w: %v", model.ErrStorage, err)
		}

		share, err := s.open(userID, i, data)
		if err != nil {
			return set, fmt.Errorf("%w: user %s party %d: %v", model.ErrCorruptShare, userID, i, err)
		}
		set[i] = share
	}
	return set, nil
}

// Remove deletes a user's shares and releases its content hash. It is used
// to roll back a registration.
func (s *Store) Remove(ctx context.Context, userID, digest string) error {
	if !validID.MatchString(userID) {
		return fmt.Errorf("%w: malformed user id", model.ErrValidation)
	}
	if err := os.RemoveAll(s.userDir(userID)); err != nil {
		return fmt.Errorf("%w: %v", model.ErrStorage, err)
	}
	return s.hashes.Release(ctx, digest, userID)
}

func (s *Store) userDir(userID string) string {
	return filepath.Join(s.dir, userID)
}

func (s *Store) sharePath(userID string, party int) string {
	return filepath.Join(s.userDir(userID), fmt.Sprintf("%d.share", party))
}

func aad(userID string, party int) []byte {
	return []byte(fmt.Sprintf("%s/%d", userID, party))
}

// seal frames a share as magic || flag || payload, encrypting the payload
// when a master key is configured.
func (s *Store) seal(userID string, party int, share []byte) ([]byte, error) {
	out := append([]byte{}, fileMagic...)
	if s.master == nil {
		out = append(out, flagPlain)
		return append(out, share...), nil
	}

	key, err := kdf.ShareKey(s.master, userID)
	if err != nil {
		return nil, err
	}
	ct, err := encryption.AEADEncrypt(key, share, aad(userID, party))
	if err != nil {
		return nil, err
	}
	out = append(out, flagEncrypted)
	return append(out, ct...), nil
}

func (s *Store) open(userID string, party int, data []byte) (model.Share, error) {
	if len(data) < len(fileMagic)+1 || !bytes.Equal(data[:len(fileMagic)], fileMagic) {
		return nil, errors.New("bad header")
	}
	flag, payload := data[len(fileMagic)], data[len(fileMagic)+1:]

	var share []byte
	switch flag {
	case flagPlain:
		share = append([]byte{}, payload...)
	case flagEncrypted:
		if s.master == nil {
			return nil, errors.New("share is encrypted but no key is configured")
		}
		key, err := kdf.ShareKey(s.master, userID)
		if err != nil {
			return nil, err
		}
		share, err = encryption.AEADDecrypt(key, payload, aad(userID, party))
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown flag %d", flag)
	}

	if len(share) == 0 || len(share) > s.maxSize {
		return nil, fmt.Errorf("size %d out of range", len(share))
	}
	return share, nil
}
