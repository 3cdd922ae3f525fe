// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package persistence

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/J-Ellette/GGAS-sub001/internal/models"
)

const (
	// SnapshotFileName is the default file name inside the data directory.
	SnapshotFileName = "license.snapshot"

	keyInfo = "ggas validation snapshot v1"
)

var ErrCorruptSnapshot = errors.New("snapshot file is corrupt or sealed for another machine")

// FileStore keeps the snapshot in a single sealed file. The sealing key is
// derived from a machine secret, so a copied file does not open elsewhere.
type FileStore struct {
	path string
	aead cipher.AEAD
}

// NewFileStore creates a store writing to path, sealed under secret.
func NewFileStore(path string, secret string) (*FileStore, error) {
	if secret == "" {
		return nil, errors.New("snapshot sealing secret is empty")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(secret), []byte(models.SnapshotName), []byte(keyInfo))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, errors.Wrap(err, "failed to derive snapshot key")
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create snapshot cipher")
	}

	return &FileStore{path: path, aead: aead}, nil
}

func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Load(ctx context.Context) (*models.ValidationSnapshot, error) {
	sealed, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, models.ErrSnapshotNotFound
		}
		return nil, errors.Wrap(err, "failed to read snapshot file")
	}

	nonceSize := s.aead.NonceSize()
	if len(sealed) < nonceSize+s.aead.Overhead() {
		return nil, ErrCorruptSnapshot
	}

	plaintext, err := s.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], []byte(models.SnapshotName))
	if err != nil {
		return nil, ErrCorruptSnapshot
	}

	var snapshot models.ValidationSnapshot
	if err := json.Unmarshal(plaintext, &snapshot); err != nil {
		return nil, errors.Wrap(ErrCorruptSnapshot, err.Error())
	}
	return &snapshot, nil
}

// Save seals and atomically replaces the snapshot file.
func (s *FileStore) Save(ctx context.Context, snapshot *models.ValidationSnapshot) error {
	plaintext, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "failed to encode snapshot")
	}

	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return errors.Wrap(err, "failed to generate nonce")
	}
	sealed := s.aead.Seal(nonce, nonce, plaintext, []byte(models.SnapshotName))

	return writeFileAtomic(s.path, sealed)
}

func (s *FileStore) Delete(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove snapshot file")
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "failed to create snapshot directory")
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to set snapshot permissions")
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write snapshot")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to sync snapshot")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close snapshot")
	}

	return errors.Wrap(os.Rename(tmpName, path), "failed to replace snapshot")
}
