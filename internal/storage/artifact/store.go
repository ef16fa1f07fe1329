/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package artifact provides the content store used to hand payloads between workflow nodes.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/asgardeo/conduit/internal/system/config"
	"github.com/asgardeo/conduit/internal/system/log"
)

const loggerComponentName = "ArtifactStore"

const (
	metaPrefix = "artifact:meta:"
	dataPrefix = "artifact:data:"
	hashPrefix = "artifact:hash:"
)

// ErrNotFound is returned when no artifact exists for an id.
var ErrNotFound = errors.New("artifact not found")

// ErrStoreClosed is returned after Close.
var ErrStoreClosed = errors.New("artifact store is closed")

// Artifact describes a stored payload.
type Artifact struct {
	ID          string            `json:"id"`
	Name        string            `json:"name,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
	Size        int64             `json:"size"`
	SHA256      string            `json:"sha256"`
	CreatedAt   time.Time         `json:"createdAt"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	// Duplicate is set on Put when content with the same hash was stored before.
	Duplicate bool `json:"duplicate"`
	// FirstID is the id of the first artifact stored with this content.
	FirstID string `json:"firstId,omitempty"`
}

// NewArtifact is the input to Put.
type NewArtifact struct {
	Name        string
	ContentType string
	Data        []byte
	Metadata    map[string]string
}

// StoreInterface defines the artifact store operations.
type StoreInterface interface {
	Put(ctx context.Context, in NewArtifact) (*Artifact, error)
	Get(ctx context.Context, id string) (*Artifact, []byte, error)
	Stat(ctx context.Context, id string) (*Artifact, error)
	FindByHash(ctx context.Context, sha string) (*Artifact, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Store is a badger-backed StoreInterface.
type Store struct {
	db     *badger.DB
	logger *log.Logger
}

// NewStore opens the store described by cfg. An in-memory store is used when cfg.InMemory is
// set or no path is configured.
func NewStore(cfg config.StorageConfig) (*Store, error) {
	logger := log.GetLogger().With(log.String(log.LoggerKeyComponentName, loggerComponentName))

	opts := badger.DefaultOptions(cfg.ArtifactPath)
	if cfg.InMemory || cfg.ArtifactPath == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(&badgerLogger{logger: logger}).WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact store: %w", err)
	}
	logger.Debug("Artifact store opened", log.Bool("inMemory", opts.InMemory))
	return &Store{db: db, logger: logger}, nil
}

// Put stores a new artifact and returns its descriptor.
func (s *Store) Put(ctx context.Context, in NewArtifact) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sum := sha256.Sum256(in.Data)
	a := &Artifact{
		ID:          uuid.NewString(),
		Name:        in.Name,
		ContentType: in.ContentType,
		Size:        int64(len(in.Data)),
		SHA256:      hex.EncodeToString(sum[:]),
		CreatedAt:   time.Now().UTC(),
		Metadata:    in.Metadata,
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		hashKey := []byte(hashPrefix + a.SHA256)
		item, err := txn.Get(hashKey)
		switch {
		case err == nil:
			first, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			a.Duplicate = true
			a.FirstID = string(first)
		case errors.Is(err, badger.ErrKeyNotFound):
			a.FirstID = a.ID
			if err := txn.Set(hashKey, []byte(a.ID)); err != nil {
				return err
			}
		default:
			return err
		}

		meta, err := json.Marshal(a)
		if err != nil {
			return err
		}
		if err := txn.Set([]byte(metaPrefix+a.ID), meta); err != nil {
			return err
		}
		return txn.Set([]byte(dataPrefix+a.ID), in.Data)
	})
	if err != nil {
		return nil, s.wrap("store artifact", err)
	}

	s.logger.Debug("Stored artifact", log.String("artifactId", a.ID), log.Int64("size", a.Size),
		log.Bool("duplicate", a.Duplicate))
	return a, nil
}

// Get returns the descriptor and content of an artifact.
func (s *Store) Get(ctx context.Context, id string) (*Artifact, []byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	var a *Artifact
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if a, err = readMeta(txn, id); err != nil {
			return err
		}
		item, err := txn.Get([]byte(dataPrefix + id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, nil, s.wrap("read artifact", err)
	}
	return a, data, nil
}

// Stat returns the descriptor of an artifact without its content.
func (s *Store) Stat(ctx context.Context, id string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var a *Artifact
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		a, err = readMeta(txn, id)
		return err
	})
	if err != nil {
		return nil, s.wrap("read artifact", err)
	}
	return a, nil
}

// FindByHash returns the first artifact stored with the given SHA-256 hex digest.
func (s *Store) FindByHash(ctx context.Context, sha string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var a *Artifact
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(hashPrefix + sha))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		a, err = readMeta(txn, string(id))
		return err
	})
	if err != nil {
		return nil, s.wrap("find artifact", err)
	}
	return a, nil
}

// Delete removes an artifact. The hash index entry is removed when it points at this artifact.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		a, err := readMeta(txn, id)
		if err != nil {
			return err
		}
		hashKey := []byte(hashPrefix + a.SHA256)
		if item, err := txn.Get(hashKey); err == nil {
			first, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if string(first) == id {
				if err := txn.Delete(hashKey); err != nil {
					return err
				}
			}
		}
		if err := txn.Delete([]byte(metaPrefix + id)); err != nil {
			return err
		}
		return txn.Delete([]byte(dataPrefix + id))
	})
	if err != nil {
		return s.wrap("delete artifact", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func readMeta(txn *badger.Txn, id string) (*Artifact, error) {
	item, err := txn.Get([]byte(metaPrefix + id))
	if err != nil {
		return nil, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	var a Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, err
	}
	a.Duplicate = false
	return &a, nil
}

func (s *Store) wrap(op string, err error) error {
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return ErrNotFound
	case errors.Is(err, badger.ErrDBClosed):
		return ErrStoreClosed
	default:
		s.logger.Error("Artifact store failure", log.String("operation", op), log.Error(err))
		return fmt.Errorf("failed to %s: %w", op, err)
	}
}

// badgerLogger routes badger's internal logging to the component logger.
type badgerLogger struct {
	logger *log.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
