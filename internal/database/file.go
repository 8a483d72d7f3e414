package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/npezzotti/go-chatrelay/internal/types"
	"github.com/rs/zerolog"
)

// FilePersister keeps the whole room map in a single JSON file that is
// rewritten on every save, so each save costs the size of all rooms
// including inline attachments.
type FilePersister struct {
	log  zerolog.Logger
	path string
}

func NewFilePersister(logger zerolog.Logger, path string) (*FilePersister, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	return &FilePersister{
		log:  logger.With().Str("component", "file_persister").Str("path", path).Logger(),
		path: path,
	}, nil
}

func (p *FilePersister) Load(_ context.Context) (map[string]*types.Room, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoData
		}
		return nil, fmt.Errorf("read rooms file: %w", err)
	}

	rooms := make(map[string]*types.Room)
	if err := json.Unmarshal(data, &rooms); err != nil {
		return nil, fmt.Errorf("parse rooms file: %w", err)
	}

	p.log.Debug().Str("size", humanize.Bytes(uint64(len(data)))).Msg("read rooms file")
	return rooms, nil
}

// Save writes every room regardless of changed. The file is replaced by
// rename so readers never observe a partial write.
func (p *FilePersister) Save(_ context.Context, rooms map[string]*types.Room, _ []string) error {
	data, err := json.MarshalIndent(rooms, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rooms: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p.path), filepath.Base(p.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("replace rooms file: %w", err)
	}

	p.log.Debug().Str("size", humanize.Bytes(uint64(len(data)))).Msg("saved rooms to file")
	return nil
}

func (p *FilePersister) Ping(_ context.Context) error {
	_, err := os.Stat(filepath.Dir(p.path))
	return err
}

func (p *FilePersister) Close() error {
	return nil
}
