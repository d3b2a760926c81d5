package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/photonicat/photo_album_display/warp"
)

const (
	PHOTO_FILE = "photo.jpg"
	MODE_FILE  = "display_mode.json"
)

var (
	ErrNoPhoto   = errors.New("no photo stored")
	ErrNotJPEG   = errors.New("not a JPEG image")
	ErrUploading = errors.New("another upload is in progress")
)

// photoStore owns the data directory: the current photo and the persisted
// display mode.
type photoStore struct {
	dir       string
	uploading atomic.Bool
}

func newPhotoStore(dir string) (*photoStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &photoStore{dir: dir}, nil
}

func (s *photoStore) photoPath() string {
	return filepath.Join(s.dir, PHOTO_FILE)
}

func (s *photoStore) HasPhoto() bool {
	_, err := os.Stat(s.photoPath())
	return err == nil
}

// Open returns the current photo, or ErrNoPhoto.
func (s *photoStore) Open() (*os.File, error) {
	f, err := os.Open(s.photoPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoPhoto
	}
	return f, err
}

// Remove deletes the current photo, if any.
func (s *photoStore) Remove() error {
	err := os.Remove(s.photoPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Uploading reports whether Save is running.
func (s *photoStore) Uploading() bool {
	return s.uploading.Load()
}

// Save streams r into a temporary file, checks that it is a JPEG and renames
// it over the current photo. Only one Save runs at a time; a concurrent call
// fails with ErrUploading.
func (s *photoStore) Save(r io.Reader) (int64, error) {
	if !s.uploading.CompareAndSwap(false, true) {
		return 0, ErrUploading
	}
	defer s.uploading.Store(false)

	tmp, err := os.CreateTemp(s.dir, "upload-*.jpg")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return n, fmt.Errorf("write upload: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return n, err
	}
	// A header check alone accepts truncated files.
	if _, err := jpeg.Decode(tmp); err != nil {
		tmp.Close()
		return n, fmt.Errorf("%w: %v", ErrNotJPEG, err)
	}
	if err := tmp.Close(); err != nil {
		return n, err
	}
	if err := os.Rename(tmp.Name(), s.photoPath()); err != nil {
		return n, err
	}
	return n, nil
}

type modeFile struct {
	DisplayMode string `json:"display_mode"`
}

// LoadMode returns the persisted display mode. Dynamic is the default when
// nothing was saved yet.
func (s *photoStore) LoadMode() (warp.DisplayMode, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, MODE_FILE))
	if errors.Is(err, fs.ErrNotExist) {
		return warp.ModeDynamic, nil
	}
	if err != nil {
		return warp.ModeDynamic, err
	}
	var mf modeFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return warp.ModeDynamic, fmt.Errorf("decode %s: %w", MODE_FILE, err)
	}
	m, ok := warp.ParseDisplayMode(mf.DisplayMode)
	if !ok {
		log.Printf("unknown saved display mode %q, using %s", mf.DisplayMode, warp.ModeDynamic)
		return warp.ModeDynamic, nil
	}
	return m, nil
}

func (s *photoStore) SaveMode(m warp.DisplayMode) error {
	data, err := json.Marshal(modeFile{DisplayMode: m.String()})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, MODE_FILE), data, 0644)
}
