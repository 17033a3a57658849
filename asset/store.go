package asset

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/labiraus/svo-tracer-sub000/log"
	"github.com/labiraus/svo-tracer-sub000/octree"
)

// Extension of stored tree files.
const TreeExt = ".svo"

var (
	ErrTreeNotFound = errors.New("asset: tree not found")
	ErrInvalidName  = errors.New("asset: invalid tree name")
)

// Leading bytes of a zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var logger = log.New("asset")

// StoreOption configures a Store.
type StoreOption func(*Store)

// Compress saved trees with zstd.
func WithCompression() StoreOption {
	return func(s *Store) {
		s.compress = true
	}
}

// Store keeps encoded trees as files in a directory.
type Store struct {
	dir      string
	compress bool

	// zstd coders are shared by all calls.
	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// Create a store rooted at dir. The directory is created on the first save.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	s := &Store{dir: dir}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.compress {
		s.encoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return nil, fmt.Errorf("asset: create zstd encoder: %w", err)
		}
	}

	s.decoder, err = zstd.NewReader(nil)
	if err != nil {
		if s.encoder != nil {
			s.encoder.Close()
		}
		return nil, fmt.Errorf("asset: create zstd decoder: %w", err)
	}
	return s, nil
}

// Release the zstd coders.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.encoder != nil {
		s.encoder.Close()
		s.encoder = nil
	}
	if s.decoder != nil {
		s.decoder.Close()
		s.decoder = nil
	}
}

// Get the root directory of the store.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(s.dir, name+TreeExt), nil
}

// Returns true if a tree with the given name exists.
func (s *Store) Exists(name string) bool {
	p, err := s.path(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Load a tree. Returns ErrTreeNotFound if it does not exist and an error
// wrapping octree.ErrCorrupt if the file cannot be decoded.
func (s *Store) Load(name string) (*octree.Octree, error) {
	p, err := s.path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrTreeNotFound, name)
	} else if err != nil {
		return nil, fmt.Errorf("asset: read %s: %w", p, err)
	}

	tree, err := s.decode(data)
	if err != nil {
		return nil, fmt.Errorf("asset: load %s: %w", name, err)
	}
	logger.Debugf("loaded tree %q (%d blocks) from %s", name, tree.BlockCount, p)
	return tree, nil
}

// Decode a tree, inflating it first if it carries the zstd magic.
func (s *Store) decode(data []byte) (*octree.Octree, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		s.mu.Lock()
		if s.decoder == nil {
			s.mu.Unlock()
			return nil, errors.New("asset: store is closed")
		}
		raw, err := s.decoder.DecodeAll(data, nil)
		s.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", octree.ErrCorrupt, err)
		}
		data = raw
	}

	tree := &octree.Octree{}
	if err := tree.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return tree, nil
}

// Save a tree, replacing any existing tree with the same name. The file is
// written to a temporary name first and renamed into place.
func (s *Store) Save(name string, tree *octree.Octree) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}

	data, err := tree.MarshalBinary()
	if err != nil {
		return err
	}
	if s.compress {
		s.mu.Lock()
		if s.encoder == nil {
			s.mu.Unlock()
			return errors.New("asset: store is closed")
		}
		data = s.encoder.EncodeAll(data, nil)
		s.mu.Unlock()
	}

	if err = os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("asset: create store dir: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+"-*")
	if err != nil {
		return fmt.Errorf("asset: save %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("asset: save %s: %w", name, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("asset: save %s: %w", name, err)
	}
	if err = os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("asset: save %s: %w", name, err)
	}

	logger.Debugf("saved tree %q (%d bytes, compressed: %t) to %s", name, len(data), s.compress, p)
	return nil
}

// Delete a tree. Returns ErrTreeNotFound if it does not exist.
func (s *Store) Delete(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}

	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrTreeNotFound, name)
	} else if err != nil {
		return fmt.Errorf("asset: delete %s: %w", name, err)
	}
	return nil
}

// List the names of all stored trees in lexical order.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("asset: list %s: %w", s.dir, err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") || filepath.Ext(name) != TreeExt {
			continue
		}
		names = append(names, strings.TrimSuffix(name, TreeExt))
	}
	sort.Strings(names)
	return names, nil
}
