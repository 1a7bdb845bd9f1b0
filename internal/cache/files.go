package cache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const (
	rawExt        = ".pcm"
	compressedExt = ".pcm.zst"
)

// AudioWriter receives the bytes of one rendered audio file. Nothing is
// visible at the final path until Commit succeeds.
type AudioWriter interface {
	io.Writer
	// Commit finalizes the file and returns its path and the number of
	// uncompressed bytes written.
	Commit() (string, int64, error)
	// Abort discards the partial file.
	Abort() error
}

// FileStore keeps rendered audio on disk, one file per content hash,
// optionally zstd-compressed.
type FileStore struct {
	basePath         string
	compressionLevel int
}

// NewFileStore creates a file store rooted at basePath. A compression level
// of 0 stores raw PCM.
func NewFileStore(basePath string, compressionLevel int) (*FileStore, error) {
	if compressionLevel < 0 || compressionLevel > 22 {
		return nil, fmt.Errorf("compression level must be between 0 and 22, got %d", compressionLevel)
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{
		basePath:         basePath,
		compressionLevel: compressionLevel,
	}, nil
}

// Dir returns the root directory of the store.
func (s *FileStore) Dir() string {
	return s.basePath
}

// PathFor returns the path the audio for key is stored at.
func (s *FileStore) PathFor(key string) string {
	ext := rawExt
	if s.compressionLevel > 0 {
		ext = compressedExt
	}
	shard := key
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(s.basePath, shard, key+ext)
}

// Create starts writing the audio for key.
func (s *FileStore) Create(key string) (AudioWriter, error) {
	if key == "" || strings.ContainsAny(key, `/\`) {
		return nil, fmt.Errorf("invalid cache key %q", key)
	}

	path := s.PathFor(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Write to temp file first, then rename
	file, err := os.CreateTemp(filepath.Dir(path), key+".*.tmp")
	if err != nil {
		return nil, err
	}

	w := &fileWriter{path: path, file: file, sink: file}
	if s.compressionLevel > 0 {
		enc, err := zstd.NewWriter(file,
			zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(s.compressionLevel)))
		if err != nil {
			_ = file.Close()
			_ = os.Remove(file.Name())
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		w.enc = enc
		w.sink = enc
	}
	return w, nil
}

// Open returns a reader over the uncompressed audio stored at path.
func (s *FileStore) Open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".zst") {
		return file, nil
	}

	dec, err := zstd.NewReader(file)
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return &decodingReader{dec: dec, file: file}, nil
}

// ReadAll returns the uncompressed audio stored at path.
func (s *FileStore) ReadAll(path string) ([]byte, error) {
	rc, err := s.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return data, nil
}

// Remove deletes the given files. Files that are already gone are skipped;
// the number of removed files is returned with the first other error.
func (s *FileStore) Remove(paths []string) (int, error) {
	var (
		removed  int
		firstErr error
	)
	for _, p := range paths {
		err := os.Remove(p)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		case firstErr == nil:
			firstErr = err
		}
	}
	return removed, firstErr
}

type fileWriter struct {
	path string
	file *os.File
	enc  *zstd.Encoder
	sink io.Writer
	n    int64
	done bool
}

func (w *fileWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, os.ErrClosed
	}
	n, err := w.sink.Write(p)
	w.n += int64(n)
	return n, err
}

func (w *fileWriter) Commit() (string, int64, error) {
	if w.done {
		return "", 0, os.ErrClosed
	}
	w.done = true

	tempPath := w.file.Name()
	if w.enc != nil {
		if err := w.enc.Close(); err != nil {
			_ = w.file.Close()
			_ = os.Remove(tempPath)
			return "", 0, err
		}
	}
	if err := w.file.Close(); err != nil {
		_ = os.Remove(tempPath)
		return "", 0, err
	}

	// Atomic rename
	if err := os.Rename(tempPath, w.path); err != nil {
		_ = os.Remove(tempPath)
		return "", 0, err
	}
	return w.path, w.n, nil
}

func (w *fileWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	if w.enc != nil {
		_ = w.enc.Close()
	}
	_ = w.file.Close()
	return os.Remove(w.file.Name())
}

type decodingReader struct {
	dec  *zstd.Decoder
	file *os.File
}

func (r *decodingReader) Read(p []byte) (int, error) {
	return r.dec.Read(p)
}

func (r *decodingReader) Close() error {
	r.dec.Close()
	return r.file.Close()
}
