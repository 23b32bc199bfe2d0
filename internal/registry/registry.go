// Package registry keeps the suspect reference embeddings, backed by a directory of face images.
package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog/log"

	"github.com/andresmejia3/lookout/internal/face"
	"github.com/andresmejia3/lookout/internal/types"
)

var imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// Registry maps record keys to reference embeddings. The directory is the
// source of truth; the in-memory map mirrors it.
type Registry struct {
	dir string
	det face.Detector

	mu      sync.RWMutex
	records map[string]types.SuspectRecord
}

// New prepares a registry over dir, creating it if needed. Call Load to read existing images.
func New(dir string, det face.Detector) (*Registry, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create suspects directory: %w", err)
	}
	return &Registry{
		dir:     dir,
		det:     det,
		records: make(map[string]types.SuspectRecord),
	}, nil
}

func (r *Registry) Dir() string { return r.dir }

// DisplayName returns the identity part of a record key: everything before the first underscore.
func DisplayName(key string) string {
	if i := strings.IndexByte(key, '_'); i >= 0 {
		return key[:i]
	}
	return key
}

// ValidateIdentity rejects names that cannot be used as a key prefix.
func ValidateIdentity(identity string) error {
	switch {
	case strings.TrimSpace(identity) == "":
		return fmt.Errorf("%w: empty name", types.ErrInvalidIdentity)
	case strings.ContainsAny(identity, `/\`) || strings.Contains(identity, ".."):
		return fmt.Errorf("%w: %q contains a path separator", types.ErrInvalidIdentity, identity)
	case strings.ContainsRune(identity, '_'):
		return fmt.Errorf("%w: %q contains '_', which separates the name from the photo", types.ErrInvalidIdentity, identity)
	}
	return nil
}

func isImage(name string) bool {
	return imageExts[strings.ToLower(filepath.Ext(name))]
}

func stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// imageFiles lists the image files in the directory, sorted by name.
func (r *Registry) imageFiles() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read suspects directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !isImage(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	return files, nil
}

// embed detects faces in img and returns the largest.
func (r *Registry) embed(ctx context.Context, img image.Image) (types.Face, error) {
	faces, err := r.det.Detect(ctx, img)
	if err != nil {
		return types.Face{}, err
	}
	best, ok := face.Largest(faces)
	if !ok {
		return types.Face{}, types.ErrNoFaceDetected
	}
	return best, nil
}

// Load rebuilds the registry from the directory. Files that cannot be decoded
// or contain no face are skipped. progress, if non-nil, is called after each file.
func (r *Registry) Load(ctx context.Context, progress func(done, total int)) (int, error) {
	files, err := r.imageFiles()
	if err != nil {
		return 0, err
	}

	loaded := make(map[string]types.SuspectRecord, len(files))
	for i, name := range files {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if rec, err := r.loadFile(ctx, name); err != nil {
			log.Warn().Err(err).Str("file", name).Msg("skipping suspect image")
		} else {
			loaded[rec.Key] = rec
		}
		if progress != nil {
			progress(i+1, len(files))
		}
	}

	r.mu.Lock()
	r.records = loaded
	r.mu.Unlock()

	log.Info().Int("loaded", len(loaded)).Int("files", len(files)).Str("dir", r.dir).Msg("suspect registry loaded")
	return len(loaded), nil
}

func (r *Registry) loadFile(ctx context.Context, name string) (types.SuspectRecord, error) {
	path := filepath.Join(r.dir, name)
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return types.SuspectRecord{}, fmt.Errorf("%w: %v", types.ErrImageDecode, err)
	}
	best, err := r.embed(ctx, img)
	if err != nil {
		return types.SuspectRecord{}, err
	}
	key := stem(name)
	return types.SuspectRecord{
		Key:         key,
		DisplayName: DisplayName(key),
		SourcePath:  path,
		Embedding:   best.Embedding,
	}, nil
}

// Add registers a new reference photo for identity. Nothing is written unless
// the image decodes and contains a face.
func (r *Registry) Add(ctx context.Context, identity, filename string, data []byte) (types.SuspectRecord, error) {
	if err := ValidateIdentity(identity); err != nil {
		return types.SuspectRecord{}, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return types.SuspectRecord{}, fmt.Errorf("%w: %v", types.ErrImageDecode, err)
	}

	best, err := r.embed(ctx, img)
	if err != nil {
		return types.SuspectRecord{}, err
	}

	photo := sanitizeStem(stem(filename))
	key := identity + "_" + photo

	var path string
	switch format {
	case "jpeg":
		path = filepath.Join(r.dir, key+".jpg")
		err = writeFileAtomic(path, data)
	case "png":
		path = filepath.Join(r.dir, key+".png")
		err = writeFileAtomic(path, data)
	default:
		// Other decodable formats are stored as PNG so Load can read them back.
		var buf bytes.Buffer
		if err = imaging.Encode(&buf, img, imaging.PNG); err == nil {
			path = filepath.Join(r.dir, key+".png")
			err = writeFileAtomic(path, buf.Bytes())
		}
	}
	if err != nil {
		return types.SuspectRecord{}, fmt.Errorf("failed to save suspect image: %w", err)
	}

	rec := types.SuspectRecord{
		Key:         key,
		DisplayName: DisplayName(key),
		SourcePath:  path,
		Embedding:   best.Embedding,
	}

	r.mu.Lock()
	r.records[key] = rec
	r.mu.Unlock()

	log.Info().Str("identity", identity).Str("key", key).Msg("suspect added")
	return rec, nil
}

func sanitizeStem(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		case r == ' ':
			return '-'
		}
		return -1
	}, s)
	s = strings.Trim(s, ".")
	if s == "" {
		return "photo"
	}
	return s
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func matches(key, identity string) bool {
	return key == identity || strings.HasPrefix(key, identity+"_")
}

// Remove deletes every photo and record of identity. It returns the number of
// keys removed, or ErrNotFound if there were none.
func (r *Registry) Remove(identity string) (int, error) {
	if strings.TrimSpace(identity) == "" || strings.ContainsAny(identity, `/\`) {
		return 0, fmt.Errorf("%w: %q", types.ErrInvalidIdentity, identity)
	}

	files, err := r.imageFiles()
	if err != nil {
		return 0, err
	}

	removed := make(map[string]bool)
	var errs []error
	for _, name := range files {
		key := stem(name)
		if !matches(key, identity) {
			continue
		}
		if err := os.Remove(filepath.Join(r.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed[key] = true
	}

	r.mu.Lock()
	for key := range r.records {
		if matches(key, identity) {
			delete(r.records, key)
			removed[key] = true
		}
	}
	r.mu.Unlock()

	if len(errs) > 0 {
		return len(removed), fmt.Errorf("failed to delete suspect files: %w", errors.Join(errs...))
	}
	if len(removed) == 0 {
		return 0, fmt.Errorf("%w: %s", types.ErrNotFound, identity)
	}
	log.Info().Str("identity", identity).Int("removed", len(removed)).Msg("suspect removed")
	return len(removed), nil
}

// List returns the sorted stems of the image files in the directory.
func (r *Registry) List() ([]string, error) {
	files, err := r.imageFiles()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, stem(f))
	}
	sort.Strings(names)
	return names, nil
}

// Snapshot returns a copy of the current records, ordered by key.
func (r *Registry) Snapshot() []types.SuspectRecord {
	r.mu.RLock()
	out := make([]types.SuspectRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
