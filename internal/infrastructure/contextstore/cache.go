package contextstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kellogg/sentrychat/internal/domain/entity"
)

// cacheFile is the on-disk shape at cache/embeddings_<domain>_<cache-version>.json
// (§6). sourcesHash invalidates the cache when any source's path, size, or
// modification time changes.
type cacheFile struct {
	SourcesHash  string                `json:"sources_hash"`
	ChunkSize    int                   `json:"chunk_size"`
	ChunkOverlap int                   `json:"chunk_overlap"`
	Chunks       []entity.ContextChunk `json:"chunks"`
}

// sourceDigest hashes each source's path, size, and mtime so any on-disk
// change invalidates the cache without needing to hash file contents.
func sourceDigest(root string, sources []entity.ContextSourceSpec) string {
	type fingerprint struct {
		Path  string
		Size  int64
		MTime int64
	}
	fps := make([]fingerprint, 0, len(sources))
	for _, s := range sources {
		fp := fingerprint{Path: s.Path}
		if info, err := os.Stat(filepath.Join(root, s.Path)); err == nil {
			fp.Size = info.Size()
			fp.MTime = info.ModTime().UnixNano()
		}
		fps = append(fps, fp)
	}
	sort.Slice(fps, func(i, j int) bool { return fps[i].Path < fps[j].Path })

	h := sha256.New()
	for _, fp := range fps {
		fmt.Fprintf(h, "%s|%d|%d\n", fp.Path, fp.Size, fp.MTime)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func cachePath(dir string, domain entity.Domain, version int) string {
	return filepath.Join(dir, fmt.Sprintf("embeddings_%s_%d.json", domain, version))
}

// loadCache reads the cache file for (domain, version) and returns ok=false
// if it is missing, corrupt, or its sources hash no longer matches.
func loadCache(dir string, domain entity.Domain, version int, wantHash string) (cacheFile, bool) {
	path := cachePath(dir, domain, version)
	data, err := os.ReadFile(path)
	if err != nil {
		return cacheFile{}, false
	}
	var cf cacheFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return cacheFile{}, false
	}
	if cf.SourcesHash != wantHash {
		return cacheFile{}, false
	}
	return cf, true
}

// saveCache writes via a temp file + rename so a reader never observes a
// torn write (§5 "create-truncate-rename or equivalent").
func saveCache(dir string, domain entity.Domain, version int, cf cacheFile) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cf, "", "  ")
	if err != nil {
		return err
	}

	finalPath := cachePath(dir, domain, version)
	tmp, err := os.CreateTemp(dir, ".embeddings-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, finalPath)
}
