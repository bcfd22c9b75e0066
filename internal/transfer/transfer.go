// Package transfer implements TransferEngine (§4.5): the one-connection-
// per-transfer download/upload protocol on port 7501, SHA-256 resume logic,
// .part staging, and the ban-triggered mid-transfer abort signal.
package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"

	"github.com/nexusbbs/nexusd/internal/logging"
)

var log = logging.For("transfer")

// Direction of a transfer, for ConnectionMonitor (§4.4 "Bans / Trusts /
// ConnectionMonitor").
type Direction string

const (
	Download Direction = "download"
	Upload   Direction = "upload"
)

// ChunkSize is the typical FileData payload size (§4.5 "size ≤ 256 KiB typical").
const ChunkSize = 256 * 1024

// AbortPollChunk is the streaming-loop poll granularity (§4.5 "streaming
// loops poll between 64 KiB chunks").
const AbortPollChunk = 64 * 1024

// HashingKeepaliveInterval is how often FileHashing keepalives are emitted
// during a long SHA-256 computation (§4.5).
const HashingKeepaliveInterval = 10 * time.Second

// Transfer tracks one in-flight download or upload for ConnectionMonitor
// and for ban-triggered abort.
type Transfer struct {
	ID               string
	Direction        Direction
	Path             string
	RemoteIP         string
	TotalSize        int64
	bytesTransferred atomic.Int64
	StartedAt        time.Time

	aborted atomic.Bool
}

func New(direction Direction, path, remoteIP string, totalSize int64) *Transfer {
	return &Transfer{
		ID:        uuid.NewString(),
		Direction: direction,
		Path:      path,
		RemoteIP:  remoteIP,
		TotalSize: totalSize,
		StartedAt: time.Now(),
	}
}

func (t *Transfer) AddBytes(n int64) {
	t.bytesTransferred.Add(n)
}

func (t *Transfer) BytesTransferred() int64 {
	return t.bytesTransferred.Load()
}

// Abort trips the abort signal; streaming loops observe it between chunks
// (§4.5 "Ban mid-transfer").
func (t *Transfer) Abort() {
	t.aborted.Store(true)
}

func (t *Transfer) Aborted() bool {
	return t.aborted.Load()
}

// Registry tracks every in-flight transfer, keyed by id. The ban-triggered
// abort sweep scans all transfers for a matching remote IP.
type Registry struct {
	mu        sync.RWMutex
	byID      map[string]*Transfer
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Transfer)}
}

func (r *Registry) Add(t *Transfer) {
	r.mu.Lock()
	r.byID[t.ID] = t
	r.mu.Unlock()
}

func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

func (r *Registry) Snapshot() []*Transfer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Transfer, 0, len(r.byID))
	for _, t := range r.byID {
		out = append(out, t)
	}
	return out
}

// AbortByIP trips the abort signal on every transfer from remoteIP (§4.2
// "Post-ban termination": "signals abort on transfers whose IP matches").
func (r *Registry) AbortByIP(remoteIP string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, t := range r.byID {
		if t.RemoteIP == remoteIP {
			t.Abort()
			n++
		}
	}
	return n
}

// EmptyFileHash is sha256("") (§4.5 "zero-byte file -> FileStart with
// empty-file hash").
var EmptyFileHash = hex.EncodeToString(sha256.New().Sum(nil))

// HashFile computes the SHA-256 of the file at path, calling onTick every
// HashingKeepaliveInterval while the read is in progress so the caller can
// emit FileHashing keepalives (§4.5 step 4).
func HashFile(path string, onTick func()) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	done := make(chan struct{})
	wg := conc.NewWaitGroup()
	if onTick != nil {
		wg.Go(func() {
			ticker := time.NewTicker(HashingKeepaliveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					onTick()
				}
			}
		})
	}
	_, err = io.Copy(h, f)
	close(done)
	wg.Wait()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashPrefix computes sha256(F[0:n]) for resume-offset comparison (§4.5 step 3).
func HashPrefix(path string, n int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyN(h, f, n); err != nil && err != io.EOF {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ResumeOffset implements §4.5 step 3's resume decision: if clientSize is 0,
// send everything; else if the server file's first clientSize bytes hash to
// clientSHA256, resume from clientSize; else send everything.
func ResumeOffset(serverPath string, serverSize, clientSize int64, clientSHA256 string) (int64, error) {
	if clientSize == 0 {
		return 0, nil
	}
	if clientSize > serverSize {
		return 0, nil
	}
	prefixHash, err := HashPrefix(serverPath, clientSize)
	if err != nil {
		return 0, err
	}
	if prefixHash == clientSHA256 {
		return clientSize, nil
	}
	return 0, nil
}

// ErrAborted signals a ban-triggered mid-transfer abort (§4.5).
var ErrAborted = errors.New("transfer: aborted")

// PartPath returns the staging filename for an in-progress upload (§4.5
// "streams into it ... on match renames to final name").
func PartPath(destPath string) string {
	return destPath + ".part"
}

// FinalizeUpload verifies the staged file's hash and atomically renames it
// into place, per §4.5's upload protocol.
func FinalizeUpload(partPath, finalPath, expectedSHA256 string) error {
	got, err := HashFile(partPath, nil)
	if err != nil {
		return err
	}
	if got != expectedSHA256 {
		os.Remove(partPath)
		return ErrHashMismatch
	}
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return err
	}
	return os.Rename(partPath, finalPath)
}

// ErrHashMismatch is returned by FinalizeUpload when the staged file's hash
// does not match the client-declared hash (error_kind "hash_mismatch").
var ErrHashMismatch = errors.New("transfer: uploaded content hash mismatch")
