package wardrobe

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromacloset/chromacloset/internal/capture"
	"github.com/chromacloset/chromacloset/internal/extraction"
	"github.com/chromacloset/chromacloset/internal/imaging"
)

// IDGenerator generates unique identifiers for items and sessions.
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time.
type TimeSource interface {
	Now() time.Time
}

// Camera is the acquire/release surface of a live camera device.
type Camera interface {
	Open(ctx context.Context) error
	Acquire(ctx context.Context) (capture.Frame, error)
	Close()
}

// defaultIDGenerator produces 128-bit random hex identifiers. Uniqueness
// within the store's lifetime is required; a collision is a correctness
// bug, not a recoverable condition.
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return hex.EncodeToString(buf[:])
}

// defaultTimeSource provides the current time.
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service orchestrates the scan workflow: capture, preprocessing,
// extraction, review, and commit into the inventory.
type Service struct {
	store      Store
	extractor  extraction.Extractor
	images     ImageStorage
	camera     Camera
	idGen      IDGenerator
	timeSource TimeSource

	mu       sync.Mutex
	sessions map[string]*ReviewSession
}

// NewService creates a Service with default ID generator and time source.
// camera may be nil when no device is configured; camera scans then fail
// with a device-access error and the caller falls back to uploads.
func NewService(store Store, extractor extraction.Extractor, images ImageStorage, camera Camera) *Service {
	return NewServiceWithDeps(store, extractor, images, camera, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a Service with custom dependencies for testing.
func NewServiceWithDeps(store Store, extractor extraction.Extractor, images ImageStorage, camera Camera, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		store:      store,
		extractor:  extractor,
		images:     images,
		camera:     camera,
		idGen:      idGen,
		timeSource: timeSrc,
		sessions:   make(map[string]*ReviewSession),
	}
}

// ScanStatus is the caller-facing view of a review session.
type ScanStatus struct {
	Token      string
	State      SessionState
	Message    string
	Warning    string
	Candidates []Candidate
}

// CommitResult summarizes a committed scan.
type CommitResult struct {
	ScanTimestamp int64
	Items         []*Item
	Warning       string
}

// StartScan runs one capture-through-review cycle: acquire a raw image
// from the source, preprocess it, send it for extraction, and stage the
// results for review. On any failure the inventory is untouched and the
// error carries the taxonomy sentinel for the caller to map.
func (s *Service) StartScan(ctx context.Context, src capture.Source, mode extraction.Mode) (*ScanStatus, error) {
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown scan mode: %q", mode)
	}

	session := NewReviewSession(s.idGen.Generate(), mode)
	s.register(session)

	if err := session.BeginCapture(); err != nil {
		s.teardown(session.Token())
		return nil, err
	}

	frame, err := src.Acquire(ctx)
	if err != nil {
		s.teardown(session.Token())
		return nil, fmt.Errorf("acquiring image: %w", err)
	}

	contentType := imaging.NormalizeContentType(frame.ContentType, frame.Filename)
	img, err := imaging.Prepare(frame.Data, contentType, mode.ImagingMode())
	if err != nil {
		s.teardown(session.Token())
		return nil, fmt.Errorf("preparing image: %w", err)
	}

	if err := session.BeginPreview(img); err != nil {
		s.teardown(session.Token())
		return nil, err
	}

	result, err := s.extractor.Extract(ctx, img, mode)
	if err != nil {
		if ferr := session.FailExtraction(); ferr != nil {
			slog.Warn("Session already left previewing", "token", session.Token(), "error", ferr)
		}
		s.teardown(session.Token())
		return nil, fmt.Errorf("extracting items: %w", err)
	}

	// A session torn down while the call was in flight discards the
	// result here instead of relying on teardown timing.
	if err := session.CompleteExtraction(result, s.idGen.Generate); err != nil {
		slog.Info("Dropped extraction result for inactive session", "token", session.Token())
		return nil, fmt.Errorf("applying extraction result: %w", err)
	}

	status := s.status(session)
	if session.State() == StateDiscarded {
		// Zero items detected: terminal outcome, session is gone.
		s.teardown(session.Token())
	}
	return status, nil
}

// StartCameraScan grabs a frame from the configured camera and runs the
// scan. The camera is a scoped resource: it is released on every exit
// path, success or failure.
func (s *Service) StartCameraScan(ctx context.Context, mode extraction.Mode) (*ScanStatus, error) {
	if s.camera == nil {
		return nil, fmt.Errorf("%w: no camera device configured", capture.ErrDeviceAccessDenied)
	}
	if err := s.camera.Open(ctx); err != nil {
		return nil, fmt.Errorf("opening camera: %w", err)
	}
	defer s.camera.Close()

	return s.StartScan(ctx, s.camera, mode)
}

// SessionStatus returns the current view of an active session.
func (s *Service) SessionStatus(token string) (*ScanStatus, error) {
	session, ok := s.lookup(token)
	if !ok {
		return nil, fmt.Errorf("session not found: %s", token)
	}
	return s.status(session), nil
}

// RemoveCandidate removes one staged item from a review batch.
func (s *Service) RemoveCandidate(token, candidateID string) (*ScanStatus, error) {
	session, ok := s.lookup(token)
	if !ok {
		return nil, fmt.Errorf("session not found: %s", token)
	}
	if err := session.RemoveCandidate(candidateID); err != nil {
		return nil, err
	}
	return s.status(session), nil
}

// CommitScan accepts the remaining batch: every item gets a freshly
// generated unique identifier and a creation timestamp, and the batch is
// appended to the inventory atomically along with one scan record.
func (s *Service) CommitScan(token string) (*CommitResult, error) {
	session, ok := s.lookup(token)
	if !ok {
		return nil, fmt.Errorf("session not found: %s", token)
	}

	extracted, err := session.Commit()
	if err != nil {
		return nil, err
	}

	now := s.timeSource.Now()
	ts := now.UnixMilli()

	imageRef := ""
	if img := session.Image(); len(img.Data) > 0 && s.images != nil {
		ref, err := s.images.Save(fmt.Sprintf("scan_%d.jpg", ts), img.Data)
		if err != nil {
			slog.Warn("Failed to save scan image", "error", err)
		} else {
			imageRef = ref
		}
	}

	items := make([]*Item, 0, len(extracted))
	for _, ex := range extracted {
		items = append(items, itemFromExtraction(ex, s.idGen.Generate(), imageRef, now))
	}

	if err := s.store.Append(items, ts); err != nil {
		return nil, fmt.Errorf("appending to inventory: %w", err)
	}
	s.teardown(token)

	return &CommitResult{
		ScanTimestamp: ts,
		Items:         items,
		Warning:       s.store.LastWarning(),
	}, nil
}

// DiscardScan abandons a session. Discarding an in-review batch destroys
// work in progress and requires explicit confirmation.
func (s *Service) DiscardScan(token string, confirmed bool) error {
	session, ok := s.lookup(token)
	if !ok {
		return fmt.Errorf("session not found: %s", token)
	}
	if err := session.Discard(confirmed); err != nil {
		return err
	}
	s.teardown(token)
	return nil
}

// Items returns the committed inventory.
func (s *Service) Items() []*Item {
	return s.store.Items()
}

// ItemImage returns the stored source image for a committed item.
func (s *Service) ItemImage(id string) ([]byte, string, error) {
	item, ok := s.store.Item(id)
	if !ok {
		return nil, "", fmt.Errorf("item not found: %s", id)
	}
	if item.ImageRef == "" || s.images == nil {
		return nil, "", fmt.Errorf("no image stored for item: %s", id)
	}
	data, err := s.images.Get(item.ImageRef)
	if err != nil {
		return nil, "", fmt.Errorf("getting item image: %w", err)
	}
	return data, "image/jpeg", nil
}

// Scans returns the scan history, newest first.
func (s *Service) Scans() []*Scan {
	return s.store.Scans()
}

// TotalScanned returns the cumulative lifetime-scanned counter.
func (s *Service) TotalScanned() int {
	return s.store.TotalScanned()
}

// DeleteScanGroup removes a scan record, its items, and its stored image.
func (s *Service) DeleteScanGroup(timestamp int64) error {
	var imageRef string
	for _, scan := range s.store.Scans() {
		if scan.Timestamp == timestamp {
			imageRef = scan.ImageRef
			break
		}
	}

	if err := s.store.DeleteScanGroup(timestamp); err != nil {
		return err
	}

	if imageRef != "" && s.images != nil {
		if err := s.images.Delete(imageRef); err != nil {
			slog.Warn("Failed to delete scan image", "ref", imageRef, "error", err)
		}
	}
	return nil
}

// Reset clears the entire inventory, scan history, counters, branding
// state, and stored scan images. Irreversible; callers must have obtained
// explicit confirmation upstream.
func (s *Service) Reset() error {
	if s.images != nil {
		for _, scan := range s.store.Scans() {
			if scan.ImageRef == "" {
				continue
			}
			if err := s.images.Delete(scan.ImageRef); err != nil {
				slog.Warn("Failed to delete scan image", "ref", scan.ImageRef, "error", err)
			}
		}
	}
	return s.store.Reset()
}

// BrandIcon returns the optional branding image.
func (s *Service) BrandIcon() ([]byte, string) {
	return s.store.BrandIcon()
}

// SetBrandIcon stores the branding image.
func (s *Service) SetBrandIcon(data []byte, contentType string) {
	s.store.SetBrandIcon(data, contentType)
}

// StoreWarning returns the inventory's most recent persistence warning.
func (s *Service) StoreWarning() string {
	return s.store.LastWarning()
}

func (s *Service) status(session *ReviewSession) *ScanStatus {
	return &ScanStatus{
		Token:      session.Token(),
		State:      session.State(),
		Message:    session.Message(),
		Warning:    session.Warning(),
		Candidates: session.Candidates(),
	}
}

func (s *Service) register(session *ReviewSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Token()] = session
}

func (s *Service) lookup(token string) (*ReviewSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	return session, ok
}

func (s *Service) teardown(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}
