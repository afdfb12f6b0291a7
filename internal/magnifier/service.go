// Package magnifier drives the event -> frame -> cursor -> grab pipeline on
// a single control goroutine. Samples are processed strictly in arrival
// order and none are dropped: a frame that was already superseded when it
// finished is still applied and then immediately replaced. That keeps the
// pipeline FIFO-simple at the cost of occasional catch-up frames under load,
// a documented trade-off rather than a defect.
package magnifier

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hugo/loupe/internal/config"
	"github.com/hugo/loupe/internal/cursor"
	"github.com/hugo/loupe/internal/grab"
	"github.com/hugo/loupe/internal/models"
)

// PointerSample is one pointer position report. Transient; consumed
// immediately by the loop.
type PointerSample struct {
	X, Y int16
	Time time.Time
}

// Source produces a magnified frame for a pointer position. Treated as an
// external collaborator with bounded latency.
type Source interface {
	Frame(x, y int16) (*cursor.Frame, error)
}

// Recorder persists session diagnostics. *database.Repository satisfies it;
// a nil Recorder disables persistence.
type Recorder interface {
	Create(event *models.SessionEvent) error
	CreateErrorLog(errorLog *models.ErrorLog) error
}

// Service is the update loop. Exactly one per magnifier session; it is the
// only caller of the cursor manager and grab controller.
type Service struct {
	config   *config.Config
	cursors  *cursor.Manager
	grabber  *grab.Controller
	source   Source
	samples  <-chan PointerSample
	recorder Recorder
	stopChan chan struct{}
	running  bool
}

func NewService(cfg *config.Config, cursors *cursor.Manager, grabber *grab.Controller,
	source Source, samples <-chan PointerSample, recorder Recorder) *Service {
	return &Service{
		config:   cfg,
		cursors:  cursors,
		grabber:  grabber,
		source:   source,
		samples:  samples,
		recorder: recorder,
		stopChan: make(chan struct{}),
	}
}

// Start runs the loop until the context is cancelled, Stop is called, or the
// sample channel closes. The grab is always released on the way out so the
// session never exits with the default cursor hidden.
func (s *Service) Start(ctx context.Context) error {
	if s.running {
		return fmt.Errorf("magnifier is already running")
	}
	s.running = true
	log.Printf("Starting magnifier loop (cursor %dx%d, scale %dx)",
		s.config.Magnifier.CursorSize, s.config.Magnifier.CursorSize, s.config.Magnifier.Scale)

	defer func() {
		s.shutdown()
		s.running = false
	}()

	for {
		select {
		case <-ctx.Done():
			log.Println("Magnifier stopped by context")
			return ctx.Err()

		case <-s.stopChan:
			log.Println("Magnifier stopped")
			return nil

		case sample, ok := <-s.samples:
			if !ok {
				log.Println("Sample channel closed, ending session")
				return nil
			}
			s.applySample(ctx, sample)
		}
	}
}

// Stop requests termination. Safe to call at any time, including while a
// frame is mid-construction; a handle finished after Stop is destroyed
// instead of installed.
func (s *Service) Stop() {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
}

func (s *Service) IsRunning() bool {
	return s.running
}

// applySample runs steps 2-5 of the pipeline for one pointer sample.
func (s *Service) applySample(ctx context.Context, sample PointerSample) {
	frame, err := s.source.Frame(sample.X, sample.Y)
	if err != nil {
		log.Printf("Frame source failed at (%d,%d): %v", sample.X, sample.Y, err)
		s.recordError("source", err)
		return
	}

	handle, err := s.cursors.Create(frame)
	if err != nil {
		// InvalidFrame and allocation refusals recover on the next sample.
		log.Printf("Cursor creation failed for generation %d: %v", frame.Generation, err)
		s.recordError("cursor", err)
		return
	}

	if s.stopping(ctx) {
		// Released mid-construction: discard, never install.
		if err := s.cursors.Destroy(handle); err != nil {
			log.Printf("Failed to destroy in-flight handle: %v", err)
		}
		return
	}

	start := time.Now()
	switch s.grabber.State() {
	case grab.Detached:
		if err := s.grabber.Acquire(handle); err != nil {
			if derr := s.cursors.Destroy(handle); derr != nil {
				log.Printf("Failed to destroy unacquired handle: %v", derr)
			}
			s.recover("grab", err)
			return
		}
		s.confirm(handle, models.KindAcquire, time.Since(start))

	case grab.Active:
		prev, err := s.grabber.Swap(handle)
		if err != nil {
			if derr := s.cursors.Destroy(handle); derr != nil {
				log.Printf("Failed to destroy unswapped handle: %v", derr)
			}
			s.recover("grab", err)
			return
		}
		// prev is only handed back after the server acknowledged the swap.
		if err := s.cursors.Destroy(prev); err != nil {
			log.Printf("Failed to destroy superseded handle: %v", err)
			s.recordError("cursor", err)
		}
		s.confirm(handle, models.KindSwap, time.Since(start))

	default:
		// Errored or mid-transition: drop this handle, recover, and let the
		// next sample re-acquire.
		if err := s.cursors.Destroy(handle); err != nil {
			log.Printf("Failed to destroy handle in state %s: %v", s.grabber.State(), err)
		}
		s.recoverErrored()
	}
}

// recover implements the fallback policy: log, then restore the default
// system cursor rather than leave an inconsistent visible state. GrabDenied
// leaves nothing to clean up; re-acquisition happens on the next sample.
func (s *Service) recover(component string, err error) {
	log.Printf("Grab operation failed: %v", err)
	s.recordError(component, err)

	switch s.grabber.State() {
	case grab.Errored:
		s.recoverErrored()
	case grab.Active:
		prev, rerr := s.grabber.Release()
		if rerr != nil && !errors.Is(rerr, grab.ErrAlreadyDetached) {
			log.Printf("Failed to release grab during recovery: %v", rerr)
			s.recordError("grab", rerr)
		}
		if derr := s.cursors.Destroy(prev); derr != nil {
			log.Printf("Failed to destroy released handle: %v", derr)
		}
		s.record(models.KindRelease, prev, false, 0)
	}
}

// recoverErrored resets the controller without assuming the server-side grab
// still exists, destroying whatever handle it was left holding.
func (s *Service) recoverErrored() {
	if s.grabber.State() != grab.Errored {
		return
	}
	orphan, err := s.grabber.Reset()
	if err != nil {
		log.Printf("Failed to reset grab controller: %v", err)
		s.recordError("grab", err)
		return
	}
	if derr := s.cursors.Destroy(orphan); derr != nil {
		log.Printf("Failed to destroy orphaned handle: %v", derr)
	}
	s.record(models.KindReset, orphan, false, 0)
}

// shutdown releases the grab and destroys the final handle. Idempotent with
// respect to an already-detached controller.
func (s *Service) shutdown() {
	last, err := s.grabber.Release()
	if err != nil {
		if errors.Is(err, grab.ErrAlreadyDetached) {
			return
		}
		log.Printf("Failed to release grab on shutdown: %v", err)
		s.recordError("grab", err)
		s.recoverErrored()
	}
	if derr := s.cursors.Destroy(last); derr != nil {
		log.Printf("Failed to destroy final handle: %v", derr)
	}
	if err == nil {
		s.record(models.KindRelease, last, false, 0)
	}
}

// confirm instruments the core invariant: immediately after an install, the
// server must report the installed handle's hotspot, never (0,0).
func (s *Service) confirm(handle *cursor.Handle, kind string, latency time.Duration) {
	verified := true
	if err := s.cursors.VerifyInstalled(handle); err != nil {
		verified = false
		log.Printf("Hotspot verification failed after %s: %v", kind, err)
		s.recordError("cursor", err)
	}
	s.record(kind, handle, verified, latency)
}

func (s *Service) record(kind string, handle *cursor.Handle, verified bool, latency time.Duration) {
	if s.recorder == nil {
		return
	}
	event := &models.SessionEvent{
		Timestamp: time.Now(),
		Kind:      kind,
		Verified:  verified,
	}
	if handle != nil {
		event.Generation = handle.Generation()
		event.HotspotX, event.HotspotY = handle.Hotspot()
	}
	event.LatencyMicros = latency.Microseconds()

	if err := s.recorder.Create(event); err != nil {
		log.Printf("Failed to store session event: %v", err)
	}
}

func (s *Service) recordError(component string, err error) {
	if s.recorder == nil {
		return
	}
	errorLog := &models.ErrorLog{
		Timestamp: time.Now(),
		Component: component,
		ErrorMsg:  err.Error(),
	}
	if dbErr := s.recorder.CreateErrorLog(errorLog); dbErr != nil {
		log.Printf("Failed to store error in database: %v (original error: %v)", dbErr, err)
	}
}

func (s *Service) stopping(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-s.stopChan:
		return true
	default:
		return false
	}
}
