package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/dermascan/internal/analysis"
	"github.com/your-org/dermascan/internal/capture"
	"github.com/your-org/dermascan/internal/models"
	"github.com/your-org/dermascan/internal/profile"
)

type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseScanning  Phase = "scanning"
	PhaseAnalyzing Phase = "analyzing"
	PhaseResult    Phase = "result"
	PhaseError     Phase = "error"
)

var (
	ErrClosed = errors.New("scan flow is closed")
	// ErrCanceled reports that the user cancelled, or signed out, before
	// the analysis settled.
	ErrCanceled = errors.New("analysis was cancelled")
)

const (
	msgStreamEnded = "The camera stopped unexpectedly. Please try again."
	msgBusy        = "An analysis is already in progress. Please wait for it to finish."
	msgNoInput     = "Please enter ingredients to analyze."
)

// Capture is the camera side of the flow.
type Capture interface {
	Start(ctx context.Context) (*capture.Session, error)
	Stop()
	Close()
}

type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*analysis.Outcome, error)
}

// Publisher receives every settled scan.
type Publisher interface {
	PublishScan(ctx context.Context, rec *models.ScanRecord) error
}

// SnapshotStore archives the frame a barcode was read from and returns its key.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, userID, sessionID string, jpeg []byte) (string, error)
}

// State is a point-in-time view of the flow.
type State struct {
	Phase     Phase             `json:"phase"`
	UserID    string            `json:"user_id"`
	SessionID string            `json:"session_id,omitempty"`
	Barcode   string            `json:"barcode,omitempty"`
	Format    string            `json:"format,omitempty"`
	Message   string            `json:"message,omitempty"`
	Outcome   *analysis.Outcome `json:"-"`
	UpdatedAt time.Time         `json:"updated_at"`
}

type Deps struct {
	Capture  Capture
	Analyzer Analyzer
	// Optional.
	Profiles  profile.Store
	Publisher Publisher
	Snapshots SnapshotStore
	OnChange  func(State)
}

// Flow drives scan, analyze and result for one signed-in user. It moves
// idle → scanning → analyzing → result | error and always lands on a phase
// the user can act on.
type Flow struct {
	id   profile.Identity
	deps Deps

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	gen    uint64 // bumped whenever the user abandons in-flight work
	stopAn context.CancelFunc
	closed bool
}

func New(id profile.Identity, deps Deps) *Flow {
	ctx, cancel := context.WithCancel(context.Background())
	return &Flow{
		id:     id,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		state:  State{Phase: PhaseIdle, UserID: id.UserID, UpdatedAt: time.Now()},
	}
}

func (f *Flow) Identity() profile.Identity {
	return f.id
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// StartScan opens the camera. It is a no-op while already scanning and
// rejected with analysis.ErrBusy while an analysis is running.
func (f *Flow) StartScan() (State, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return State{}, ErrClosed
	}
	switch f.state.Phase {
	case PhaseScanning:
		st := f.state
		f.mu.Unlock()
		return st, nil
	case PhaseAnalyzing:
		st := f.state
		f.mu.Unlock()
		return st, analysis.ErrBusy
	}

	sess, err := f.deps.Capture.Start(f.ctx)
	if err != nil {
		f.mu.Unlock()
		return f.State(), err
	}
	f.gen++
	gen := f.gen
	f.state = State{
		Phase:     PhaseScanning,
		UserID:    f.id.UserID,
		SessionID: sess.ID,
		UpdatedAt: time.Now(),
	}
	st := f.state
	f.mu.Unlock()

	f.notify(st)
	slog.Info("scan started", "user_id", f.id.UserID, "session_id", sess.ID)

	go f.watch(sess, gen)
	return st, nil
}

// Cancel abandons whatever the flow is doing: the camera is stopped, an
// in-flight analysis is discarded, and a shown result or error is dismissed.
func (f *Flow) Cancel() State {
	f.mu.Lock()
	if f.closed {
		st := f.state
		f.mu.Unlock()
		return st
	}
	phase := f.state.Phase
	f.gen++
	if f.stopAn != nil {
		f.stopAn()
		f.stopAn = nil
	}
	f.state = State{Phase: PhaseIdle, UserID: f.id.UserID, UpdatedAt: time.Now()}
	st := f.state
	f.mu.Unlock()

	if phase == PhaseScanning {
		f.deps.Capture.Stop()
	}
	f.notify(st)
	return st
}

// SubmitIngredients analyzes a pasted ingredient list and blocks until the
// flow settles. A running scan is stopped first. The flow is analyzing from
// the moment the call is accepted, so a concurrent submit or scan gets
// analysis.ErrBusy.
func (f *Flow) SubmitIngredients(ingredients string) (State, error) {
	if strings.TrimSpace(ingredients) == "" {
		return f.State(), fmt.Errorf("%w: %s", analysis.ErrInvalidRequest, msgNoInput)
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return State{}, ErrClosed
	}
	if f.state.Phase == PhaseAnalyzing {
		st := f.state
		f.mu.Unlock()
		return st, analysis.ErrBusy
	}
	wasScanning := f.state.Phase == PhaseScanning
	f.gen++
	gen := f.gen
	f.state = State{Phase: PhaseAnalyzing, UserID: f.id.UserID, UpdatedAt: time.Now()}
	st := f.state
	f.mu.Unlock()

	f.notify(st)
	if wasScanning {
		f.deps.Capture.Stop()
	}

	rec := &models.ScanRecord{Source: models.SourceIngredients}
	return f.analyze(gen, analysis.Request{Ingredients: ingredients}, rec)
}

// Close tears the flow down: the camera is released and any pending result
// is dropped. The flow cannot be used afterwards.
func (f *Flow) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	f.gen++
	f.state = State{Phase: PhaseIdle, UserID: f.id.UserID, UpdatedAt: time.Now()}
	f.mu.Unlock()

	f.cancel()
	f.deps.Capture.Close()
	slog.Info("scan flow closed", "user_id", f.id.UserID)
}

func (f *Flow) watch(sess *capture.Session, gen uint64) {
	var (
		out capture.Outcome
		ok  bool
	)
	select {
	case out, ok = <-sess.Outcome():
	case <-f.ctx.Done():
		return
	}

	if !ok {
		// Stopped; Cancel or SubmitIngredients already moved the phase on.
		f.settle(gen, func(s *State) {
			if s.Phase == PhaseScanning {
				s.Phase = PhaseIdle
			}
		})
		return
	}

	if out.Err != nil {
		msg := msgStreamEnded
		var initErr *capture.CameraInitError
		if errors.As(out.Err, &initErr) {
			msg = initErr.Error()
		}
		st, applied := f.settle(gen, func(s *State) {
			s.Phase = PhaseError
			s.Message = msg
		})
		if applied {
			f.publish(&models.ScanRecord{
				Source:    models.SourceBarcode,
				SessionID: sess.ID,
				Status:    string(PhaseError),
				Message:   st.Message,
			})
		}
		return
	}

	_, applied := f.settle(gen, func(s *State) {
		s.Phase = PhaseAnalyzing
		s.Barcode = out.Symbol.Text
		s.Format = out.Symbol.Format
	})
	if !applied {
		return
	}

	rec := &models.ScanRecord{
		Source:    models.SourceBarcode,
		SessionID: sess.ID,
		Barcode:   out.Symbol.Text,
		Format:    out.Symbol.Format,
	}
	if f.deps.Snapshots != nil && out.Frame != nil && len(out.Frame.Data) > 0 {
		key, err := f.deps.Snapshots.PutSnapshot(f.ctx, f.id.UserID, sess.ID, out.Frame.Data)
		if err != nil {
			slog.Warn("store snapshot", "session_id", sess.ID, "error", err)
		} else {
			rec.SnapshotKey = key
		}
	}

	_, _ = f.analyze(gen, analysis.Request{Barcode: out.Symbol.Text}, rec)
}

// analyze runs one analysis call for generation gen and records its outcome.
// If the user moved on in the meantime nothing is recorded and the error says
// why.
func (f *Flow) analyze(gen uint64, req analysis.Request, rec *models.ScanRecord) (State, error) {
	ctx, cancel := context.WithCancel(f.ctx)
	defer cancel()

	st, applied := f.settle(gen, func(s *State) {
		s.Phase = PhaseAnalyzing
		s.Message = ""
		s.Outcome = nil
		if req.Ingredients != "" {
			s.SessionID = ""
			s.Barcode = ""
			s.Format = ""
		}
	})
	if !applied {
		return f.abandoned()
	}
	f.mu.Lock()
	if gen == f.gen {
		f.stopAn = cancel
	}
	f.mu.Unlock()

	req.UserProfile = f.profile(ctx)
	out, err := f.deps.Analyzer.Analyze(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return f.abandoned()
		}
		msg := err.Error()
		if errors.Is(err, analysis.ErrBusy) {
			msg = msgBusy
		}
		st, applied = f.settle(gen, func(s *State) {
			s.Phase = PhaseError
			s.Message = msg
		})
		if !applied {
			return f.abandoned()
		}
		rec.Status = string(PhaseError)
		rec.Message = msg
		f.publish(rec)
		return st, nil
	}

	st, applied = f.settle(gen, func(s *State) {
		s.Outcome = out
		if out.Kind == analysis.Success {
			s.Phase = PhaseResult
			return
		}
		s.Phase = PhaseError
		s.Message = out.Message
	})
	if !applied {
		return f.abandoned()
	}

	fillRecord(rec, out)
	f.publish(rec)
	slog.Info("analysis settled", "user_id", f.id.UserID, "phase", st.Phase, "source", rec.Source)
	return st, nil
}

// abandoned is the result of an analysis whose generation was superseded.
func (f *Flow) abandoned() (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return f.state, ErrClosed
	}
	return f.state, ErrCanceled
}

func (f *Flow) profile(ctx context.Context) *profile.Profile {
	if f.deps.Profiles == nil {
		return nil
	}
	p, err := f.deps.Profiles.GetProfile(ctx, f.id.UserID)
	if err != nil {
		slog.Warn("load profile", "user_id", f.id.UserID, "error", err)
		return nil
	}
	if p == nil || p.Validate() != nil {
		return nil
	}
	return p
}

// settle applies fn if gen is still current and the flow is open. It returns
// the resulting state and whether fn ran.
func (f *Flow) settle(gen uint64, fn func(*State)) (State, bool) {
	f.mu.Lock()
	if f.closed || gen != f.gen {
		st := f.state
		f.mu.Unlock()
		return st, false
	}
	fn(&f.state)
	if f.state.Phase != PhaseAnalyzing {
		f.stopAn = nil
	}
	f.state.UpdatedAt = time.Now()
	st := f.state
	f.mu.Unlock()

	f.notify(st)
	return st, true
}

func (f *Flow) notify(st State) {
	if f.deps.OnChange != nil {
		f.deps.OnChange(st)
	}
}

func (f *Flow) publish(rec *models.ScanRecord) {
	if f.deps.Publisher == nil {
		return
	}
	rec.ID = uuid.New()
	rec.UserID = f.id.UserID
	rec.CreatedAt = time.Now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.deps.Publisher.PublishScan(ctx, rec); err != nil {
		slog.Error("publish scan", "user_id", rec.UserID, "error", err)
	}
}

func fillRecord(rec *models.ScanRecord, out *analysis.Outcome) {
	if out.Kind == analysis.Success {
		rec.Status = string(PhaseResult)
	} else {
		rec.Status = string(PhaseError)
		rec.Message = out.Message
	}
	if out.Result != nil {
		safe := out.Result.Safe
		rec.Safe = &safe
		rec.HarmfulCount = out.Result.HarmfulCount
		rec.Analysis = out.Result.Raw
	}
	if out.Product != nil {
		rec.ProductTitle = out.Product.Title
		rec.ProductBrand = out.Product.Brand
	}
}
