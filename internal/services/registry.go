// Package services tracks readiness of the remote collaborators. Classifier
// training happens outside this process; until the bootstrap step reports in,
// the API must not let turns reach an absent service handle.
package services

import (
	"context"
	"errors"
	"sync"

	"github.com/cinechat/cinechat/pkg/logging"
)

// UnknownID is reported for a handle that has not been resolved yet.
const UnknownID = "Unknown"

// ErrNotReady indicates the collaborators have not finished initializing.
var ErrNotReady = errors.New("services: not ready")

// Handles carries the resolved remote-service identifiers.
type Handles struct {
	DialogID     string `json:"dialog_id"`
	ClassifierID string `json:"classifier_id"`
}

// Registry is the process-wide readiness gate.
type Registry struct {
	mu      sync.RWMutex
	ready   bool
	handles Handles
	err     error
}

// NewRegistry creates an unready registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// SetReady records the resolved handles and opens the gate.
func (r *Registry) SetReady(h Handles) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = true
	r.handles = h
	r.err = nil
}

// SetError records a failed initialization. The gate stays closed.
func (r *Registry) SetError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ready = false
	r.err = err
}

// Ready reports whether the collaborators are usable.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready
}

// Handles returns the resolved identifiers, substituting UnknownID for any
// handle that is not available yet.
func (r *Registry) Handles() Handles {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h := Handles{DialogID: UnknownID, ClassifierID: UnknownID}
	if r.handles.DialogID != "" {
		h.DialogID = r.handles.DialogID
	}
	if r.handles.ClassifierID != "" {
		h.ClassifierID = r.handles.ClassifierID
	}
	return h
}

// Err returns the recorded initialization failure, if any.
func (r *Registry) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Bootstrap resolves the collaborator handles and marks the registry ready.
// The heavy lifting (classifier training, dialog upload) happens out of
// process; our only contract with it is "ready" vs "failed".
func Bootstrap(ctx context.Context, reg *Registry, dialogID, classifierID string, logger *logging.Logger) error {
	if logger == nil {
		logger = logging.Default()
	}
	if err := ctx.Err(); err != nil {
		reg.SetError(err)
		return err
	}
	if dialogID == "" || classifierID == "" {
		err := errors.New("services: dialog and classifier IDs must be configured")
		reg.SetError(err)
		logger.Error("service bootstrap failed", "error", err)
		return err
	}

	reg.SetReady(Handles{DialogID: dialogID, ClassifierID: classifierID})
	logger.Info("services ready", "dialog_id", dialogID, "classifier_id", classifierID)
	return nil
}
