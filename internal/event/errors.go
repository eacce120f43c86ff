package event

import (
	"errors"
	"fmt"
	"strings"
)

// CollisionError rejects an event whose inserts look like existing objects.
type CollisionError struct {
	// Collisions maps each colliding insert OID to its candidates, best first.
	Collisions map[string][]string
}

// Error implements the error interface.
func (e *CollisionError) Error() string {
	parts := make([]string, 0, len(e.Collisions))
	for _, oid := range sortedKeys(e.Collisions) {
		parts = append(parts, fmt.Sprintf("%s ~ [%s]", oid, strings.Join(e.Collisions[oid], ", ")))
	}
	return "collision detected: " + strings.Join(parts, "; ")
}

// IsCollision returns true if err is a *CollisionError.
// Uses errors.As to handle wrapped errors.
func IsCollision(err error) bool {
	var ce *CollisionError
	return errors.As(err, &ce)
}

// ContextBusyError reports a second concurrent write into a locked context.
type ContextBusyError struct {
	Context string
}

// Error implements the error interface.
func (e *ContextBusyError) Error() string {
	return fmt.Sprintf("context %q is locked by another write", e.Context)
}

// IsContextBusy returns true if err is a *ContextBusyError.
func IsContextBusy(err error) bool {
	var cb *ContextBusyError
	return errors.As(err, &cb)
}
