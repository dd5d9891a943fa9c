package storage

import (
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/app/domain/drill"
	apperrors "github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/errors"
)

// StaleAttempt is returned by conditional attempt updates that lost a race.
func StaleAttempt(id string, current drill.AttemptStatus) error {
	return apperrors.Conflict("attempt is already "+string(current)).
		WithDetails("attempt_id", id).
		WithDetails("status", current)
}
