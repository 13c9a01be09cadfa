package ledger

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/earnings-ledger/pkg/db"
	pkgerrors "github.com/angelmondragon/earnings-ledger/pkg/errors"
)

// LoadError maps a repository read failure to NotFound or Internal.
func LoadError(err error, resource string, id uuid.UUID) error {
	if err == nil {
		return nil
	}
	if db.IsNotFound(err) {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s %s not found", resource, id).
			WithDetails(map[string]any{"id": id.String()})
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("load %s", resource))
}

// WriteError wraps a repository write failure unless it is already typed.
func WriteError(err error, action string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, action)
}

// InvalidState reports a disallowed lifecycle transition.
func InvalidState(resource string, id uuid.UUID, current, action string) error {
	return pkgerrors.Newf(pkgerrors.CodeInvalidState, "cannot %s %s in status %s", action, resource, current).
		WithDetails(map[string]any{"id": id.String(), "status": current})
}
