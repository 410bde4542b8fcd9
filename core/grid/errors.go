package grid

import "github.com/pkg/errors"

var (
	ErrInvalidInput       = errors.New("invalid grid input")
	ErrReadOnly           = errors.New("grid is read only")
	ErrUnsupported        = errors.New("operation not supported by this grid")
	ErrRowNotFound        = errors.New("row not found")
	ErrColumnNotFound     = errors.New("column not found")
	ErrRowLocked          = errors.New("row is not editable")
	ErrRowNotEditing      = errors.New("row is not in edit mode")
	ErrColumnNotEditable  = errors.New("column is not editable")
	ErrRowNotDeletable    = errors.New("row cannot be deleted")
	ErrColumnNotDeletable = errors.New("column cannot be deleted")
	ErrNoPendingDeletion  = errors.New("no deletion awaiting confirmation")
	ErrInvalidDate        = errors.New("invalid date")

	// collisions
	ErrDuplicateEntity = errors.New("entity already present in the grid")
	ErrUnknownEntity   = errors.New("unknown entity")
	ErrDuplicateColumn = errors.New("column already present in the grid")
)

// IsCollision reports whether err was caused by adding a duplicate row or column.
func IsCollision(err error) bool {
	switch errors.Cause(err) {
	case ErrDuplicateEntity, ErrDuplicateColumn, ErrUnknownEntity:
		return true
	}
	return false
}

// RowError is a validation failure bound to a row; it aborts a Save.
type RowError struct {
	Row     string `json:"row"`
	Column  string `json:"column,omitempty"`
	Message string `json:"error"`
}

func (err *RowError) Error() string {
	return err.Message
}
