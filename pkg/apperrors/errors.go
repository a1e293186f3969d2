package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnknownCategory   = errors.New("unknown entity category")
	ErrMacroUnresolved   = errors.New("macro references an entity that does not exist")
	ErrUnexpandedMacro   = errors.New("query still contains unexpanded macros")
	ErrNoDatasource      = errors.New("no datasource configured")
	ErrDetectorFailed    = errors.New("entity detection failed")
	ErrTranslationFailed = errors.New("question translation failed")
)
