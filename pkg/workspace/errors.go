package workspace

import (
	"errors"

	"github.com/mariozechner/bytebox/pkg/language"
)

// Workspace errors. All of them are recoverable: the failed operation leaves
// the workspace unchanged.
var (
	ErrDuplicateFile = errors.New("file already exists")
	ErrProtectedFile = errors.New("file is protected")
	ErrNotFound      = errors.New("file not found")
	ErrInvalidName   = errors.New("invalid file name")

	// ErrUnknownLanguage is the registry's error, re-exported for callers of this package.
	ErrUnknownLanguage = language.ErrUnknownLanguage
)
