package dispatch

import (
	"errors"
	"fmt"

	"github.com/alfredjeanlab/nari/internal/model"
	"github.com/alfredjeanlab/nari/internal/store"
)

// ArgumentError reports malformed command arguments.
type ArgumentError struct {
	Command string
	Usage   string
	Msg     string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("%s: %s (usage: %s)", e.Command, e.Msg, e.Usage)
}

// KindOf classifies a handler error into a response kind.
func KindOf(err error) model.ResponseKind {
	var argErr *ArgumentError
	switch {
	case err == nil:
		return model.KindSuccess
	case errors.As(err, &argErr):
		return model.KindArgumentError
	case errors.Is(err, model.ErrAlreadyRegistered):
		return model.KindAlreadyExists
	case errors.Is(err, model.ErrNotRegistered), errors.Is(err, store.ErrNotFound):
		return model.KindNotFound
	default:
		return model.KindInternalError
	}
}
