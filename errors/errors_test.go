package errors_test

import (
	"errors"
	"testing"

	fserrors "github.com/go-easyfs/easyfs/errors"
	"github.com/stretchr/testify/assert"
)

func TestFSErrorWithMessage(t *testing.T) {
	err := fserrors.ErrExists.WithMessage("a")
	assert.Equal(t, "file exists: a", err.Error())
	assert.ErrorIs(t, err, fserrors.ErrExists)
}

func TestFSErrorWrapError(t *testing.T) {
	original := errors.New("disk unplugged")
	err := fserrors.ErrIOFailed.WrapError(original)
	assert.ErrorIs(t, err, original)
}

func TestFatalPanics(t *testing.T) {
	assert.Panics(t, func() {
		fserrors.Fatal(fserrors.ErrFileSystemCorrupted)
	})
}
