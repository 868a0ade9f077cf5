package persist

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreErrorClassification(t *testing.T) {
	cause := errors.New("disk I/O error")

	read := ReadFailure("fetch User", cause)
	write := WriteFailure("apply", cause)

	assert.True(t, IsReadFailure(read))
	assert.False(t, IsWriteFailure(read))
	assert.True(t, IsWriteFailure(write))
	assert.False(t, IsReadFailure(write))
	assert.False(t, IsReadFailure(cause))
	assert.False(t, IsReadFailure(nil))
}

func TestStoreErrorWrapped(t *testing.T) {
	err := fmt.Errorf("session fetch: %w", ReadFailure("fetch User", ErrClosed))

	assert.True(t, IsReadFailure(err))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, "session fetch: READ_FAILURE: fetch User: backend closed", err.Error())
}
