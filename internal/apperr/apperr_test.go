package apperr

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapMatchesKindAndCause(t *testing.T) {
	err := Transport("webhook.chat", io.ErrUnexpectedEOF)

	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.False(t, errors.Is(err, ErrProtocol))
	assert.Equal(t, "webhook.chat: transport error: unexpected EOF", err.Error())
}

func TestNotFoundWithoutCause(t *testing.T) {
	err := NotFound("docstore.get_session")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "docstore.get_session: not found", err.Error())
}
