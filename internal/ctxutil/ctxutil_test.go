package ctxutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestSubmissionID(t *testing.T) {
	_, ok := SubmissionIDFromContext(context.Background())
	assert.False(t, ok)

	id := uuid.New()
	got, ok := SubmissionIDFromContext(WithSubmissionID(context.Background(), id))
	assert.True(t, ok)
	assert.Equal(t, id, got)
}
