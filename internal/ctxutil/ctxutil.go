// Package ctxutil provides shared context key accessors.
//
// The submission id is set by the submit package and read by the ledger
// client, which must not import submit.
package ctxutil

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const keySubmissionID contextKey = "submission_id"

// SubmissionHeader carries the submission id on ledger calls.
const SubmissionHeader = "X-Submission-Id"

// WithSubmissionID returns a new context carrying the given submission id.
func WithSubmissionID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, keySubmissionID, id)
}

// SubmissionIDFromContext extracts the submission id from the context.
// Returns uuid.Nil, false if none is set.
func SubmissionIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(keySubmissionID).(uuid.UUID)
	return id, ok
}
