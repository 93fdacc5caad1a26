package queries

import (
	"context"

	"formbridge/contexts/intake-core/domain/entities"
	"formbridge/contexts/intake-core/ports"
)

// GetSubmissionQuery backs `GET /intake/{intakeId}/submissions/{id}`. Reads
// do not take the per-submission lock and never rotate the resume token.
type GetSubmissionQuery struct {
	Submissions ports.SubmissionRepository
}

func (q GetSubmissionQuery) Execute(ctx context.Context, submissionID string) (entities.Submission, error) {
	return q.Submissions.GetSubmission(ctx, submissionID)
}

// GetByResumeTokenQuery backs `GET /submissions/resume/{resumeToken}`, the
// endpoint a handed-off actor's browser hits to pick up a session.
type GetByResumeTokenQuery struct {
	Submissions ports.SubmissionRepository
}

func (q GetByResumeTokenQuery) Execute(ctx context.Context, resumeToken string) (entities.Submission, error) {
	return q.Submissions.GetByResumeToken(ctx, resumeToken)
}
