package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"healthguide-go/internal/model"
)

type stubOutcomeRepo struct {
	outcomes []model.TriageOutcome
	total    int64
	filter   model.OutcomeFilter
}

func (r *stubOutcomeRepo) Upsert(ctx context.Context, o *model.TriageOutcome) error { return nil }

func (r *stubOutcomeRepo) List(ctx context.Context, f model.OutcomeFilter) ([]model.TriageOutcome, int64, error) {
	r.filter = f
	return r.outcomes, r.total, nil
}

func (r *stubOutcomeRepo) FindByConversationID(ctx context.Context, id string) (*model.TriageOutcome, error) {
	for i := range r.outcomes {
		if r.outcomes[i].ConversationID == id {
			return &r.outcomes[i], nil
		}
	}
	return nil, nil
}

type stubSearcher struct{ query, level string }

func (s *stubSearcher) SearchOutcomes(ctx context.Context, query, level string, size int) ([]model.OutcomeSearchHit, error) {
	s.query, s.level = query, level
	return []model.OutcomeSearchHit{{ConversationID: "c1", Score: 1}}, nil
}

type stubLinker struct{}

func (stubLinker) PresignTranscript(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	return "https://minio.local/" + objectName, nil
}

func TestAdminService_ListOutcomesPaginates(t *testing.T) {
	repo := &stubOutcomeRepo{
		outcomes: []model.TriageOutcome{{ConversationID: "c1", TriageLevel: "URGENT", CompletedAt: time.Now()}},
		total:    41,
	}
	svc := NewAdminServiceWith(repo, &stubSearcher{}, stubLinker{})

	resp, err := svc.ListOutcomes(context.Background(), model.OutcomeFilter{Limit: 20, Offset: 20})
	require.NoError(t, err)
	require.Equal(t, int64(41), resp.TotalElements)
	require.Equal(t, 3, resp.TotalPages)
	require.Equal(t, 1, resp.Number)
	require.Len(t, resp.Content, 1)

	_, err = svc.ListOutcomes(context.Background(), model.OutcomeFilter{})
	require.NoError(t, err)
	require.Equal(t, 20, repo.filter.Limit)
}

func TestAdminService_SearchPassesFilter(t *testing.T) {
	s := &stubSearcher{}
	svc := NewAdminServiceWith(&stubOutcomeRepo{}, s, stubLinker{})

	hits, err := svc.SearchOutcomes(context.Background(), "chest pain", "EMERGENCY", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "chest pain", s.query)
	require.Equal(t, "EMERGENCY", s.level)
}

func TestAdminService_TranscriptURL(t *testing.T) {
	repo := &stubOutcomeRepo{outcomes: []model.TriageOutcome{{ConversationID: "c1", TranscriptObject: "transcripts/c1.json"}}}
	svc := NewAdminServiceWith(repo, &stubSearcher{}, stubLinker{})

	url, err := svc.TranscriptURL(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, "https://minio.local/transcripts/c1.json", url)

	_, err = svc.TranscriptURL(context.Background(), "missing")
	require.ErrorIs(t, err, ErrOutcomeNotFound)
}
