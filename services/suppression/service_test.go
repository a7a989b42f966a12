package suppression

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/enum"
	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/repository"
	"github.com/mailflux/mailflux/internal/utils"
)

type fakeSuppressionRepo struct {
	rows map[string]*models.EmailSuppression // key: userID + "|" + email
}

func newFakeSuppressionRepo() *fakeSuppressionRepo {
	return &fakeSuppressionRepo{rows: map[string]*models.EmailSuppression{}}
}

func key(userID, email string) string {
	return userID + "|" + email
}

func (f *fakeSuppressionRepo) GetByUserAndEmail(ctx context.Context, userID, email string) (*models.EmailSuppression, error) {
	return f.rows[key(userID, email)], nil
}

func (f *fakeSuppressionRepo) Create(ctx context.Context, s *models.EmailSuppression) error {
	if s.ID == "" {
		s.ID = utils.GenerateNanoIDWithPrefix("sup", 24)
	}
	f.rows[key(s.UserID, s.Email)] = s
	return nil
}

func (f *fakeSuppressionRepo) Update(ctx context.Context, s *models.EmailSuppression) error {
	f.rows[key(s.UserID, s.Email)] = s
	return nil
}

func (f *fakeSuppressionRepo) FindBlocking(ctx context.Context, userID string, emails []string, domainID *string) ([]string, error) {
	var blocked []string
	for _, email := range emails {
		row, ok := f.rows[key(userID, email)]
		if !ok || !row.Reason.IsBlocking() {
			continue
		}
		if row.DomainID != nil && (domainID == nil || *row.DomainID != *domainID) {
			continue
		}
		blocked = append(blocked, email)
	}
	return blocked, nil
}

func (f *fakeSuppressionRepo) Delete(ctx context.Context, userID, id string) (bool, error) {
	for k, row := range f.rows {
		if row.ID == id && row.UserID == userID {
			delete(f.rows, k)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSuppressionRepo) List(ctx context.Context, userID string, filter interfaces.SuppressionFilter) ([]*models.EmailSuppression, int64, error) {
	var out []*models.EmailSuppression
	for _, row := range f.rows {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeSuppressionRepo) CountByReason(ctx context.Context, userID string) (map[enum.SuppressionReason]int64, error) {
	counts := map[enum.SuppressionReason]int64{}
	for _, row := range f.rows {
		if row.UserID == userID {
			counts[row.Reason]++
		}
	}
	return counts, nil
}

func newTestService() (interfaces.SuppressionService, *fakeSuppressionRepo) {
	repo := newFakeSuppressionRepo()
	svc := NewSuppressionService(&repository.Repositories{SuppressionRepository: repo})
	return svc, repo
}

func TestAdd_IsIdempotent(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	first, err := svc.Add(ctx, "u1", " Bob@X.com ", enum.SuppressionHardBounce, "evt1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "bob@x.com", first.Email)

	second, err := svc.Add(ctx, "u1", "bob@x.com", enum.SuppressionManual, "evt2", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, enum.SuppressionHardBounce, second.Reason)
	assert.Len(t, repo.rows, 1)
}

func TestCheck_OnlyBlockingReasons(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", "hard@x.com", enum.SuppressionHardBounce, "", nil, nil)
	require.NoError(t, err)
	_, err = svc.HandleSoftBounce(ctx, "u1", "soft@x.com", "", nil)
	require.NoError(t, err)

	blocked, err := svc.Check(ctx, "u1", []string{"Hard@X.com", "soft@x.com", "clean@x.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"hard@x.com"}, blocked)
}

func TestCheck_DomainScope(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	domain := "dom1"
	_, err := svc.Add(ctx, "u1", "scoped@x.com", enum.SuppressionManual, "", &domain, nil)
	require.NoError(t, err)

	// scoped row does not block without a domain
	blocked, err := svc.Check(ctx, "u1", []string{"scoped@x.com"}, nil)
	require.NoError(t, err)
	assert.Empty(t, blocked)

	// matching domain blocks
	blocked, err = svc.Check(ctx, "u1", []string{"scoped@x.com"}, &domain)
	require.NoError(t, err)
	assert.Equal(t, []string{"scoped@x.com"}, blocked)
}

func TestHandleSoftBounce_PromotesAtThreshold(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	first, err := svc.HandleSoftBounce(ctx, "u1", "c@x.com", "evt1", nil)
	require.NoError(t, err)
	assert.Equal(t, enum.SuppressionSoftBounce, first.Reason)
	count, _ := first.Metadata.Int("softBounceCount")
	assert.Equal(t, 1, count)

	second, err := svc.HandleSoftBounce(ctx, "u1", "c@x.com", "evt2", nil)
	require.NoError(t, err)
	assert.Equal(t, enum.SuppressionSoftBounce, second.Reason)
	count, _ = second.Metadata.Int("softBounceCount")
	assert.Equal(t, 2, count)
	assert.NotNil(t, second.Metadata["lastBounceAt"])

	third, err := svc.HandleSoftBounce(ctx, "u1", "c@x.com", "evt3", nil)
	require.NoError(t, err)
	assert.Equal(t, enum.SuppressionHardBounce, third.Reason)
	count, _ = third.Metadata.Int("softBounceCount")
	assert.Equal(t, 3, count)
	assert.NotNil(t, third.Metadata["upgradedAt"])

	// once promoted the check starts blocking
	blocked, err := svc.Check(ctx, "u1", []string{"c@x.com"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"c@x.com"}, blocked)
}

func TestHandleSoftBounce_NeverDowngrades(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", "d@x.com", enum.SuppressionComplaint, "", nil, nil)
	require.NoError(t, err)

	row, err := svc.HandleSoftBounce(ctx, "u1", "d@x.com", "evt", nil)
	require.NoError(t, err)
	assert.Equal(t, enum.SuppressionComplaint, row.Reason)
}

func TestHandleSoftBounce_NoRepromotion(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.HandleSoftBounce(ctx, "u1", "e@x.com", "", nil)
		require.NoError(t, err)
	}

	fourth, err := svc.HandleSoftBounce(ctx, "u1", "e@x.com", "", nil)
	require.NoError(t, err)
	assert.Equal(t, enum.SuppressionHardBounce, fourth.Reason)
	count, _ := fourth.Metadata.Int("softBounceCount")
	assert.Equal(t, 3, count)
}

func TestRemove_OnlyOwnedRows(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	row, err := svc.Add(ctx, "u1", "f@x.com", enum.SuppressionManual, "", nil, nil)
	require.NoError(t, err)

	deleted, err := svc.Remove(ctx, "other", row.ID)
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = svc.Remove(ctx, "u1", row.ID)
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestStats_CountsByReason(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Add(ctx, "u1", "a@x.com", enum.SuppressionManual, "", nil, nil)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "u1", "b@x.com", enum.SuppressionManual, "", nil, nil)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "u1", "c@x.com", enum.SuppressionComplaint, "", nil, nil)
	require.NoError(t, err)

	total, byReason, err := svc.Stats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Equal(t, int64(2), byReason[enum.SuppressionManual])
	assert.Equal(t, int64(1), byReason[enum.SuppressionComplaint])
}
