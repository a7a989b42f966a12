package template

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailflux/mailflux/internal/models"
	"github.com/mailflux/mailflux/internal/repository"
)

type fakeTemplateRepo struct {
	templates map[string]*models.EmailTemplate
}

func (f *fakeTemplateRepo) GetActiveByIDOrSlug(ctx context.Context, userID, key string) (*models.EmailTemplate, error) {
	tpl, ok := f.templates[key]
	if !ok || tpl.UserID != userID {
		return nil, nil
	}
	return tpl, nil
}

func newService(templates ...*models.EmailTemplate) *templateService {
	repo := &fakeTemplateRepo{templates: map[string]*models.EmailTemplate{}}
	for _, tpl := range templates {
		repo.templates[tpl.ID] = tpl
		repo.templates[tpl.Slug] = tpl
	}
	return &templateService{repositories: &repository.Repositories{TemplateRepository: repo}}
}

func TestRender_NotFound(t *testing.T) {
	svc := newService()
	rendered, err := svc.Render(context.Background(), "user1", "missing", nil)
	require.NoError(t, err)
	assert.Nil(t, rendered)
}

func TestRender_SubstitutesVariables(t *testing.T) {
	svc := newService(&models.EmailTemplate{
		ID:          "tpl_1",
		UserID:      "user1",
		Slug:        "welcome",
		Subject:     "Hello {{name}}",
		HTMLContent: "<p>Hi {{ name }}, welcome to {{product}}</p>",
	})

	rendered, err := svc.Render(context.Background(), "user1", "welcome", map[string]string{
		"name":    "Bob",
		"product": "Mailflux",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello Bob", rendered.Subject)
	assert.Equal(t, "<p>Hi Bob, welcome to Mailflux</p>", rendered.HTML)
	assert.Equal(t, "tpl_1", rendered.TemplateID)
}

func TestRender_EscapesHTMLInValues(t *testing.T) {
	svc := newService(&models.EmailTemplate{
		ID:          "tpl_1",
		UserID:      "user1",
		Slug:        "welcome",
		Subject:     "Hi {{name}}",
		HTMLContent: "<p>{{name}}</p>",
	})

	rendered, err := svc.Render(context.Background(), "user1", "tpl_1", map[string]string{
		"name": `<script>alert("x")</script>`,
	})
	require.NoError(t, err)
	assert.NotContains(t, rendered.Subject, "<script>")
	assert.NotContains(t, rendered.HTML, "<script>")
	assert.Contains(t, rendered.HTML, "&lt;script&gt;")
}

func TestRender_DefaultsFillRemaining(t *testing.T) {
	svc := newService(&models.EmailTemplate{
		ID:          "tpl_1",
		UserID:      "user1",
		Slug:        "welcome",
		Subject:     "{{greeting}} {{name}}",
		HTMLContent: "<p>{{greeting}} {{name}}</p>",
		Variables: []models.EmailTemplateVariable{
			{TemplateID: "tpl_1", Name: "greeting", DefaultValue: "Hello"},
			{TemplateID: "tpl_1", Name: "name", DefaultValue: "friend"},
		},
	})

	// caller value wins, default fills the rest
	rendered, err := svc.Render(context.Background(), "user1", "tpl_1", map[string]string{"name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Bob", rendered.Subject)
}

func TestRender_UnfilledPlaceholdersStayLiteral(t *testing.T) {
	svc := newService(&models.EmailTemplate{
		ID:          "tpl_1",
		UserID:      "user1",
		Slug:        "welcome",
		Subject:     "Hi {{name}}",
		HTMLContent: "<p>{{unknown}}</p>",
	})

	rendered, err := svc.Render(context.Background(), "user1", "tpl_1", map[string]string{"name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "<p>{{unknown}}</p>", rendered.HTML)
}

func TestRender_WrongUserIsNotFound(t *testing.T) {
	svc := newService(&models.EmailTemplate{
		ID:     "tpl_1",
		UserID: "user1",
		Slug:   "welcome",
	})

	rendered, err := svc.Render(context.Background(), "other", "tpl_1", nil)
	require.NoError(t, err)
	assert.Nil(t, rendered)
}
