package template

import (
	"context"
	"html"
	"regexp"

	"github.com/opentracing/opentracing-go"

	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/repository"
	"github.com/mailflux/mailflux/internal/tracing"
)

type templateService struct {
	repositories *repository.Repositories
}

func NewTemplateService(repos *repository.Repositories) interfaces.TemplateService {
	return &templateService{repositories: repos}
}

// Render resolves an active template by id or slug and substitutes
// {{ name }} placeholders. Caller variables are applied first, then template
// defaults fill whatever remains. Every substituted value is HTML-escaped;
// unfilled placeholders stay literal.
func (s *templateService) Render(ctx context.Context, userID, key string, variables map[string]string) (*interfaces.RenderedTemplate, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "templateService.Render")
	defer span.Finish()
	tracing.SetDefaultServiceSpanTags(ctx, span)
	tracing.TagEntity(span, key)

	tpl, err := s.repositories.TemplateRepository.GetActiveByIDOrSlug(ctx, userID, key)
	if err != nil {
		tracing.TraceErr(span, err)
		return nil, err
	}
	if tpl == nil {
		return nil, nil
	}

	subject := tpl.Subject
	htmlContent := tpl.HTMLContent

	for name, value := range variables {
		subject = substitute(subject, name, value)
		htmlContent = substitute(htmlContent, name, value)
	}

	for _, variable := range tpl.Variables {
		if variable.DefaultValue == "" {
			continue
		}
		subject = substitute(subject, variable.Name, variable.DefaultValue)
		htmlContent = substitute(htmlContent, variable.Name, variable.DefaultValue)
	}

	return &interfaces.RenderedTemplate{
		Subject:    subject,
		HTML:       htmlContent,
		TemplateID: tpl.ID,
	}, nil
}

// substitute replaces every whitespace-tolerant {{ name }} occurrence with the
// HTML-escaped value.
func substitute(content, name, value string) string {
	pattern, err := regexp.Compile(`\{\{\s*` + regexp.QuoteMeta(name) + `\s*\}\}`)
	if err != nil {
		return content
	}
	return pattern.ReplaceAllLiteralString(content, html.EscapeString(value))
}
