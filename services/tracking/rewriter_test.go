package tracking

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRewriter() *rewriter {
	return &rewriter{
		baseURL:      "https://track.example.com",
		enableOpens:  true,
		enableClicks: true,
	}
}

func TestRewrite_RewritesAnchors(t *testing.T) {
	rw := newTestRewriter()
	result := rw.rewrite(`<p>Hi <a href="https://a.example">link</a></p>`)

	require.Len(t, result.Links, 1)
	link := result.Links[0]
	assert.Equal(t, "https://a.example", link.OriginalURL)
	assert.Len(t, link.TrackingID, 24)
	assert.Equal(t, "https://track.example.com/t/c/"+link.TrackingID, link.TrackingURL)
	assert.Contains(t, result.ModifiedHTML, `href="`+link.TrackingURL+`"`)
	assert.NotContains(t, result.ModifiedHTML, `href="https://a.example"`)
}

func TestRewrite_PreservesSurroundingAttributes(t *testing.T) {
	rw := newTestRewriter()
	result := rw.rewrite(`<a class="btn" href="https://a.example" target="_blank">go</a>`)

	require.Len(t, result.Links, 1)
	assert.Contains(t, result.ModifiedHTML, `class="btn"`)
	assert.Contains(t, result.ModifiedHTML, `target="_blank"`)
}

func TestRewrite_ExcludedURLsAreVerbatim(t *testing.T) {
	excluded := []string{
		"https://a.example/unsubscribe?u=1",
		"https://a.example/OptOut",
		"mailto:bob@x.com",
		"tel:+15551234",
		"https://a.example/page#section",
	}

	for _, url := range excluded {
		t.Run(url, func(t *testing.T) {
			rw := newTestRewriter()
			html := fmt.Sprintf(`<a href="%s">x</a>`, url)
			result := rw.rewrite(html)

			assert.Empty(t, result.Links)
			assert.Contains(t, result.ModifiedHTML, fmt.Sprintf(`href="%s"`, url))
		})
	}
}

func TestRewrite_IdenticalURLsShareOneClickID(t *testing.T) {
	rw := newTestRewriter()
	result := rw.rewrite(`<a href="https://a.example">one</a><a href="https://a.example">two</a><a href="https://b.example">three</a>`)

	require.Len(t, result.Links, 2)
	assert.Equal(t, 2, strings.Count(result.ModifiedHTML, result.Links[0].TrackingURL))
}

func TestRewrite_PixelBeforeBodyClose(t *testing.T) {
	rw := newTestRewriter()
	result := rw.rewrite(`<html><body><p>hi</p></body></html>`)

	require.NotEmpty(t, result.OpenTrackingID)
	assert.Len(t, result.OpenTrackingID, 24)

	pixel := `<img src="https://track.example.com/t/o/` + result.OpenTrackingID + `"`
	pixelIdx := strings.Index(result.ModifiedHTML, pixel)
	bodyIdx := strings.Index(result.ModifiedHTML, "</body>")
	require.GreaterOrEqual(t, pixelIdx, 0)
	assert.Less(t, pixelIdx, bodyIdx)
}

func TestRewrite_PixelAppendedWithoutBody(t *testing.T) {
	rw := newTestRewriter()
	result := rw.rewrite(`<p>hi</p>`)

	assert.True(t, strings.HasPrefix(result.ModifiedHTML, "<p>hi</p><img "))
}

func TestRewrite_CaseInsensitiveBodyClose(t *testing.T) {
	rw := newTestRewriter()
	result := rw.rewrite(`<BODY>hi</BODY>`)

	pixelIdx := strings.Index(result.ModifiedHTML, "<img ")
	bodyIdx := strings.Index(result.ModifiedHTML, "</BODY>")
	require.GreaterOrEqual(t, pixelIdx, 0)
	assert.Less(t, pixelIdx, bodyIdx)
}

func TestRewrite_DisabledChannels(t *testing.T) {
	rw := &rewriter{baseURL: "https://track.example.com"}
	html := `<a href="https://a.example">x</a>`
	result := rw.rewrite(html)

	assert.Equal(t, html, result.ModifiedHTML)
	assert.Empty(t, result.OpenTrackingID)
	assert.Empty(t, result.Links)
}
