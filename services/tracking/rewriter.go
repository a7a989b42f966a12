package tracking

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mailflux/mailflux/interfaces"
	"github.com/mailflux/mailflux/internal/utils"
)

var (
	anchorPattern    = regexp.MustCompile(`(?i)<a\s+([^>]*?)href=["']([^"']+)["']([^>]*)>`)
	bodyClosePattern = regexp.MustCompile(`(?i)</body>`)
)

// excludedURLParts marks links that must never be rewritten: opt-out paths,
// non-http schemes, and fragment anchors.
var excludedURLParts = []string{"unsubscribe", "optout", "mailto:", "tel:", "#"}

func isExcludedURL(url string) bool {
	lower := strings.ToLower(url)
	for _, part := range excludedURLParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	return false
}

// rewriter instruments an HTML body: anchors get per-distinct-URL click
// redirects, and a 1x1 open pixel lands just before the closing body tag.
type rewriter struct {
	baseURL      string
	enableOpens  bool
	enableClicks bool
}

func (rw *rewriter) rewrite(html string) *interfaces.RewriteResult {
	result := &interfaces.RewriteResult{ModifiedHTML: html}
	if html == "" {
		return result
	}

	if rw.enableClicks {
		clickIDs := make(map[string]string)
		result.ModifiedHTML = anchorPattern.ReplaceAllStringFunc(result.ModifiedHTML, func(anchor string) string {
			sub := anchorPattern.FindStringSubmatch(anchor)
			originalURL := sub[2]
			if isExcludedURL(originalURL) {
				return anchor
			}

			clickID, seen := clickIDs[originalURL]
			if !seen {
				clickID = utils.GenerateTrackingID()
				clickIDs[originalURL] = clickID
				result.Links = append(result.Links, interfaces.RewrittenLink{
					TrackingID:  clickID,
					OriginalURL: originalURL,
					TrackingURL: rw.clickURL(clickID),
				})
			}
			return fmt.Sprintf(`<a %shref="%s"%s>`, sub[1], rw.clickURL(clickID), sub[3])
		})
	}

	if rw.enableOpens {
		result.OpenTrackingID = utils.GenerateTrackingID()
		pixel := fmt.Sprintf(
			`<img src="%s/t/o/%s" width="1" height="1" alt="" style="display:none;width:1px;height:1px;border:0;" />`,
			rw.baseURL, result.OpenTrackingID,
		)
		if loc := bodyClosePattern.FindStringIndex(result.ModifiedHTML); loc != nil {
			result.ModifiedHTML = result.ModifiedHTML[:loc[0]] + pixel + result.ModifiedHTML[loc[0]:]
		} else {
			result.ModifiedHTML += pixel
		}
	}

	return result
}

func (rw *rewriter) clickURL(clickID string) string {
	return fmt.Sprintf("%s/t/c/%s", rw.baseURL, clickID)
}
