package catalog

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/andresuchdata/imgsync/internal/domain"
)

const detailMarker = "details-"

// titleReplacer applies the filename-safety substitutions in order. Separators
// with surrounding spaces go first so " - " collapses to a single underscore.
var titleReplacer = []struct{ old, new string }{
	{" - ", "_"},
	{" ", "_"},
	{"/", "_"},
	{"\\", "_"},
	{":", "_"},
	{"?", "_"},
	{"\"", "_"},
	{"<", "_"},
	{">", "_"},
	{"|", "_"},
}

// Sanitize makes a listing title safe to use as a filename component.
func Sanitize(title string) string {
	for _, r := range titleReplacer {
		title = strings.ReplaceAll(title, r.old, r.new)
	}
	return title
}

// ExternalID extracts the listing identifier from a detail page URL, e.g.
// ".../details-99.html" yields "99". A URL without the marker falls back to
// everything before its first dot, sanitized so it stays a single path
// component.
func ExternalID(detailURL string) string {
	id := detailURL
	if idx := strings.LastIndex(id, detailMarker); idx >= 0 {
		id = id[idx+len(detailMarker):]
	}
	if idx := strings.Index(id, "."); idx >= 0 {
		id = id[:idx]
	}
	return Sanitize(id)
}

// Expand turns a listing into one WorkItem per image, numbered from 1.
func Expand(listing domain.Listing) []domain.WorkItem {
	title := Sanitize(listing.Title)
	items := make([]domain.WorkItem, 0, len(listing.ImageURLs))
	for i, u := range listing.ImageURLs {
		items = append(items, domain.WorkItem{
			SourceURL: u,
			Filename:  fmt.Sprintf("%s_%s_%d%s", title, listing.ExternalID, i+1, urlExt(u)),
		})
	}
	return items
}

// urlExt returns the extension of the URL path, ignoring query and fragment.
func urlExt(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil {
		p = u.Path
	}
	ext := path.Ext(p)
	if strings.ContainsAny(ext, "/\\") {
		return ""
	}
	return ext
}
