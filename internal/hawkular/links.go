package hawkular

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"hawkview/internal/models"
)

// ParsePageLinks reads the pagination relations out of a Link header and the
// item total out of X-Total-Count. Relations without a page query parameter
// are ignored.
func ParsePageLinks(h http.Header) models.PageLinks {
	var links models.PageLinks
	if n, err := strconv.Atoi(strings.TrimSpace(h.Get("X-Total-Count"))); err == nil {
		links.Total = n
	}
	for _, raw := range h.Values("Link") {
		for _, part := range splitLinks(raw) {
			target, rel, ok := parseLink(part)
			if !ok {
				continue
			}
			page, ok := pageOf(target)
			if !ok {
				continue
			}
			switch rel {
			case "first":
				links.First = &page
			case "prev", "previous":
				links.Prev = &page
			case "next":
				links.Next = &page
			case "last":
				links.Last = &page
			}
		}
	}
	return links
}

// splitLinks splits on commas outside angle brackets; link targets may
// contain commas in their query strings.
func splitLinks(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

func parseLink(part string) (target, rel string, ok bool) {
	part = strings.TrimSpace(part)
	if !strings.HasPrefix(part, "<") {
		return "", "", false
	}
	end := strings.IndexByte(part, '>')
	if end < 0 {
		return "", "", false
	}
	target = part[1:end]
	for _, param := range strings.Split(part[end+1:], ";") {
		k, v, found := strings.Cut(strings.TrimSpace(param), "=")
		if !found || !strings.EqualFold(strings.TrimSpace(k), "rel") {
			continue
		}
		rel = strings.ToLower(strings.Trim(strings.TrimSpace(v), `"`))
	}
	return target, rel, rel != ""
}

func pageOf(target string) (int, bool) {
	u, err := url.Parse(target)
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil {
		return 0, false
	}
	return n, true
}
