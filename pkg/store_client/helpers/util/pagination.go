package util

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/developer-overheid-nl/don-app-store/pkg/store_client/models"
)

// SetPaginationHeaders writes an RFC 8288 Link header (self, first, prev,
// next, last) and X-Total-Count.
func SetPaginationHeaders(req *http.Request, setHeader func(key, value string), p models.Pagination) {
	setHeader("X-Total-Count", strconv.Itoa(p.TotalRecords))

	pageURL := func(page int) string {
		u := *req.URL
		q := u.Query()
		q.Set("page", strconv.Itoa(page))
		q.Set("perPage", strconv.Itoa(p.RecordsPerPage))
		u.RawQuery = q.Encode()
		u.Scheme, u.Host = "", ""
		return u.String()
	}

	links := []string{fmt.Sprintf(`<%s>; rel="self"`, pageURL(p.CurrentPage))}
	if p.TotalPages > 0 {
		links = append(links, fmt.Sprintf(`<%s>; rel="first"`, pageURL(1)))
	}
	if p.Previous != nil {
		links = append(links, fmt.Sprintf(`<%s>; rel="prev"`, pageURL(*p.Previous)))
	}
	if p.Next != nil {
		links = append(links, fmt.Sprintf(`<%s>; rel="next"`, pageURL(*p.Next)))
	}
	if p.TotalPages > 0 {
		links = append(links, fmt.Sprintf(`<%s>; rel="last"`, pageURL(p.TotalPages)))
	}
	setHeader("Link", strings.Join(links, ", "))
}
