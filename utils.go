package jsonkeeper

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ComposeURL joins the server URL with path segments, trimming duplicate slashes.
func ComposeURL(base string, segments ...string) string {
	out := strings.TrimRight(base, "/")
	for _, seg := range segments {
		seg = strings.Trim(seg, "/")
		if seg == "" {
			continue
		}
		out += "/" + seg
	}
	return out
}

func ComposeDocumentURL(serverURL, apiPath, id string) string {
	return ComposeURL(serverURL, apiPath, url.PathEscape(id))
}

func ComposeRangeURL(documentURL string, n int) string {
	return documentURL + "/range" + strconv.Itoa(n)
}

var rangeSuffix = regexp.MustCompile(`^range([1-9][0-9]*)$`)

// ParseRangeSegment extracts n from a "range<n>" path segment.
func ParseRangeSegment(seg string) (int, error) {
	m := rangeSuffix.FindStringSubmatch(seg)
	if m == nil {
		return 0, fmt.Errorf("invalid range segment")
	}
	return strconv.Atoi(m[1])
}

func ComposePageURL(collectionURL string, page int64) string {
	return collectionURL + "?page=" + strconv.FormatInt(page, 10)
}

// MarshalJSON flattens configured extra properties next to the metadata fields.
func (m DocumentMetadata) MarshalJSON() ([]byte, error) {
	type plain DocumentMetadata
	base, err := json.Marshal(plain(m))
	if err != nil {
		return nil, err
	}
	if len(m.Extra) == 0 {
		return base, nil
	}
	var merged map[string]any
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for k, v := range m.Extra {
		if _, taken := merged[k]; taken {
			continue
		}
		merged[k] = v
	}
	return json.Marshal(merged)
}
