package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// PageToken identifies the next page of a filtered listing. The filter is carried so a token
// cannot be replayed against a different status filter.
type PageToken struct {
	Offset int
	Filter string
}

// EncodePageToken creates a URL-safe token for the page starting at offset.
func EncodePageToken(offset int, filter string) string {
	return EncodeMultiFieldToken(strconv.Itoa(offset), filter)
}

// DecodePageToken parses a token produced by EncodePageToken.
func DecodePageToken(token string) (PageToken, error) {
	fields, err := DecodeMultiFieldToken(token)
	if err != nil {
		return PageToken{}, err
	}
	if len(fields) != 2 {
		return PageToken{}, fmt.Errorf("invalid pagination token format (split)")
	}
	offset, err := strconv.Atoi(fields[0])
	if err != nil || offset < 0 {
		return PageToken{}, fmt.Errorf("invalid pagination token format (offset parse)")
	}
	return PageToken{Offset: offset, Filter: fields[1]}, nil
}

// NextPageToken returns the token for the page after [offset, offset+pageLen), or "" when
// that page was the last one.
func NextPageToken(offset, pageLen, total int, filter string) string {
	next := offset + pageLen
	if pageLen == 0 || next >= total {
		return ""
	}
	return EncodePageToken(next, filter)
}

// EncodeMultiFieldToken creates a token with any number of string fields
func EncodeMultiFieldToken(fields ...string) string {
	tokenStr := strings.Join(fields, "|")
	return base64.RawURLEncoding.EncodeToString([]byte(tokenStr))
}

// DecodeMultiFieldToken decodes a token into its component fields
func DecodeMultiFieldToken(token string) ([]string, error) {
	decodedBytes, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid pagination token format (base64 decode): %w", err)
	}
	return strings.Split(string(decodedBytes), "|"), nil
}
