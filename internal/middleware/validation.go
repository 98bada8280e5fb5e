package middleware

import (
	"strconv"
	"unicode/utf8"

	"github.com/capitalize-ai/assistant-engine/internal/apperr"
)

// MaxMessageBytes bounds one chat message.
const MaxMessageBytes = 100000

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return apperr.Validation("message cannot be empty")
	}
	if len(content) > MaxMessageBytes {
		return apperr.Validation("message exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return apperr.Validation("message must be valid UTF-8")
	}
	return nil
}

// ValidateTitle validates a title.
func ValidateTitle(title string) error {
	if len(title) > 500 {
		return apperr.Validation("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return apperr.Validation("title must be valid UTF-8")
	}
	return nil
}

// ParseID parses a positive integer path identifier.
func ParseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("invalid id %q", raw)
	}
	return uint(id), nil
}

// ParsePagination reads limit and offset, applying defaults and bounds.
func ParsePagination(limitRaw, offsetRaw string, defaultLimit, maxLimit int) (limit, offset int, err error) {
	limit = defaultLimit
	if limitRaw != "" {
		limit, err = strconv.Atoi(limitRaw)
		if err != nil || limit <= 0 {
			return 0, 0, apperr.Validation("invalid limit %q", limitRaw)
		}
		if limit > maxLimit {
			limit = maxLimit
		}
	}
	if offsetRaw != "" {
		offset, err = strconv.Atoi(offsetRaw)
		if err != nil || offset < 0 {
			return 0, 0, apperr.Validation("invalid offset %q", offsetRaw)
		}
	}
	return limit, offset, nil
}
