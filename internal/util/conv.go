package util

import (
	"strconv"
	"time"
)

// ParseID 路径参数中的 id，非法或为 0 时返回 BadRequest
func ParseID(s string) (uint, error) {
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil || id == 0 {
		return 0, BadRequestf("invalid id: %q", s)
	}
	return uint(id), nil
}

// ParseOptionalDate 支持 RFC3339 和 2006-01-02 两种格式，空串返回 nil
func ParseOptionalDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(DateFormat, s, time.Local)
	if err != nil {
		return nil, BadRequestf("malformed date: %q", s)
	}
	return &t, nil
}
