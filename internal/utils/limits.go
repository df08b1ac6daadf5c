// Package utils holds small helpers shared by the handlers and services.
package utils

import (
	"strconv"
	"strings"
)

// ParseLimit reads a ?limit= value. Blank, malformed and non-positive input
// yields 0, which ClampLimit turns into the list default.
func ParseLimit(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ClampLimit bounds n to [1, ceiling]; n <= 0 becomes def.
//
//	utils.ClampLimit(0, 50, 200)   // 50
//	utils.ClampLimit(500, 50, 200) // 200
func ClampLimit(n, def, ceiling int) int {
	if n <= 0 {
		n = def
	}
	if n > ceiling {
		n = ceiling
	}
	if n < 1 {
		n = 1
	}
	return n
}

// WeakETag joins parts with ':' into a weak validator, e.g. W/"todo:50:12:1700000000".
func WeakETag(parts ...string) string {
	return `W/"` + strings.Join(parts, ":") + `"`
}
