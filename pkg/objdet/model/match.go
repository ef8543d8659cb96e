package model

import "objdet/pkg/objdet/geometry"

// Match is the final surviving (window, template, score) record, per
// spec.md §3 and the `Match` POD return type of §6.
type Match struct {
	WindowRect geometry.Rect
	TemplateID int
	Score      float64
}
