package model

import "objdet/pkg/objdet/geometry"

// Warning is a recoverable, per-item failure recorded during training
// or verification rather than surfaced as an error, per spec.md §7's
// propagation policy for InsufficientFeatures and NumericDegenerate.
type Warning struct {
	Kind       ErrorKind
	TemplateID int // -1 when not applicable
	Window     *geometry.Rect
	Message    string
}

// Diagnostics accumulates warnings across a Train or Detect run. It is
// the structured hand-off point a caller's own logger consumes; the
// core itself never imports a logging library (spec.md §1 scopes
// logging out as a collaborator concern).
type Diagnostics struct {
	Warnings []Warning
}

func (d *Diagnostics) warn(w Warning) { d.Warnings = append(d.Warnings, w) }

// WarnInsufficientFeatures records a template that failed training
// because it had fewer than N eligible edge or stable pixels.
func (d *Diagnostics) WarnInsufficientFeatures(templateID int, message string) {
	d.warn(Warning{Kind: InsufficientFeatures, TemplateID: templateID, Message: message})
}

// WarnNumericDegenerate records a (window, template) cascade run
// dropped because a required sampling region had no valid (non-zero)
// depth.
func (d *Diagnostics) WarnNumericDegenerate(templateID int, window geometry.Rect, message string) {
	w := window
	d.warn(Warning{Kind: NumericDegenerate, TemplateID: templateID, Window: &w, Message: message})
}
