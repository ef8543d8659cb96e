package model

import "objdet/pkg/objdet/imaging"

// Scene is the runtime RGB-D input detect operates over. Depth must be
// normalized to the same units as template depth (spec.md §6).
type Scene struct {
	RGB   *imaging.RGBImage
	Gray  *imaging.GrayImage
	HSV   *imaging.HSVImage
	Depth *imaging.DepthImage
}
