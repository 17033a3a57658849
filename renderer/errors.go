package renderer

import "errors"

var (
	ErrNoTracers      = errors.New("renderer: no tracers attached")
	ErrTreeNotDefined = errors.New("renderer: no tree defined")
	ErrInterrupted    = errors.New("renderer: interrupted while rendering")
	ErrNoGrafter      = errors.New("renderer: no geometry attached for grafting")
)
