package service

import "errors"

var (
	ErrMissingFile     = errors.New("file not supplied")
	ErrUnsupportedType = errors.New("disallowed filetype")
	ErrInvalidTitle    = errors.New("invalid title")
	ErrUnclassifiable  = errors.New("media file could not be parsed")
	ErrDispatch        = errors.New("failed to dispatch transcode job")
)
