package protocol

import "errors"

var (
	errMissingNames  = errors.New("missing required parameter: names")
	errEmptyNames    = errors.New("names must list at least one setting")
	errBadName       = errors.New("malformed setting name")
	errPriorityRange = errors.New("priority out of range [0,99]")
)
