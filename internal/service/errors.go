package service

import "errors"

// ErrEmptyInput is returned when a solve request carries neither an image
// nor text, or a follow-up carries an empty message.
var ErrEmptyInput = errors.New("service: empty input")
