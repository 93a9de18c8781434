package storage

import "github.com/pkg/errors"

var (
	ErrUserExists          = errors.New("user already exists")
	ErrUserNotFound        = errors.New("user not found")
	ErrWrongPassword       = errors.New("wrong password")
	ErrEmptyPassword       = errors.New("empty password")
	ErrEmptyAnswer         = errors.New("empty recovery answer")
	ErrNoRecoveryAnswer    = errors.New("no recovery answer set")
	ErrWrongRecoveryAnswer = errors.New("wrong recovery answer")
	ErrInvalidName         = errors.New("invalid name")
	ErrFileNotFound        = errors.New("file not found")
	ErrNoMessages          = errors.New("no messages file")
	ErrMessageNotFound     = errors.New("message not found")
)
