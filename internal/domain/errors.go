package domain

import "errors"

var (
	ErrSettingsMissing = errors.New("plugin settings missing")
	ErrRemote          = errors.New("remote api error")
	ErrProtocol        = errors.New("unexpected api response")
	ErrJobFailed       = errors.New("image job failed")
	ErrTimeout         = errors.New("image job timed out")
	ErrEmptyResult     = errors.New("no images generated")
)
