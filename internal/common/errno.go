package common

import (
	"errors"
	"fmt"
)

type ErrNo struct {
	ErrCode int    `json:"err_code"`
	ErrMsg  string `json:"err_msg"`
}

const (
	SuccessCode = 0

	ServiceErr = iota + 10000
	RequestInvalid
	TokenInvalid
	PasswordErr
	UserNotExists
	ProjectNotExists
	ProjectExists
	JobNotExists
	JobAlreadyRun
	CommitInvalid
	SignatureInvalid
	HookNotTracked
	RegistryRequired
	QueueFail
)

var errorMsg = map[int]string{
	SuccessCode:      "success",
	ServiceErr:       "service error",
	RequestInvalid:   "request invalid",
	TokenInvalid:     "token invalid",
	PasswordErr:      "password error",
	UserNotExists:    "user not exists",
	ProjectNotExists: "project not exists",
	ProjectExists:    "project already exists",
	JobNotExists:     "job not exists",
	JobAlreadyRun:    "job has already been run",
	CommitInvalid:    "commit must be a 40 character git sha",
	SignatureInvalid: "signature invalid",
	HookNotTracked:   "webhook is not tracked for this project",
	RegistryRequired: "utility projects require a target registry",
	QueueFail:        "job could not be queued",
}

func (e ErrNo) Error() string {
	return fmt.Sprintf("err_code=%d, err_msg=%s", e.ErrCode, e.ErrMsg)
}

func NewErrNo(errCode int) error {
	return ErrNo{
		ErrCode: errCode,
		ErrMsg:  errorMsg[errCode],
	}
}

func ConvertErr(err error) ErrNo {
	e := ErrNo{}
	if errors.As(err, &e) {
		return e
	}
	return ErrNo{
		ErrCode: ServiceErr,
		ErrMsg:  err.Error(),
	}
}
