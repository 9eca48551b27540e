package error

import "net/http"

type DuplicateError string

func (err DuplicateError) Error() string {
	return string(err)
}

func (err DuplicateError) ErrCode() string {
	return "DUPLICATE_ERROR"
}

func (err DuplicateError) StatusCode() int {
	return http.StatusConflict
}
