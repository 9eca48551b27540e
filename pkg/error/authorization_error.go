package error

import "net/http"

type AuthorizationError string

func (err AuthorizationError) Error() string {
	return string(err)
}

func (err AuthorizationError) ErrCode() string {
	return "AUTHORIZATION_ERROR"
}

func (err AuthorizationError) StatusCode() int {
	return http.StatusForbidden
}
