package posts

import "errors"

var (
	ErrPostNotFound      = errors.New("post not found")
	ErrUnauthorized      = errors.New("not the owner of this post")
	ErrInvalidEdit       = errors.New("invalid edit request")
	ErrTransactionFailed = errors.New("transaction failed")
)
