package logic

import "errors"

var (
	// ErrBotVisitor is returned for requests whose User-Agent identifies a crawler.
	ErrBotVisitor = errors.New("visitor is a bot")
	// ErrRateLimited is returned when a visitor exceeded its view allowance.
	ErrRateLimited = errors.New("visitor rate limited")
)
