package client

import (
	"context"

	"github.com/foomo/posstore/pkg/handler"
)

type transport interface {
	call(ctx context.Context, route handler.Route, request interface{}, response interface{}) error
	// download returns the file name and the bare body of the reply
	download(ctx context.Context, route handler.Route, request interface{}) (string, []byte, error)
	shutdown()
}
