package server

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"

	"github.com/joseph-ayodele/tools-tracker/internal/common"
)

// unary adapts a typed handler to the shape grpc.MethodDesc expects. Decoding goes through the
// registered codec; interceptors see the decoded request.
func unary[S any, Req any, Resp any](fullMethod string, call func(S, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(*Req))
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, handler)
	}
}

func method[S any, Req any, Resp any](service, name string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler:    unary(FullMethod(service, name), call),
	}
}

// FullMethod returns the "/service/method" path a client invokes.
func FullMethod(service, name string) string {
	return "/" + service + "/" + name
}

func parseID(field, value string) (uuid.UUID, error) {
	v := common.NewValidator().Field(field, strings.TrimSpace(value), common.Required, common.UUID)
	if err := common.ValidateAndReturnError(v); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(strings.TrimSpace(value))
}
