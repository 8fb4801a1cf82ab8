// Package grpcmw provides gRPC server interceptors that ship one access-log
// record per call through a ddlogger.LogWriter.
package grpcmw

import (
	"context"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/hyp3rd/ddlogger"
)

type requestIDKey struct{}

// RequestIDFromContext returns the request id the interceptors read from the
// incoming metadata, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)

	return id
}

// UnaryServerInterceptor logs "FULL_METHOD CODE LATENCY" for every unary call.
func UnaryServerInterceptor(writer ddlogger.LogWriter, opts ...Option) grpc.UnaryServerInterceptor {
	cfg := buildOptions(opts)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, requestID := withRequestID(ctx, cfg.requestKey)
		start := cfg.now()

		resp, err := handler(ctx, req)

		cfg.record(writer, info.FullMethod, requestID, start, err)

		return resp, err
	}
}

// StreamServerInterceptor logs one record per stream, when the handler returns.
func StreamServerInterceptor(writer ddlogger.LogWriter, opts ...Option) grpc.StreamServerInterceptor {
	cfg := buildOptions(opts)

	return func(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, requestID := withRequestID(stream.Context(), cfg.requestKey)
		start := cfg.now()

		err := handler(srv, &contextStream{ServerStream: stream, ctx: ctx})

		cfg.record(writer, info.FullMethod, requestID, start, err)

		return err
	}
}

func (o options) record(writer ddlogger.LogWriter, method, requestID string, start time.Time, callErr error) {
	code := status.Code(callErr)

	var b strings.Builder

	b.WriteString(method + " " + code.String() + " " + o.now().Sub(start).String())

	if requestID != "" {
		b.WriteString(" request_id=" + requestID)
	}

	if callErr != nil {
		b.WriteString(" error=" + status.Convert(callErr).Message())
	}

	err := writer.Write(ddlogger.Record{Level: levelFor(code), Module: o.module, Message: b.String()})
	if err != nil {
		o.onError(err)
	}
}

func withRequestID(ctx context.Context, key string) (context.Context, string) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, ""
	}

	values := md.Get(key)
	if len(values) == 0 || values[0] == "" {
		return ctx, ""
	}

	return context.WithValue(ctx, requestIDKey{}, values[0]), values[0]
}

func levelFor(code codes.Code) ddlogger.Level {
	//nolint:exhaustive // everything else is a server-side failure
	switch code {
	case codes.OK:
		return ddlogger.InfoLevel
	case codes.Canceled, codes.InvalidArgument, codes.NotFound, codes.AlreadyExists,
		codes.PermissionDenied, codes.Unauthenticated, codes.FailedPrecondition,
		codes.OutOfRange, codes.ResourceExhausted:
		return ddlogger.WarnLevel
	default:
		return ddlogger.ErrorLevel
	}
}

type contextStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *contextStream) Context() context.Context {
	return s.ctx
}
