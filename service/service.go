package service

import "context"

// Service is a readiness-gated unit of request processing.
//
// Ready must be called before every Call. It returns nil when the service may accept
// a request, blocks while the service isn't ready yet, and returns an error when the
// service is failed for good. Blocking in Ready is the only legal way to wait for
// readiness: callers must not spin on it. A cancelled ctx interrupts the wait without
// failing the service.
//
// Ready/Call pairs are strictly ordered per instance, unless the concrete service
// explicitly documents concurrent use.
type Service[Req, Resp any] interface {
	Ready(ctx context.Context) error
	Call(ctx context.Context, req Req) (Resp, error)
}

// Factory produces a fresh service instance bound to connection-scoped configuration.
// Factories hold only shared immutable state, so they are cheap to copy and share
// between connections.
type Factory[Cfg, Req, Resp any] interface {
	NewService(ctx context.Context, cfg Cfg) (Service[Req, Resp], error)
}

// Func is a stateless service, always ready.
type Func[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

func (f Func[Req, Resp]) Ready(context.Context) error {
	return nil
}

func (f Func[Req, Resp]) Call(ctx context.Context, req Req) (Resp, error) {
	return f(ctx, req)
}

// FactoryFunc adapts a plain constructor to the Factory interface.
type FactoryFunc[Cfg, Req, Resp any] func(ctx context.Context, cfg Cfg) (Service[Req, Resp], error)

func (f FactoryFunc[Cfg, Req, Resp]) NewService(ctx context.Context, cfg Cfg) (Service[Req, Resp], error) {
	return f(ctx, cfg)
}

// Shared returns a factory handing out the same service instance to every caller. Suits
// only services that are safe for concurrent use, e.g. Func.
func Shared[Cfg, Req, Resp any](svc Service[Req, Resp]) Factory[Cfg, Req, Resp] {
	return FactoryFunc[Cfg, Req, Resp](func(context.Context, Cfg) (Service[Req, Resp], error) {
		return svc, nil
	})
}

// Oneshot waits for the service to become ready and calls it once.
func Oneshot[Req, Resp any](ctx context.Context, svc Service[Req, Resp], req Req) (resp Resp, err error) {
	if err = svc.Ready(ctx); err != nil {
		return resp, err
	}

	return svc.Call(ctx, req)
}
