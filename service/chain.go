package service

import "context"

type chain[A, B, C any] struct {
	first  Service[A, B]
	second Service[B, C]
}

// Then composes two services into a single one, feeding responses of the first one
// into the second one. The composition is ready only when both of them are.
func Then[A, B, C any](first Service[A, B], second Service[B, C]) Service[A, C] {
	return chain[A, B, C]{
		first:  first,
		second: second,
	}
}

func (c chain[A, B, C]) Ready(ctx context.Context) error {
	if err := c.first.Ready(ctx); err != nil {
		return err
	}

	return c.second.Ready(ctx)
}

func (c chain[A, B, C]) Call(ctx context.Context, req A) (resp C, err error) {
	mid, err := c.first.Call(ctx, req)
	if err != nil {
		return resp, err
	}

	return c.second.Call(ctx, mid)
}

type chainFactory[Cfg, A, B, C any] struct {
	first  Factory[Cfg, A, B]
	second Factory[Cfg, B, C]
}

// ThenFactory is the factory counterpart of Then: both factories are instantiated with
// the same configuration and their services are composed.
func ThenFactory[Cfg, A, B, C any](first Factory[Cfg, A, B], second Factory[Cfg, B, C]) Factory[Cfg, A, C] {
	return chainFactory[Cfg, A, B, C]{
		first:  first,
		second: second,
	}
}

func (c chainFactory[Cfg, A, B, C]) NewService(ctx context.Context, cfg Cfg) (Service[A, C], error) {
	first, err := c.first.NewService(ctx, cfg)
	if err != nil {
		return nil, err
	}

	second, err := c.second.NewService(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return Then(first, second), nil
}
