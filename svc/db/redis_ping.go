package db

import (
	"context"
)

func (r *Redis) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return storeErr("ping", r.client.Ping(ctx).Err())
}
