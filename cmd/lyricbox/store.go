package main

import (
	"context"

	"lyricbox/cfg"
	"lyricbox/pkg/secrets"
	"lyricbox/svc/db"
	"lyricbox/svc/util"

	"github.com/pkg/errors"
)

// resolveSecrets replaces tokens named by *_SECRET settings with the value
// held by the secret store.
func resolveSecrets(ctx context.Context, c *cfg.Cfg) error {
	if c.AdminTokenName == "" && c.RESTTokenName == "" {
		return nil
	}
	adapter, err := secrets.NewAdapter(ctx)
	if err != nil {
		return errors.Wrap(err, "init secrets adapter")
	}
	if c.AdminTokenName != "" {
		v, err := adapter.GetSecret(ctx, c.AdminTokenName)
		if err != nil {
			return errors.Wrap(err, "load admin token")
		}
		c.AdminToken.Wipe()
		c.AdminToken = cfg.NewSecret(v)
	}
	if c.RESTTokenName != "" {
		v, err := adapter.GetSecret(ctx, c.RESTTokenName)
		if err != nil {
			return errors.Wrap(err, "load store token")
		}
		c.RESTToken.Wipe()
		c.RESTToken = cfg.NewSecret(v)
	}
	return nil
}

// openStore connects the configured backend. A nil store with a nil error
// means the credentials are missing and the board runs unconfigured.
func openStore(c *cfg.Cfg) (db.Store, *db.SQLite, error) {
	if !c.StoreConfigured() {
		util.Warn().Str("backend", c.StoreBackend).Msg("store credentials missing, every request will fail with a configuration error")
		return nil, nil, nil
	}
	switch c.StoreBackend {
	case cfg.BackendREST:
		s, err := db.NewREST(c.RESTURL, c.RESTToken.Value(), c.StoreTimeout)
		if err != nil {
			return nil, nil, err
		}
		return db.Instrument(s), nil, nil
	case cfg.BackendRedis:
		s, err := db.NewRedis(c.RedisURL, c)
		if err != nil {
			return nil, nil, err
		}
		return db.Instrument(s), nil, nil
	case cfg.BackendSQLite:
		s, err := db.NewSQLiteWithConfig(c.DatabasePath, c.StoreTimeout)
		if err != nil {
			return nil, nil, err
		}
		return db.Instrument(s), s, nil
	case cfg.BackendMemory:
		return db.Instrument(db.NewMemory()), nil, nil
	}
	return nil, nil, errors.Errorf("unknown store backend %q", c.StoreBackend)
}
