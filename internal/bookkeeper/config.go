package bookkeeper

import (
	"go.uber.org/zap"

	"github.com/punchamoorthee/bookkeeper/internal/config"
)

// FromConfig builds a client from loaded configuration.
func FromConfig(cfg *config.Config, log *zap.Logger, opts ...Option) (*Client, error) {
	if err := cfg.RequireTenant(); err != nil {
		return nil, err
	}
	base := []Option{
		WithRequestTimeout(cfg.RequestTimeout),
		WithExpiredStatusCodes(cfg.ExpiredStatusCodes...),
		WithLogger(log),
	}
	return New(cfg.Host, cfg.APIPrefix, cfg.TenantID, append(base, opts...)...)
}
