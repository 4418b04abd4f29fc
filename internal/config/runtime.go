package config

import (
	"time"

	"github.com/jonathan/b2b-content-agent/internal/gateway"
	"github.com/jonathan/b2b-content-agent/internal/llm"
	"github.com/jonathan/b2b-content-agent/internal/quota"
)

// ProviderOrder returns the configured failover order, or llm.DefaultOrder.
func (c *Config) ProviderOrder() []llm.Provider {
	if len(c.Providers) == 0 {
		return llm.DefaultOrder
	}
	order := make([]llm.Provider, len(c.Providers))
	for i, p := range c.Providers {
		order[i] = llm.Provider(p)
	}
	return order
}

// QuotaLimits builds per-provider rate limits: catalog defaults, then
// provider_limits from the config, then QUOTA_<PROVIDER>_* env overrides.
func (c *Config) QuotaLimits() map[string]quota.Limit {
	limits := make(map[string]quota.Limit, len(llm.Catalog))
	for p, spec := range llm.Catalog {
		limits[string(p)] = quota.Limit{RequestsPerWindow: spec.DefaultRPM, Window: time.Minute}
	}
	for name, override := range c.ProviderLimits {
		limit := limits[name]
		if limit.Window == 0 {
			limit.Window = time.Minute
		}
		if override.RPM > 0 {
			limit.RequestsPerWindow = override.RPM
		}
		if override.MinGap > 0 {
			limit.MinGap = override.MinGap.D()
		}
		limits[name] = limit
	}
	quota.ApplyEnvOverrides(limits)
	return limits
}

// GatewayConfig returns retry tuning with unset fields taken from
// gateway.DefaultConfig.
func (c *Config) GatewayConfig() gateway.Config {
	gc := gateway.DefaultConfig()
	if c.MaxRetries > 0 {
		gc.MaxRetries = c.MaxRetries
	}
	if c.InitialBackoff > 0 {
		gc.InitialBackoff = c.InitialBackoff.D()
	}
	if c.MaxBackoff > 0 {
		gc.MaxBackoff = c.MaxBackoff.D()
	}
	if c.MaxQuotaWait > 0 {
		gc.MaxQuotaWait = c.MaxQuotaWait.D()
	}
	return gc
}
