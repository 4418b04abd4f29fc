package types

import "time"

// ProviderQuota is the persisted view of one provider's rate-limit state.
type ProviderQuota struct {
	ProviderName           string     `json:"provider_name" validate:"required"`
	WindowLimit            int        `json:"window_limit" validate:"min=1"`
	WindowSeconds          int        `json:"window_seconds" validate:"min=1"`
	WindowStart            time.Time  `json:"window_start"`
	CallsInWindow          int        `json:"calls_in_window" validate:"min=0"`
	CooldownUntil          *time.Time `json:"cooldown_until,omitempty"`
	ConsecutiveQuotaErrors int        `json:"consecutive_quota_errors,omitempty" validate:"min=0"`
}

// InCooldown reports whether the provider is cooling down at now.
func (q ProviderQuota) InCooldown(now time.Time) bool {
	return q.CooldownUntil != nil && now.Before(*q.CooldownUntil)
}
