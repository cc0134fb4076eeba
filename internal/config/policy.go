package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// BillingPolicy holds the operator-tunable billing texts and defaults. It is
// reloaded at runtime when the config file changes, so support staff can adjust
// the wording without a redeploy.
type BillingPolicy struct {
	DefaultCurrency string `mapstructure:"defaultCurrency"`
	PastDueWarning  string `mapstructure:"pastDueWarning"`
	CanceledWarning string `mapstructure:"canceledWarning"`
}

func DefaultBillingPolicy() BillingPolicy {
	return BillingPolicy{
		DefaultCurrency: "EUR",
		PastDueWarning:  "Your last payment failed. Please update your payment method to keep access.",
		CanceledWarning: "Your subscription is canceled and will end at the close of the current billing period.",
	}
}

type BillingPolicyHolder struct {
	current atomic.Value // holds BillingPolicy
}

func NewBillingPolicyHolder() (*BillingPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("billing")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/fabriko/config")
	v.AddConfigPath("/etc/fabriko")
	v.AddConfigPath(".")

	v.SetEnvPrefix("FABRIKO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultBillingPolicy()
	v.SetDefault("billing.defaultCurrency", defaults.DefaultCurrency)
	v.SetDefault("billing.pastDueWarning", defaults.PastDueWarning)
	v.SetDefault("billing.canceledWarning", defaults.CanceledWarning)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var policy BillingPolicy
	if err := v.UnmarshalKey("billing", &policy); err != nil {
		return nil, err
	}
	if err := validateBillingPolicy(policy); err != nil {
		return nil, err
	}

	holder := &BillingPolicyHolder{}
	holder.current.Store(policy)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated BillingPolicy
		if err := v.UnmarshalKey("billing", &updated); err != nil {
			log.Printf("[billing-policy] reload failed: %v", err)
			return
		}
		if err := validateBillingPolicy(updated); err != nil {
			log.Printf("[billing-policy] invalid policy ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[billing-policy] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticBillingPolicyHolder wraps a fixed policy, without file watching.
func NewStaticBillingPolicyHolder(policy BillingPolicy) *BillingPolicyHolder {
	holder := &BillingPolicyHolder{}
	holder.current.Store(policy)
	return holder
}

func (h *BillingPolicyHolder) Get() BillingPolicy {
	return h.current.Load().(BillingPolicy)
}

func validateBillingPolicy(policy BillingPolicy) error {
	if strings.TrimSpace(policy.DefaultCurrency) == "" {
		return errors.New("billing.defaultCurrency cannot be empty")
	}
	return nil
}
