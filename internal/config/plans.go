package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanCatalog maps provider price ids to plan tiers.
type PlanCatalog struct {
	Prices map[string]string `mapstructure:"prices"`
}

var validTiers = map[string]struct{}{
	"FREE":    {},
	"BASIC":   {},
	"PREMIUM": {},
}

// TierForPrice returns the plan tier configured for priceID.
func (c PlanCatalog) TierForPrice(priceID string) (string, bool) {
	priceID = strings.TrimSpace(priceID)
	if priceID == "" || len(c.Prices) == 0 {
		return "", false
	}
	tier, ok := c.Prices[priceID]
	if !ok {
		// viper lowercases map keys
		tier, ok = c.Prices[strings.ToLower(priceID)]
	}
	if !ok {
		return "", false
	}
	return strings.ToUpper(strings.TrimSpace(tier)), true
}

type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

// NewPlanCatalogHolder reads plans.yml and keeps it hot-reloaded.
// A missing file yields an empty catalog.
func NewPlanCatalogHolder(cfg Config, log *zap.Logger) (*PlanCatalogHolder, error) {
	log = log.Named("config.plans")
	v := viper.New()

	if cfg.PlanCatalogPath != "" {
		v.SetConfigFile(cfg.PlanCatalogPath)
	} else {
		v.SetConfigName("plans")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/kelas")
		v.AddConfigPath(".")
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(PlanCatalog{Prices: map[string]string{}})

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Info("plan catalog not found, using empty catalog")
			return holder, nil
		}
		return nil, err
	}

	catalog, err := decodePlanCatalog(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePlanCatalog(v)
		if err != nil {
			log.Warn("invalid plan catalog ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("plan catalog reloaded", zap.String("file", e.Name), zap.Int("prices", len(updated.Prices)))
	})

	return holder, nil
}

// NewStaticPlanCatalog returns a holder that never reloads.
func NewStaticPlanCatalog(prices map[string]string) *PlanCatalogHolder {
	holder := &PlanCatalogHolder{}
	holder.current.Store(PlanCatalog{Prices: prices})
	return holder
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	if h == nil {
		return PlanCatalog{}
	}
	return h.current.Load().(PlanCatalog)
}

func decodePlanCatalog(v *viper.Viper) (PlanCatalog, error) {
	var catalog PlanCatalog
	if err := v.UnmarshalKey("plans", &catalog); err != nil {
		return PlanCatalog{}, err
	}
	if catalog.Prices == nil {
		catalog.Prices = map[string]string{}
	}
	if err := validatePlanCatalog(catalog); err != nil {
		return PlanCatalog{}, err
	}
	return catalog, nil
}

func validatePlanCatalog(catalog PlanCatalog) error {
	for price, tier := range catalog.Prices {
		if strings.TrimSpace(price) == "" {
			return errors.New("plans.prices contains an empty price id")
		}
		if _, ok := validTiers[strings.ToUpper(strings.TrimSpace(tier))]; !ok {
			return fmt.Errorf("plans.prices.%s: unknown tier %q", price, tier)
		}
	}
	return nil
}
