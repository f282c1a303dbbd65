package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PlanEntry describes one sellable plan in the catalog file.
type PlanEntry struct {
	Slug               string `mapstructure:"slug"`
	Name               string `mapstructure:"name"`
	CourseAccessMonths int    `mapstructure:"courseAccessMonths"`
}

// PlanCatalog is the set of plans seeded into the store at startup.
type PlanCatalog struct {
	Plans []PlanEntry `mapstructure:"plans"`
}

// DefaultPlanCatalog is used when no plans.yml is mounted.
func DefaultPlanCatalog() PlanCatalog {
	return PlanCatalog{
		Plans: []PlanEntry{
			{Slug: "starter", Name: "Starter", CourseAccessMonths: 12},
			{Slug: "team", Name: "Team", CourseAccessMonths: 12},
			{Slug: "enterprise", Name: "Enterprise", CourseAccessMonths: 0},
		},
	}
}

// PlanCatalogHolder exposes the current catalog and hot-reloads it when the
// mounted plans.yml changes.
type PlanCatalogHolder struct {
	current atomic.Value // holds PlanCatalog
}

func NewPlanCatalogHolder() (*PlanCatalogHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/paycore/config") // Volume-mounted config
	v.AddConfigPath("/etc/paycore")            // System config
	v.AddConfigPath(".")                       // Current directory (dev mode)

	v.SetEnvPrefix("PAYCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultPlanCatalog()
		v.SetDefault("plans", defaults.Plans)
	}

	var catalog PlanCatalog
	if err := v.Unmarshal(&catalog); err != nil {
		return nil, err
	}
	if err := validatePlanCatalog(catalog); err != nil {
		return nil, err
	}

	holder := &PlanCatalogHolder{}
	holder.current.Store(catalog)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated PlanCatalog
		if err := v.Unmarshal(&updated); err != nil {
			log.Printf("[plan-catalog] reload failed: %v", err)
			return
		}
		if err := validatePlanCatalog(updated); err != nil {
			log.Printf("[plan-catalog] invalid catalog ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[plan-catalog] reloaded from %s", e.Name)
	})

	return holder, nil
}

func (h *PlanCatalogHolder) Get() PlanCatalog {
	return h.current.Load().(PlanCatalog)
}

func validatePlanCatalog(catalog PlanCatalog) error {
	if len(catalog.Plans) == 0 {
		return errors.New("plans cannot be empty")
	}
	for _, plan := range catalog.Plans {
		if strings.TrimSpace(plan.Slug) == "" {
			return errors.New("plan slug cannot be empty")
		}
	}
	return nil
}
