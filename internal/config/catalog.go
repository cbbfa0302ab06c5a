package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ServiceEntry describes one known subscription service the extension can
// match a visited site against.
type ServiceEntry struct {
	Name         string   `yaml:"name"`
	Category     string   `yaml:"category"`
	Domains      []string `yaml:"domains"`
	BillingCycle string   `yaml:"billing_cycle,omitempty"` // typical cycle, informational
	Website      string   `yaml:"website,omitempty"`
}

// CatalogDefaults holds fallback values for entries that omit them.
type CatalogDefaults struct {
	Category     string `yaml:"category"`
	BillingCycle string `yaml:"billing_cycle"`
}

// Catalog is the root configuration for catalog.yaml.
type Catalog struct {
	Services []ServiceEntry  `yaml:"services"`
	Defaults CatalogDefaults `yaml:"defaults"`
}

var validCycles = map[string]bool{
	"": true, "weekly": true, "monthly": true, "quarterly": true, "yearly": true,
}

// LoadCatalog loads and validates the service catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		path = "configs/catalog.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := cat.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	cat.applyDefaults()

	return &cat, nil
}

// Validate checks the catalog for errors.
func (c *Catalog) Validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("no services defined")
	}

	names := make(map[string]bool)
	domains := make(map[string]bool)

	for i, svc := range c.Services {
		if svc.Name == "" {
			return fmt.Errorf("service[%d]: name is required", i)
		}
		if names[svc.Name] {
			return fmt.Errorf("service[%d]: duplicate name '%s'", i, svc.Name)
		}
		names[svc.Name] = true

		if len(svc.Domains) == 0 {
			return fmt.Errorf("service[%d] (%s): at least one domain is required", i, svc.Name)
		}
		for _, d := range svc.Domains {
			d = strings.ToLower(d)
			if domains[d] {
				return fmt.Errorf("service[%d] (%s): duplicate domain '%s'", i, svc.Name, d)
			}
			domains[d] = true
		}

		if !validCycles[svc.BillingCycle] {
			return fmt.Errorf("service[%d] (%s): invalid billing_cycle '%s'", i, svc.Name, svc.BillingCycle)
		}
	}

	if !validCycles[c.Defaults.BillingCycle] {
		return fmt.Errorf("defaults.billing_cycle: invalid value '%s'", c.Defaults.BillingCycle)
	}

	return nil
}

// applyDefaults fills missing per-service values from the defaults block.
func (c *Catalog) applyDefaults() {
	if c.Defaults.Category == "" {
		c.Defaults.Category = "other"
	}
	if c.Defaults.BillingCycle == "" {
		c.Defaults.BillingCycle = "monthly"
	}
	for i := range c.Services {
		if c.Services[i].Category == "" {
			c.Services[i].Category = c.Defaults.Category
		}
		if c.Services[i].BillingCycle == "" {
			c.Services[i].BillingCycle = c.Defaults.BillingCycle
		}
		for j, d := range c.Services[i].Domains {
			c.Services[i].Domains[j] = strings.ToLower(d)
		}
	}
}

// MatchDomain returns the service whose domain list covers the given host.
// Subdomains match their parent ("www.netflix.com" matches "netflix.com").
func (c *Catalog) MatchDomain(host string) *ServiceEntry {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	for i := range c.Services {
		for _, d := range c.Services[i].Domains {
			if host == d || strings.HasSuffix(host, "."+d) {
				return &c.Services[i]
			}
		}
	}
	return nil
}

// GetServiceByName returns a catalog entry by name.
func (c *Catalog) GetServiceByName(name string) *ServiceEntry {
	for i := range c.Services {
		if c.Services[i].Name == name {
			return &c.Services[i]
		}
	}
	return nil
}

// Categories returns the distinct categories in catalog order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]bool)
	result := make([]string, 0)
	for _, svc := range c.Services {
		if !seen[svc.Category] {
			seen[svc.Category] = true
			result = append(result, svc.Category)
		}
	}
	return result
}

// String returns a summary of the catalog.
func (c *Catalog) String() string {
	domains := 0
	for _, svc := range c.Services {
		domains += len(svc.Domains)
	}
	return fmt.Sprintf("Catalog: %d services, %d domains, %d categories",
		len(c.Services), domains, len(c.Categories()))
}
