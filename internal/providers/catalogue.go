package providers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/shaiso/Kickoff/internal/orchestrator"
)

// ProviderSpec — описание провайдера прогнозов в каталоге.
type ProviderSpec struct {
	// Name — уникальное имя (ключ в provider_health и predictions).
	Name string `yaml:"name"`

	// Endpoint — URL batch-эндпоинта.
	Endpoint string `yaml:"endpoint"`

	// Model — имя модели, передаётся в запросе.
	Model string `yaml:"model"`

	// APIKeyEnv — переменная окружения с ключом API.
	APIKeyEnv string `yaml:"api_key_env"`

	// Timeout — таймаут одного вызова (default: 90s).
	Timeout time.Duration `yaml:"timeout"`

	// CallInterval — минимальный интервал между вызовами (0 — без ограничения).
	CallInterval time.Duration `yaml:"call_interval"`

	// Disabled — провайдер выключен вручную.
	Disabled bool `yaml:"disabled"`
}

// Catalogue — список провайдеров прогнозов.
type Catalogue struct {
	Providers []ProviderSpec `yaml:"providers"`
}

// LoadCatalogue читает каталог из YAML-файла.
func LoadCatalogue(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read provider catalogue: %w", err)
	}
	return ParseCatalogue(data)
}

// ParseCatalogue разбирает и проверяет каталог.
func ParseCatalogue(data []byte) (*Catalogue, error) {
	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse provider catalogue: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate проверяет каталог: имена уникальны, endpoint задан.
func (c *Catalogue) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(c.Providers))

	for i, p := range c.Providers {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("provider #%d: name is required", i))
			continue
		}
		if seen[p.Name] {
			errs = append(errs, fmt.Errorf("provider %s: duplicate name", p.Name))
		}
		seen[p.Name] = true

		if p.Endpoint == "" {
			errs = append(errs, fmt.Errorf("provider %s: endpoint is required", p.Name))
		}
		if p.Timeout < 0 || p.CallInterval < 0 {
			errs = append(errs, fmt.Errorf("provider %s: negative duration", p.Name))
		}
	}
	return errors.Join(errs...)
}

// Names возвращает имена включённых провайдеров.
func (c *Catalogue) Names() []string {
	names := make([]string, 0, len(c.Providers))
	for _, p := range c.Providers {
		if !p.Disabled {
			names = append(names, p.Name)
		}
	}
	return names
}

// Build создаёт HTTP-провайдеров для включённых записей каталога.
// Ключ API читается из переменной окружения APIKeyEnv.
func (c *Catalogue) Build(client *http.Client) []orchestrator.Provider {
	providers := make([]orchestrator.Provider, 0, len(c.Providers))
	for _, spec := range c.Providers {
		if spec.Disabled {
			continue
		}
		var key string
		if spec.APIKeyEnv != "" {
			key = os.Getenv(spec.APIKeyEnv)
		}
		providers = append(providers, NewHTTPProvider(spec, key, client))
	}
	return providers
}
