package service

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"gpurental-backend/internal/domain"
)

type catalogService struct {
	gpus map[string]domain.GPU
}

// gpuEntry is the YAML shape of one catalog row. Prices are strings in the
// file so they survive parsing without float rounding.
type gpuEntry struct {
	ID              string            `yaml:"id"`
	Model           string            `yaml:"model"`
	Provider        string            `yaml:"provider"`
	ProviderAddress string            `yaml:"provider_address"`
	Description     string            `yaml:"description"`
	PricePerHour    string            `yaml:"price_per_hour"`
	MinimumRental   int32             `yaml:"minimum_rental_hours"`
	Specs           map[string]string `yaml:"specs"`
}

type catalogFile struct {
	GPUs []gpuEntry `yaml:"gpus"`
}

// NewCatalogService loads the GPU catalog from a YAML file. The catalog is
// fixed for the process lifetime; pricing changes ship as config changes.
func NewCatalogService(path string) (CatalogService, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read GPU catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse GPU catalog: %w", err)
	}
	if len(file.GPUs) == 0 {
		return nil, fmt.Errorf("GPU catalog %s is empty", path)
	}

	gpus := make(map[string]domain.GPU, len(file.GPUs))
	for _, entry := range file.GPUs {
		if entry.ID == "" {
			return nil, fmt.Errorf("GPU catalog entry %q has no id", entry.Model)
		}
		price, err := decimal.NewFromString(entry.PricePerHour)
		if err != nil {
			return nil, fmt.Errorf("GPU %s has invalid price %q: %w", entry.ID, entry.PricePerHour, err)
		}
		if price.Sign() <= 0 {
			return nil, fmt.Errorf("GPU %s has non-positive price %s", entry.ID, price)
		}
		if entry.MinimumRental <= 0 {
			return nil, fmt.Errorf("GPU %s has non-positive minimum rental %d", entry.ID, entry.MinimumRental)
		}
		if _, dup := gpus[entry.ID]; dup {
			return nil, fmt.Errorf("duplicate GPU id %s in catalog", entry.ID)
		}
		gpus[entry.ID] = domain.GPU{
			ID:              entry.ID,
			Model:           entry.Model,
			Provider:        entry.Provider,
			ProviderAddress: entry.ProviderAddress,
			Description:     entry.Description,
			PricePerHour:    price,
			MinimumRental:   entry.MinimumRental,
			Specs:           entry.Specs,
		}
	}

	return &catalogService{gpus: gpus}, nil
}

func (s *catalogService) ListGPUs(ctx context.Context) ([]domain.GPU, error) {
	out := make([]domain.GPU, 0, len(s.gpus))
	for _, gpu := range s.gpus {
		out = append(out, gpu)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *catalogService) GetGPU(ctx context.Context, gpuID string) (*domain.GPU, error) {
	gpu, ok := s.gpus[gpuID]
	if !ok {
		return nil, fmt.Errorf("GPU %s: %w", gpuID, domain.ErrNotFound)
	}
	return &gpu, nil
}
