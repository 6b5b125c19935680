// Package statefile persists accumulated energy totals between restarts.
package statefile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/berfenger/senec2mqtt/internal/core/domain"
	"github.com/berfenger/senec2mqtt/internal/core/service"
	"gopkg.in/yaml.v3"
)

type fileTotals struct {
	Device    int     `yaml:"device"`
	Component int     `yaml:"component"`
	Purpose   string  `yaml:"purpose"`
	Imported  float64 `yaml:"imported_wh"`
	Exported  float64 `yaml:"exported_wh"`
}

type file struct {
	SavedAt time.Time    `yaml:"saved_at"`
	Totals  []fileTotals `yaml:"totals"`
}

// Load reads the totals stored at path. A missing file yields no totals.
func Load(path string) (map[service.AccumulatorKey]service.EnergyTotals, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[service.AccumulatorKey]service.EnergyTotals{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state file: %w", err)
	}
	out := make(map[service.AccumulatorKey]service.EnergyTotals, len(f.Totals))
	for _, t := range f.Totals {
		out[service.AccumulatorKey{
			DeviceId:    domain.DeviceId(t.Device),
			ComponentId: domain.ComponentId(t.Component),
			Purpose:     service.AccumulatorPurpose(t.Purpose),
		}] = service.EnergyTotals{Imported: t.Imported, Exported: t.Exported}
	}
	return out, nil
}

// Save replaces the file at path. The new content is written to a temporary
// file in the same directory and renamed over the old one.
func Save(path string, totals map[service.AccumulatorKey]service.EnergyTotals, now time.Time) error {
	f := file{SavedAt: now.UTC(), Totals: make([]fileTotals, 0, len(totals))}
	for key, t := range totals {
		f.Totals = append(f.Totals, fileTotals{
			Device:    int(key.DeviceId),
			Component: int(key.ComponentId),
			Purpose:   string(key.Purpose),
			Imported:  t.Imported,
			Exported:  t.Exported,
		})
	}
	sort.Slice(f.Totals, func(i, j int) bool {
		a, b := f.Totals[i], f.Totals[j]
		if a.Device != b.Device {
			return a.Device < b.Device
		}
		if a.Component != b.Component {
			return a.Component < b.Component
		}
		return a.Purpose < b.Purpose
	})

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("failed to marshal state file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create state file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// Restore loads path into acc.
func Restore(path string, acc *service.EnergyAccumulator) (int, error) {
	totals, err := Load(path)
	if err != nil {
		return 0, err
	}
	for key, t := range totals {
		acc.Restore(key, t)
	}
	return len(totals), nil
}
