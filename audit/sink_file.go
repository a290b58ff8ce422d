package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileDeviceOptions configures a file device. Options arrive as a map (from
// the audit config block) and are decoded with mapstructure.
type FileDeviceOptions struct {
	Path            string `mapstructure:"path"`
	RotateMegabytes int    `mapstructure:"rotate_megabytes"`
	MaxBackups      int    `mapstructure:"max_backups"`
	MaxAgeDays      int    `mapstructure:"max_age_days"`
	Compress        bool   `mapstructure:"compress"`
	Prefix          string `mapstructure:"prefix"`
}

func decodeFileDeviceOptions(options map[string]any) (*FileDeviceOptions, error) {
	opts := FileDeviceOptions{
		Path:            "warrant_audit.log",
		RotateMegabytes: 100,
		MaxBackups:      5,
		MaxAgeDays:      30,
	}
	if err := mapstructure.Decode(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode file device options: %w", err)
	}
	return &opts, nil
}

// FileDevice writes audit entries as JSON lines to a rotated file
type FileDevice struct {
	mu     sync.Mutex
	opts   *FileDeviceOptions
	writer *lumberjack.Logger
}

// FileDeviceFactory builds FileDevices
type FileDeviceFactory struct{}

// NewDevice implements Factory
func (f *FileDeviceFactory) NewDevice(options map[string]any) (Device, error) {
	opts, err := decodeFileDeviceOptions(options)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	return &FileDevice{
		opts: opts,
		writer: &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    opts.RotateMegabytes,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
			LocalTime:  true,
		},
	}, nil
}

// Log implements Device
func (d *FileDevice) Log(ctx context.Context, entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opts.Prefix != "" {
		if _, err := d.writer.Write([]byte(d.opts.Prefix)); err != nil {
			return err
		}
	}
	if _, err := d.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Close implements Device
func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writer.Close()
}
