package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/0xmhha/eventsync-go/internal/constants"
	"github.com/0xmhha/eventsync-go/types"
	"go.uber.org/zap"
)

// Settings reads and writes the sync progress settings on top of a KVStore.
// Values are kept in their textual form: heights and thresholds as decimal
// integers, contract addresses as a JSON array of strings.
type Settings struct {
	kv     KVStore
	logger *zap.Logger
}

// NewSettings creates a settings accessor
func NewSettings(kv KVStore, logger *zap.Logger) *Settings {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Settings{kv: kv, logger: logger}
}

// GetBlockHeight returns the persisted sync cursor, or ErrNotFound
func (s *Settings) GetBlockHeight(ctx context.Context) (uint64, error) {
	value, err := s.kv.Get(ctx, constants.SettingBlockHeight)
	if err != nil {
		return 0, err
	}
	height, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidSetting, constants.SettingBlockHeight, value)
	}
	return height, nil
}

// SetBlockHeight durably persists the sync cursor
func (s *Settings) SetBlockHeight(ctx context.Context, height uint64) error {
	return s.kv.Set(ctx, constants.SettingBlockHeight, strconv.FormatUint(height, 10))
}

// GetThreshold returns the finality threshold, or ErrNotFound. The value may be
// negative; callers decide how to treat it.
func (s *Settings) GetThreshold(ctx context.Context) (int64, error) {
	value, err := s.kv.Get(ctx, constants.SettingBlockThreshold)
	if err != nil {
		return 0, err
	}
	threshold, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q", ErrInvalidSetting, constants.SettingBlockThreshold, value)
	}
	return threshold, nil
}

// GetMonitoredAddresses returns the monitored contract set, or ErrNotFound
func (s *Settings) GetMonitoredAddresses(ctx context.Context) (types.AddressSet, error) {
	value, err := s.kv.Get(ctx, constants.SettingContractAddress)
	if err != nil {
		return nil, err
	}
	addresses, err := parseAddressList(value)
	if err != nil {
		return nil, err
	}
	return types.NewAddressSet(addresses...), nil
}

// GetSetting returns the raw value of a known setting
func (s *Settings) GetSetting(ctx context.Context, key string) (string, error) {
	if !IsKnownSetting(key) {
		return "", fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
	}
	return s.kv.Get(ctx, key)
}

// SetSetting validates and writes the raw value of a known setting
func (s *Settings) SetSetting(ctx context.Context, key, value string) error {
	if err := ValidateSetting(key, value); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, key, value); err != nil {
		return err
	}
	s.logger.Info("setting updated", zap.String("key", key), zap.String("value", value))
	return nil
}

// SeedSetting writes value only when the key is absent. It reports whether it wrote.
func (s *Settings) SeedSetting(ctx context.Context, key, value string) (bool, error) {
	_, err := s.kv.Get(ctx, key)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if err := ValidateSetting(key, value); err != nil {
		return false, err
	}
	if err := s.kv.Set(ctx, key, value); err != nil {
		return false, err
	}
	s.logger.Info("setting seeded", zap.String("key", key), zap.String("value", value))
	return true, nil
}

// IsKnownSetting reports whether key is one of the sync settings
func IsKnownSetting(key string) bool {
	switch key {
	case constants.SettingBlockHeight, constants.SettingBlockThreshold, constants.SettingContractAddress:
		return true
	}
	return false
}

// ValidateSetting checks that value is well formed for key
func ValidateSetting(key, value string) error {
	switch key {
	case constants.SettingBlockHeight:
		if _, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64); err != nil {
			return fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidSetting, key)
		}
	case constants.SettingBlockThreshold:
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidSetting, key)
		}
	case constants.SettingContractAddress:
		if _, err := parseAddressList(value); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
	}
	return nil
}

// EncodeAddressList renders addresses as the JSON array stored under the contract address key
func EncodeAddressList(addresses []string) (string, error) {
	if addresses == nil {
		addresses = []string{}
	}
	data, err := json.Marshal(addresses)
	if err != nil {
		return "", fmt.Errorf("failed to encode addresses: %w", err)
	}
	return string(data), nil
}

func parseAddressList(value string) ([]string, error) {
	var addresses []string
	if err := json.Unmarshal([]byte(value), &addresses); err != nil {
		return nil, fmt.Errorf("%w: %s must be a JSON array of strings: %v",
			ErrInvalidSetting, constants.SettingContractAddress, err)
	}
	return addresses, nil
}
