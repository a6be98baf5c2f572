package velocityscout

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"velocity-scout/internal/models"
	"velocity-scout/shared/config"
	"velocity-scout/shared/storage"
)

// Settings keys remembering the last interactive search.
const (
	SettingLastAPIAlias    = "last_api_alias"
	SettingLastOrder       = "last_order"
	SettingLastMaxSubs     = "last_max_subs"
	SettingLastMinViews    = "last_min_views"
	SettingLastMinDuration = "last_min_duration"
	SettingLastMaxDuration = "last_max_duration"
	SettingLastTargetCount = "last_target_count"
)

// ErrNoAPIKey means neither the configuration nor the key table holds a usable key.
var ErrNoAPIKey = errors.New("YouTube API key is required")

// KeyStore is the part of the record store holding settings and API keys.
type KeyStore interface {
	GetSetting(key string) (string, bool, error)
	SetSetting(key, value string) error
	GetAPIKey(alias string) (string, bool, error)
	ListAPIKeys() ([]models.APIKey, error)
}

// LastSearch overlays the remembered search settings on defaults. Values
// that no longer parse are ignored.
func LastSearch(store KeyStore, defaults models.SearchParams) (models.SearchParams, string, error) {
	params := defaults

	get := func(key string) (string, error) {
		v, _, err := store.GetSetting(key)
		return strings.TrimSpace(v), err
	}

	alias, err := get(SettingLastAPIAlias)
	if err != nil {
		return params, "", err
	}

	order, err := get(SettingLastOrder)
	if err != nil {
		return params, "", err
	}
	if models.ValidOrder(order) {
		params.Order = order
	}

	ints := []struct {
		key string
		set func(int64)
	}{
		{SettingLastMaxSubs, func(v int64) { params.MaxSubscribers = v }},
		{SettingLastMinViews, func(v int64) { params.MinViews = v }},
		{SettingLastMinDuration, func(v int64) { params.MinDurationSeconds = int(v) }},
		{SettingLastMaxDuration, func(v int64) { params.MaxDurationSeconds = int(v) }},
		{SettingLastTargetCount, func(v int64) {
			if v > 0 {
				params.TargetCount = int(v)
			}
		}},
	}
	for _, it := range ints {
		raw, err := get(it.key)
		if err != nil {
			return params, "", err
		}
		if raw == "" {
			continue
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		it.set(v)
	}

	return params, alias, nil
}

// SaveLastSearch remembers params and alias for the next search.
func SaveLastSearch(store KeyStore, params models.SearchParams, alias string) error {
	values := map[string]string{
		SettingLastAPIAlias:    alias,
		SettingLastOrder:       params.Order,
		SettingLastMaxSubs:     strconv.FormatInt(params.MaxSubscribers, 10),
		SettingLastMinViews:    strconv.FormatInt(params.MinViews, 10),
		SettingLastMinDuration: strconv.Itoa(params.MinDurationSeconds),
		SettingLastMaxDuration: strconv.Itoa(params.MaxDurationSeconds),
		SettingLastTargetCount: strconv.Itoa(params.TargetCount),
	}
	for key, value := range values {
		if err := store.SetSetting(key, value); err != nil {
			return err
		}
	}
	return nil
}

// SyncEnabled reports the stored sync switch, or fallback when it was never set.
func SyncEnabled(store KeyStore, fallback bool) (bool, error) {
	raw, ok, err := store.GetSetting(storage.SettingSyncEnabled)
	if err != nil || !ok || raw == "" {
		return fallback, err
	}
	return strings.EqualFold(raw, "true"), nil
}

// SetSyncEnabled stores the sync switch.
func SetSyncEnabled(store KeyStore, enabled bool) error {
	return store.SetSetting(storage.SettingSyncEnabled, strconv.FormatBool(enabled))
}

// ResolveAPIKey picks the YouTube API key for a search: the stored key named
// alias, then the configured alias, then the configured key, then the first
// stored key.
func ResolveAPIKey(store KeyStore, cfg *config.Config, alias string) (string, error) {
	if alias == "" {
		alias = cfg.YouTube.APIKeyAlias
	}
	if alias != "" {
		key, ok, err := store.GetAPIKey(alias)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("no API key stored under alias %q", alias)
		}
		return key, nil
	}

	if cfg.YouTube.APIKey != "" {
		return cfg.YouTube.APIKey, nil
	}

	keys, err := store.ListAPIKeys()
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", ErrNoAPIKey
	}
	return keys[0].Key, nil
}
