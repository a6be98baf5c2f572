package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	velocityscout "velocity-scout/agents/velocity-scout"
	"velocity-scout/agents/velocity-scout/cloud"
	"velocity-scout/internal/models"
	"velocity-scout/shared/config"
	"velocity-scout/shared/storage"
)

func TestSearchFlagsOverrideRememberedValues(t *testing.T) {
	cmd := newSearchCmd(func() *app { return nil })
	require.NoError(t, cmd.ParseFlags([]string{"--order", "date", "--min-views", "500", "--alias", "work"}))

	params := models.SearchParams{
		Order:              models.OrderViewCount,
		MinViews:           100000,
		MaxSubscribers:     -1,
		MinDurationSeconds: 60,
		TargetCount:        10,
	}
	alias := "personal"

	opts := &searchOptions{order: "date", minViews: 500, alias: "work"}
	opts.apply(cmd, &params, &alias)

	assert.Equal(t, models.OrderDate, params.Order)
	assert.Equal(t, int64(500), params.MinViews)
	assert.Equal(t, int64(-1), params.MaxSubscribers, "unset flags keep remembered values")
	assert.Equal(t, 10, params.TargetCount)
	assert.Equal(t, "work", alias)
}

func searchConfig() *config.Config {
	maxSubs := int64(-1)
	return &config.Config{
		YouTube: config.YouTubeConfig{APIKey: "config-key"},
		Search: config.SearchConfig{
			Order:              models.OrderViewCount,
			MinViews:           100000,
			MinDurationSeconds: 120,
			MaxSubscribers:     &maxSubs,
			TargetCount:        10,
		},
	}
}

func TestShortsFlagAppliesToOneSearchOnly(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "scout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	cfg := searchConfig()

	shorts := newSearchCmd(func() *app { return nil })
	require.NoError(t, shorts.ParseFlags([]string{"--shorts", "--min-views", "500"}))
	params, err := (&searchOptions{shorts: true, minViews: 500}).prepare(shorts, store, cfg, "fpv")
	require.NoError(t, err)
	assert.Equal(t, shortsMaxDuration, params.MaxDurationSeconds)
	assert.Equal(t, 0, params.MinDurationSeconds)
	assert.Equal(t, "config-key", params.APIKey)

	remembered, _, err := store.GetSetting(velocityscout.SettingLastMaxDuration)
	require.NoError(t, err)
	assert.Equal(t, "0", remembered)

	plain := newSearchCmd(func() *app { return nil })
	require.NoError(t, plain.ParseFlags(nil))
	params, err = (&searchOptions{}).prepare(plain, store, cfg, "fpv")
	require.NoError(t, err)
	assert.Equal(t, 0, params.MaxDurationSeconds, "the Shorts cap does not carry over")
	assert.Equal(t, 120, params.MinDurationSeconds)
	assert.Equal(t, int64(500), params.MinViews, "explicit filters are remembered")
}

func TestPrepareRejectsUnknownOrder(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "scout.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	cmd := newSearchCmd(func() *app { return nil })
	require.NoError(t, cmd.ParseFlags([]string{"--order", "rating"}))
	_, err = (&searchOptions{order: "rating"}).prepare(cmd, store, searchConfig(), "fpv")
	assert.Error(t, err)

	_, ok, err := store.GetSetting(velocityscout.SettingLastOrder)
	require.NoError(t, err)
	assert.False(t, ok, "a rejected search is not remembered")
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "AIza***********7890", maskKey("AIzaSyABCDEFGHI7890"))
	assert.Equal(t, "*****", maskKey("short"))
}

func TestNewAuthorizer(t *testing.T) {
	a, err := newAuthorizer("", nil)
	require.NoError(t, err)
	assert.IsType(t, &cloud.DeviceAuthorizer{}, a)

	a, err = newAuthorizer("browser", nil)
	require.NoError(t, err)
	assert.IsType(t, &cloud.LoopbackAuthorizer{}, a)

	_, err = newAuthorizer("carrier-pigeon", nil)
	assert.Error(t, err)
}

func TestRemoveLegacyToken(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(wd) })

	require.NoError(t, os.WriteFile(legacyTokenFile, []byte("{}"), 0600))
	removeLegacyToken()

	_, err = os.Stat(filepath.Join(dir, legacyTokenFile))
	assert.True(t, os.IsNotExist(err))

	removeLegacyToken() // absent file is fine
}
