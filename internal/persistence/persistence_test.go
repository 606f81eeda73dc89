package persistence

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluidsettings/fluid-settingsd/internal/settings"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.conf")

	src := settings.NewStore(nil)
	src.Set("app::size", "10", settings.DefaultsPriority, settings.Epoch.Add(time.Second), settings.OriginLocal)
	src.Set("app::name", "weird|val\\ue\nwith\rcontrol", settings.AdministratorPriority, settings.Epoch.Add(2*time.Second), settings.OriginLocal)

	require.NoError(t, Save(src, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "app::size::0 =")
	assert.Contains(t, string(data), "app::name::50 =")

	dst := settings.NewStore(nil)
	require.NoError(t, Load(dst, path))

	assert.Equal(t, src.Records("app::size"), dst.Records("app::size"))
	assert.Equal(t, src.Records("app::name"), dst.Records("app::name"))
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	dst := settings.NewStore(nil)
	err := Load(dst, filepath.Join(t.TempDir(), "nope.conf"))
	assert.NoError(t, err)
	assert.Empty(t, dst.AllNames())
}

func TestSaveBacksUpPreviousFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.conf")

	st := settings.NewStore(nil)
	st.Set("app::size", "1", settings.DefaultsPriority, settings.Epoch.Add(time.Second), settings.OriginLocal)
	require.NoError(t, Save(st, path))

	st.Set("app::size", "2", settings.DefaultsPriority, settings.Epoch.Add(2*time.Second), settings.OriginLocal)
	require.NoError(t, Save(st, path))

	_, err := os.Stat(path + ".bak")
	assert.NoError(t, err)

	dst := settings.NewStore(nil)
	require.NoError(t, Load(dst, path))
	text, _ := dst.Get("app::size", settings.HighestPriority)
	assert.Equal(t, "2", text)
}

func TestDecodeLineRejectsMalformed(t *testing.T) {
	_, _, err := decodeLine("not a valid line")
	assert.Error(t, err)

	_, _, err = decodeLine("app::size::notanumber = 1|value")
	assert.Error(t, err)

	_, _, err = decodeLine("app::size::0 = notanumber|value")
	assert.Error(t, err)
}
