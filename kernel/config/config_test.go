package config_test

import (
	"testing"

	"github.com/dmorton63/qaiosplus-sub000/kernel/config"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	src := `
# comment line
MODE=DESKTOP
; another comment
sc_mode enforce
SC_BYPASS=1
IDE_SHARED=0
SAVETERM=last.log // trailing comment
POWEROFF_AFTER_SAVETERM=yes
`
	cfg, err := config.ParseString(src)
	require.NoError(t, err)

	require.Equal(t, config.ModeDesktop, cfg.Mode)
	require.Equal(t, config.SCEnforce, cfg.SCMode)
	require.True(t, cfg.SCBypass)
	require.False(t, cfg.IDEShared)
	require.True(t, cfg.SaveTerm.Enabled)
	require.Equal(t, "last.log", cfg.SaveTerm.Filename)
	require.True(t, cfg.PoweroffAfterSaveterm)
}

func TestParseSaveTermVariants(t *testing.T) {
	cfg, err := config.ParseString("SAVETERM=0")
	require.NoError(t, err)
	require.False(t, cfg.SaveTerm.Enabled)

	cfg, err = config.ParseString("SAVETERM=1")
	require.NoError(t, err)
	require.True(t, cfg.SaveTerm.Enabled)
	require.Empty(t, cfg.SaveTerm.Filename)
}

func TestParseUnknownKeysIgnored(t *testing.T) {
	cfg, err := config.ParseString("NOT_A_REAL_KEY=whatever\nMODE=SAFE")
	require.NoError(t, err)
	require.Equal(t, config.ModeSafe, cfg.Mode)
	require.Equal(t, "whatever", cfg.Raw["NOT_A_REAL_KEY"])
}

func TestParseDefaultsWhenEmpty(t *testing.T) {
	cfg, err := config.ParseString("")
	require.NoError(t, err)
	require.Equal(t, config.ModeDesktop, cfg.Mode)
	require.Equal(t, config.SCEnforce, cfg.SCMode)
}
