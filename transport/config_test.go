package transport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/rtpdemux"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		yaml    string
		want    Config
		wantErr error
	}{
		{
			name: "Full config",
			yaml: "listenAddress: 127.0.0.1:5004\nstreamIDExtensionID: 5\nmaxProcessedSSRCs: 200\n",
			want: Config{
				ListenAddress:       "127.0.0.1:5004",
				StreamIDExtensionID: 5,
				MaxProcessedSSRCs:   200,
			},
		},
		{
			name: "Defaults applied",
			yaml: "listenAddress: :5004\n",
			want: Config{
				ListenAddress:     ":5004",
				MaxProcessedSSRCs: rtpdemux.DefaultMaxProcessedSSRCs,
			},
		},
		{
			name:    "Empty listen address",
			yaml:    "listenAddress: \"\"\n",
			wantErr: ErrNoListenAddress,
		},
		{
			name:    "Invalid cache size",
			yaml:    "maxProcessedSSRCs: -1\n",
			wantErr: ErrInvalidCacheSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			cfg, err := LoadConfig(path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listenAddress: [\n"), 0o600))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}
