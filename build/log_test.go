package build

import (
	"bytes"
	"testing"

	btclogv1 "github.com/btcsuite/btclog"
	"github.com/btcsuite/btclog/v2"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, buf *bytes.Buffer) *SubLoggerManager {
	t.Helper()

	handler := btclog.NewDefaultHandler(buf, btclog.WithNoTimestamp())
	mgr := NewSubLoggerManager(handler)

	for _, subsystem := range []string{"CIDX", "VALD", "HSTR"} {
		mgr.GenSubLogger(subsystem, nil)
	}

	return mgr
}

// TestParseAndSetDebugLevels covers global levels, per subsystem levels and
// malformed input.
func TestParseAndSetDebugLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		level   string
		want    map[string]btclogv1.Level
		wantErr bool
	}{
		{
			name:  "global",
			level: "debug",
			want: map[string]btclogv1.Level{
				"CIDX": btclog.LevelDebug,
				"VALD": btclog.LevelDebug,
				"HSTR": btclog.LevelDebug,
			},
		},
		{
			name:  "global with override",
			level: "warn,CIDX=trace",
			want: map[string]btclogv1.Level{
				"CIDX": btclog.LevelTrace,
				"VALD": btclog.LevelWarn,
				"HSTR": btclog.LevelWarn,
			},
		},
		{
			name:    "unknown level",
			level:   "loud",
			wantErr: true,
		},
		{
			name:    "unknown subsystem",
			level:   "info,XXXX=debug",
			wantErr: true,
		},
		{
			name:    "bad pair",
			level:   "info,CIDX=debug=trace",
			wantErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			mgr := newTestManager(t, &buf)

			err := ParseAndSetDebugLevels(test.level, mgr)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)

			for id, logger := range mgr.SubLoggers() {
				require.Equal(t, test.want[id], logger.Level(),
					id)
			}
		})
	}
}

// TestSubLoggerManagerOutput checks that sub loggers share the handler and
// carry their subsystem tag.
func TestSubLoggerManagerOutput(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	mgr := newTestManager(t, &buf)
	mgr.SetLogLevels("info")

	require.Equal(
		t, []string{"CIDX", "HSTR", "VALD"}, mgr.SupportedSubsystems(),
	)

	var used btclog.Logger
	logger := mgr.GenSubLogger("TEST", func(l btclog.Logger) {
		used = l
	})
	require.Equal(t, logger, used)

	logger.SetLevel(btclog.LevelInfo)
	logger.Infof("tip moved to %d", 7)
	logger.Debugf("hidden")

	require.Contains(t, buf.String(), "TEST")
	require.Contains(t, buf.String(), "tip moved to 7")
	require.NotContains(t, buf.String(), "hidden")
}
