package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/dmct/internal/field"
)

func TestSimulate_NodesJoinMidRun(t *testing.T) {
	tests := []struct {
		name   string
		chance string
		joins  bool
	}{
		{name: "always joins", chance: "1", joins: true},
		{name: "never joins", chance: "0", joins: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			c := Command()
			c.SetOut(&out)
			c.SetArgs([]string{
				"--nodes", "3",
				"--duration", "200ms",
				"--tick", "10ms",
				"--emit-chance", "0",
				"--join-chance", tt.chance,
				"--seed", "1",
			})
			require.NoError(t, c.ExecuteContext(context.Background()))

			var snap field.Snapshot
			require.NoError(t, json.Unmarshal(out.Bytes(), &snap))
			if tt.joins {
				assert.Greater(t, len(snap.Nodes), 3)
			} else {
				assert.Len(t, snap.Nodes, 3)
			}
		})
	}
}
