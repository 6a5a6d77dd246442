package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportFixture() []*Entry {
	ts := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	a := NewEntry(1, 2, "status_change", map[string]any{"new_status": "suspended"}, RequestInfo{IPAddress: "10.0.0.1"})
	a.ID, a.Timestamp = 1, ts
	b := NewEntry(1, 3, "role_change", nil, RequestInfo{})
	b.ID, b.Timestamp = 2, ts
	return []*Entry{&a, &b}
}

func TestExport(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, exportFixture(), ExportJSON))

		var parsed []*Entry
		require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
		require.Len(t, parsed, 2)
		assert.Equal(t, "suspended", parsed[0].Details["new_status"])
	})

	t.Run("json empty is array", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, nil, ExportJSON))
		assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
	})

	t.Run("ndjson", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, exportFixture(), ExportNDJSON))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		for _, line := range lines {
			var e Entry
			assert.NoError(t, json.Unmarshal([]byte(line), &e))
		}
	})

	t.Run("csv", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Export(&buf, exportFixture(), ExportCSV))

		records, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "ID", records[0][0])
		assert.Equal(t, []string{"1", "2024-03-04T05:06:07Z", "status_change", "1", "2", "10.0.0.1", "", "", `{"new_status":"suspended"}`}, records[1])
		assert.Equal(t, "{}", records[2][8])
	})

	t.Run("unsupported", func(t *testing.T) {
		err := Export(&bytes.Buffer{}, nil, ExportFormat("xml"))
		assert.Error(t, err)
	})
}
