package simulator_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mec-fusion/internal/fusionqueue"
	"github.com/banshee-data/mec-fusion/internal/simulator"
)

const scenario = `# comment line, ignored
0 1 100 1 39.9 116.4 5.0 90.0 0.9

20 2 200 2 40.0 116.5 3.0 0.0 0.8
`

func TestParseSkipsCommentsAndBlankLines(t *testing.T) {
	records, err := simulator.Parse(strings.NewReader(scenario))
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, int64(0), records[0].RelTimeMs)
	require.Equal(t, 1, records[0].SensorID)
	require.Equal(t, int64(20), records[1].RelTimeMs)
	require.Equal(t, 2, records[1].SensorID)
}

func TestParseRejectsMalformedLine(t *testing.T) {
	_, err := simulator.Parse(strings.NewReader("0 1 2 3 4 5 6 7\n")) // only 8 fields
	require.Error(t, err)
}

func TestPlayerInjectsRecordsIntoQueue(t *testing.T) {
	records, err := simulator.Parse(strings.NewReader(scenario))
	require.NoError(t, err)

	q := fusionqueue.New(8)
	defer q.Destroy()
	player := simulator.NewPlayer(records, 10.0, false) // 10x speed keeps the test fast

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, player.Run(ctx, q))

	require.Equal(t, 2, q.Size())
	first, err := q.Pop(0)
	require.NoError(t, err)
	require.Equal(t, 1, first.SensorID)
	first.Batch.Release()

	second, err := q.Pop(0)
	require.NoError(t, err)
	require.Equal(t, 2, second.SensorID)
	second.Batch.Release()
}
