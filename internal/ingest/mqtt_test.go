package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func testBridge() *Bridge {
	return &Bridge{prefix: "abacws/devices", logger: zap.NewNop()}
}

func TestDeviceFromTopic(t *testing.T) {
	b := testBridge()

	device, ok := b.deviceFromTopic("abacws/devices/node_1_01/data")
	assert.True(t, ok)
	assert.Equal(t, "node_1_01", device)

	cases := []string{
		"abacws/devices/node_1_01/status",
		"abacws/devices//data",
		"abacws/devices/data",
		"other/node_1_01/data",
		"abacws/devices/a/b/data",
	}
	for _, topic := range cases {
		_, ok := b.deviceFromTopic(topic)
		assert.False(t, ok, "topic %q must not parse", topic)
	}
}
