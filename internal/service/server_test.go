package service

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewServer_DefaultShutdownTimeout(t *testing.T) {
	s := NewServer(":0", http.NewServeMux(), 0, zap.NewNop())
	assert.Equal(t, DefaultShutdownTimeout, s.shutdownTimeout)

	s = NewServer(":0", http.NewServeMux(), 2*time.Second, zap.NewNop())
	assert.Equal(t, 2*time.Second, s.shutdownTimeout)
}

func TestStop_BeforeStart(t *testing.T) {
	s := NewServer(":0", http.NewServeMux(), time.Second, zap.NewNop())
	assert.NoError(t, s.Stop())
}
