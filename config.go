package chunkhouse

import "go.uber.org/zap"

// Config holds global configuration for chunk storage
var Config config = config{
	logger:              zap.NewNop(),
	expectedChunkGroups: 8,
}

type config struct {
	logger              *zap.Logger
	expectedChunkGroups int
}

// SetLogger configures the logger used for storage diagnostics
func (c *config) SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	c.logger = l
}

// Logger returns the configured logger
func (c *config) Logger() *zap.Logger {
	return c.logger
}

// SetExpectedChunkGroups sets how many chunk groups a new store reserves room for
func (c *config) SetExpectedChunkGroups(n int) {
	c.expectedChunkGroups = max(n, 0)
}
