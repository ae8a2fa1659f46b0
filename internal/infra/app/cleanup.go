package app

import "go.uber.org/zap"

type cleanupStep struct {
	name string
	fn   func() error
}

// cleanup releases opened dependencies in reverse order of acquisition.
type cleanup struct {
	steps []cleanupStep
}

func (c *cleanup) add(name string, fn func() error) {
	c.steps = append(c.steps, cleanupStep{name: name, fn: fn})
}

// run releases every registered dependency once; later calls are no-ops.
func (c *cleanup) run(log *zap.Logger) {
	for i := len(c.steps) - 1; i >= 0; i-- {
		step := c.steps[i]
		if err := step.fn(); err != nil {
			log.Warn("release dependency", zap.String("dependency", step.name), zap.Error(err))
		}
	}
	c.steps = nil
}
