package config

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type testConfig struct {
	Name      string `validate:"required"`
	Scheduler string `validate:"oneof=local slurm"`
	MaxJobs   int    `validate:"gte=0"`
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		config   testConfig
		expected string
	}{
		"valid":            {config: testConfig{Name: "a", Scheduler: "local"}},
		"missing required": {config: testConfig{Scheduler: "slurm"}, expected: "field Name is required but was not found"},
		"invalid oneof": {
			config:   testConfig{Name: "a", Scheduler: "lsf"},
			expected: "field Scheduler has invalid value lsf: oneof",
		},
		"multiple": {
			config:   testConfig{Scheduler: "local", MaxJobs: -1},
			expected: "field Name is required but was not found; field MaxJobs has invalid value -1: gte",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := Validate(tc.config)
			if tc.expected == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tc.expected)
		})
	}
}

func TestValidationError_PassesOtherErrorsThrough(t *testing.T) {
	err := errors.New("boom")
	assert.Equal(t, err, ValidationError(err))
	assert.NoError(t, ValidationError(nil))
}
