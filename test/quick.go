package test

import (
	"testing"

	"github.com/stretchr/testify/require"

	stark "github.com/consensys/go-stark"
	"github.com/consensys/go-stark/fri"
)

// QuickFriConfig is a reduced FRI parameterization for tests: the default
// blowup with fewer queries and light grinding.
var QuickFriConfig = fri.Config{
	LogBlowup:  1,
	NumQueries: 40,
	PowBits:    4,
}

// QuickConfig returns a configuration sized for unit tests.
func QuickConfig(t *testing.T) *stark.Config {
	t.Helper()
	cfg, err := stark.NewConfig(stark.WithFriConfig(QuickFriConfig))
	require.NoError(t, err)
	return cfg
}
