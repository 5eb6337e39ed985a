package config_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/filecoin-project/go-chainsim/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestSettings_Validate(t *testing.T) {
	for _, test := range []struct {
		name       string
		given      func(*config.Settings)
		wantErrors int
	}{
		{name: "default", given: func(*config.Settings) {}},
		{name: "time limit only", given: func(s *config.Settings) { s.BlockLimit = 0; s.TimeLimit = time.Minute }},
		{name: "all adversaries", given: func(s *config.Settings) { s.MaliciousFraction = 1 }},
		{name: "single node", given: func(s *config.Settings) { s.TotalNodes = 1 }, wantErrors: 1},
		{name: "no limits", given: func(s *config.Settings) { s.BlockLimit = 0 }, wantErrors: 1},
		{name: "fraction out of range", given: func(s *config.Settings) { s.MaliciousFraction = 1.5 }, wantErrors: 1},
		{
			name: "every interval",
			given: func(s *config.Settings) {
				s.TxnInterval = 0
				s.BlockInterval = -time.Second
				s.Timeout = 0
			},
			wantErrors: 3,
		},
		{
			name: "negative limits",
			given: func(s *config.Settings) {
				s.BlockLimit = -1
				s.TimeLimit = -time.Second
			},
			wantErrors: 2,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			subject := config.Default()
			test.given(&subject)
			err := subject.Validate()
			if test.wantErrors == 0 {
				require.NoError(t, err)
				return
			}
			errs := multierr.Errors(err)
			require.Len(t, errs, test.wantErrors)
			for _, err := range errs {
				require.ErrorIs(t, err, config.ErrInvalidArgument)
			}
		})
	}
}

func TestSettings_Adversaries(t *testing.T) {
	for _, test := range []struct {
		nodes    int
		fraction float64
		want     int
	}{
		{nodes: 10, fraction: 0, want: 0},
		{nodes: 10, fraction: 0.35, want: 3},
		{nodes: 10, fraction: 1, want: 10},
		{nodes: 4, fraction: 0.6, want: 2},
		{nodes: 100, fraction: 0.29, want: 29},
		{nodes: 100, fraction: 0.57, want: 57},
		{nodes: 50, fraction: 0.58, want: 29},
		{nodes: 3, fraction: 0.1, want: 0},
	} {
		t.Run(fmt.Sprintf("%d nodes %g", test.nodes, test.fraction), func(t *testing.T) {
			subject := config.Default()
			subject.TotalNodes = test.nodes
			subject.MaliciousFraction = test.fraction
			require.Equal(t, test.want, subject.Adversaries())
		})
	}
}

func TestLoad(t *testing.T) {
	want := config.Default()
	want.TotalNodes = 7
	want.Eclipse = true
	want.MaliciousFraction = 0.3
	b, err := want.Marshal()
	require.NoError(t, err)

	got, err := config.Load(bytes.NewReader(b))
	require.NoError(t, err)
	require.Equal(t, want, got)

	partial, err := config.Load(strings.NewReader(`{"totalNodes": 5}`))
	require.NoError(t, err)
	require.Equal(t, 5, partial.TotalNodes)
	require.Equal(t, config.Default().BlockInterval, partial.BlockInterval)

	_, err = config.Load(strings.NewReader(`{"totalNodes": 1}`))
	require.ErrorIs(t, err, config.ErrInvalidArgument)
	_, err = config.Load(strings.NewReader(`{"nodes": 5}`))
	require.Error(t, err)
}
