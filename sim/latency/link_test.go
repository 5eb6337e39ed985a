package latency_test

import (
	"testing"
	"time"

	"github.com/filecoin-project/go-chainsim/chain"
	"github.com/filecoin-project/go-chainsim/sim/latency"
	"github.com/stretchr/testify/require"
)

func TestNewLink_Validation(t *testing.T) {
	for _, test := range []struct {
		name      string
		min, max  time.Duration
		bandwidth latency.Bandwidth
		wantErr   bool
	}{
		{name: "valid", min: 10 * time.Millisecond, max: 500 * time.Millisecond, bandwidth: latency.Fixed(latency.SlowBandwidth)},
		{name: "equal bounds", min: time.Millisecond, max: time.Millisecond, bandwidth: latency.Fixed(latency.SlowBandwidth)},
		{name: "negative min", min: -time.Millisecond, max: time.Millisecond, bandwidth: latency.Fixed(latency.SlowBandwidth), wantErr: true},
		{name: "inverted bounds", min: 2 * time.Millisecond, max: time.Millisecond, bandwidth: latency.Fixed(latency.SlowBandwidth), wantErr: true},
		{name: "no bandwidth", min: time.Millisecond, max: 2 * time.Millisecond, wantErr: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := latency.NewLink(1, test.min, test.max, test.bandwidth)
			if test.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLink_Sample(t *testing.T) {
	const (
		minDelay = 10 * time.Millisecond
		maxDelay = 500 * time.Millisecond
		size     = chain.TxnSize
	)
	subject, err := latency.NewLink(1413, minDelay, maxDelay, latency.Fixed(latency.SlowBandwidth))
	require.NoError(t, err)

	require.Zero(t, subject.Sample(time.Time{}, 3, 3, size))

	propagation := subject.Propagation(1, 2)
	require.Equal(t, propagation, subject.Propagation(2, 1), "propagation delay is symmetric")
	require.GreaterOrEqual(t, propagation, minDelay)
	require.LessOrEqual(t, propagation, maxDelay)

	transmission := time.Duration(float64(size*8) / latency.SlowBandwidth * float64(time.Second))
	var total time.Duration
	const samples = 10_000
	for i := 0; i < samples; i++ {
		sample := subject.Sample(time.Time{}, 1, 2, size)
		require.GreaterOrEqual(t, sample, propagation+transmission)
		total += sample - propagation - transmission
	}
	wantQueueing := float64(latency.QueueingBits) / latency.SlowBandwidth * float64(time.Second)
	require.InEpsilon(t, wantQueueing, float64(total)/samples, 0.05)
}

func TestLink_IsReproducible(t *testing.T) {
	sample := func() []time.Duration {
		subject, err := latency.NewLink(7, time.Millisecond, 10*time.Millisecond, latency.Fixed(latency.FastBandwidth))
		require.NoError(t, err)
		var got []time.Duration
		for i := 0; i < 10; i++ {
			got = append(got, subject.Sample(time.Time{}, 0, chain.MinerID(1+i%3), chain.HashSize))
		}
		return got
	}
	require.Equal(t, sample(), sample())
}

func TestTiered(t *testing.T) {
	adversary := func(id chain.MinerID) bool { return id < 2 }
	subject := latency.Tiered(adversary)
	require.Equal(t, float64(latency.FastBandwidth), subject(0, 1))
	require.Equal(t, float64(latency.SlowBandwidth), subject(1, 2))
	require.Equal(t, float64(latency.SlowBandwidth), subject(3, 2))
}

func TestNone(t *testing.T) {
	require.Zero(t, latency.None.Sample(time.Time{}, 1, 2, chain.BlockHeaderSize))
}
