package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pthm-cable/autopilot/config"
	"github.com/pthm-cable/autopilot/neural"
)

// LoadCompatible loads the saved best network and checks it against topology.
// It returns nil when nothing is saved. A corrupt or mismatched save is an
// error under the reject policy; under fallback it is logged and nil is
// returned so training starts from random networks.
func LoadCompatible(ctx context.Context, store Store, topology []int, onMismatch string) (*neural.Network, error) {
	net, ok, err := store.LoadBest(ctx)
	if err != nil {
		if onMismatch == config.MismatchFallback {
			slog.Warn("saved network unreadable, starting fresh", "error", err)
			return nil, nil
		}
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	if !net.MatchesTopology(topology) {
		err := fmt.Errorf("saved network: %w: have %v, want %v", neural.ErrTopologyMismatch, net.Topology(), topology)
		if onMismatch == config.MismatchFallback {
			slog.Warn("saved network does not fit, starting fresh",
				"saved", net.Topology(),
				"want", topology,
			)
			return nil, nil
		}
		return nil, err
	}
	return net, nil
}
