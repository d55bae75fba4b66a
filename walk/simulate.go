package walk

import (
	"context"
	"fmt"
	"io"
	"log"

	fchecker "randomwalk/fcheck"
	"randomwalk/util"

	"golang.org/x/sync/errgroup"
)

type WalkerConfig = util.WalkerConfig

// Simulate runs the coordinator and every walker in this process. Walkers
// are goroutines that share one inbox; the call returns once the
// coordinator has counted every report.
func Simulate(
	ctx context.Context, config SimulationConfig, seed uint64, out io.Writer,
) (CompletionTally, error) {
	if err := config.Validate(); err != nil {
		return CompletionTally{}, err
	}
	out = &lockedWriter{w: out}

	coord := NewCoord(config, out)

	var g errgroup.Group
	for rank := 1; rank <= config.WalkerCount; rank++ {
		walker := NewWalker(uint32(rank), config, seed, coord.Inbox(), out)
		g.Go(func() error {
			return walker.Start(ctx)
		})
	}

	tally := coord.Wait()
	if err := g.Wait(); err != nil {
		return tally, err
	}
	return tally, nil
}

// RunRemoteWalker runs one walker process against a coordinator reachable at
// config.CoordAddr. When an ack address is configured the walker first joins
// and answers heartbeats until its report is delivered.
func RunRemoteWalker(
	ctx context.Context, config WalkerConfig, sim SimulationConfig, seed uint64,
	out io.Writer,
) error {
	if err := sim.Validate(); err != nil {
		return err
	}
	if config.WalkerId == ControllerRank || int(config.WalkerId) > sim.WalkerCount {
		return fmt.Errorf(
			"%w: walker id %d outside 1..%d", ErrInvalidConfig,
			config.WalkerId, sim.WalkerCount,
		)
	}

	inbox, err := DialCoordinator(ctx, config.CoordAddr)
	if err != nil {
		return err
	}
	defer inbox.Close()

	if config.FCheckAckLocalAddress != "" {
		responder, err := fchecker.Respond(config.FCheckAckLocalAddress)
		if err != nil {
			return err
		}
		defer responder.Close()

		log.Printf(
			"RunRemoteWalker: walker %d answering heartbeats at %v\n",
			config.WalkerId, responder.Addr(),
		)
		if err := inbox.Join(ctx, config.WalkerId, responder.Addr()); err != nil {
			return fmt.Errorf("walker %d could not join coordinator %v: %w", config.WalkerId, config.CoordAddr, err)
		}
	}

	walker := NewWalker(config.WalkerId, sim, seed, inbox, out)
	return walker.Start(ctx)
}
