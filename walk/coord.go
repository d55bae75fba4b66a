package walk

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
)

// Coord waits for one completion report from every walker. It does no
// walking itself.
type Coord struct {
	expected int
	inbox    channelInbox
	out      io.Writer

	board    *StatusBoard
	monitors *monitorSet

	once     sync.Once
	final    CompletionTally
	finished chan struct{}

	// guards reports arriving from other processes
	mu       sync.Mutex
	accepted map[uint32]bool
	closed   bool
}

var (
	errCoordFinished   = errors.New("coordinator already heard from every walker")
	errAlreadyReported = errors.New("walker already reported")
)

func NewCoord(config SimulationConfig, out io.Writer) *Coord {
	expected := config.WalkerCount
	if expected < 0 {
		expected = 0
	}
	return &Coord{
		expected: expected,
		inbox:    make(channelInbox, expected),
		out:      out,
		board:    NewStatusBoard(expected),
		monitors: newMonitorSet(),
		finished: make(chan struct{}),
		accepted: make(map[uint32]bool),
	}
}

// Inbox returns the handle walkers send their reports into.
func (c *Coord) Inbox() Inbox {
	return c.inbox
}

// Finished is closed once Wait has printed the controller line.
func (c *Coord) Finished() <-chan struct{} {
	return c.finished
}

func (c *Coord) Status() *StatusBoard {
	return c.board
}

// Wait blocks until every expected report has arrived, in whatever order the
// walkers finish, then prints the controller line. There is no timeout: a
// walker that never reports keeps Wait blocked. Calling Wait again returns
// the final tally without printing a second time.
func (c *Coord) Wait() CompletionTally {
	c.once.Do(func() {
		c.final = c.receiveAll()
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		if _, err := fmt.Fprintln(c.out, controllerFinishedLine(c.final.Expected)); err != nil {
			log.Printf("Coord.Wait: could not write output: %v\n", err)
		}
		c.board.finish()
		close(c.finished)
	})
	return c.final
}

// accept queues a report from a remote walker. Each rank is taken at most
// once and nothing is taken after Wait has counted every report, so the send
// never blocks.
func (c *Coord) accept(report CompletionReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errCoordFinished
	}
	if c.accepted[report.WalkerID] {
		return fmt.Errorf("%w: walker %d", errAlreadyReported, report.WalkerID)
	}
	select {
	case c.inbox <- report:
		c.accepted[report.WalkerID] = true
		return nil
	default:
		return errCoordFinished
	}
}

func (c *Coord) receiveAll() CompletionTally {
	tally := CompletionTally{Expected: c.expected}
	if tally.Done() {
		log.Printf("Coord.Wait: no walkers expected, nothing to wait for\n")
		return tally
	}

	log.Printf("Coord.Wait: waiting for %d walkers\n", tally.Expected)
	for !tally.Done() {
		report := <-c.inbox
		tally.Received++

		c.monitors.stop(report.WalkerID)
		c.board.record(report, tally)

		log.Printf(
			"Coord.Wait: walker %d finished in %d steps, %d/%d walkers done\n",
			report.WalkerID, report.StepsTaken, tally.Received, tally.Expected,
		)
	}
	c.monitors.stopAll()
	return tally
}
