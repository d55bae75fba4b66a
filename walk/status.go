package walk

import (
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/improbable-eng/grpc-web/go/grpcweb"
	"google.golang.org/grpc"
)

// Status is a read-only snapshot of coordinator progress.
type Status struct {
	Received  int      `json:"received"`
	Expected  int      `json:"expected"`
	Done      bool     `json:"done"`
	Suspected []uint32 `json:"suspected"`
}

type WalkerStatus struct {
	WalkerID   uint32 `json:"walkerId"`
	Reported   bool   `json:"reported"`
	StepsTaken int    `json:"stepsTaken,omitempty"`
	Suspected  bool   `json:"suspected"`
}

// StatusBoard receives copies of the tally from the receive loop. Readers
// never see the loop's own tally.
type StatusBoard struct {
	mu        sync.Mutex
	tally     CompletionTally
	done      bool
	steps     map[uint32]int
	suspected map[uint32]bool
}

func NewStatusBoard(expected int) *StatusBoard {
	return &StatusBoard{
		tally:     CompletionTally{Expected: expected},
		steps:     make(map[uint32]int),
		suspected: make(map[uint32]bool),
	}
}

func (b *StatusBoard) record(report CompletionReport, tally CompletionTally) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tally = tally
	b.steps[report.WalkerID] = report.StepsTaken
	delete(b.suspected, report.WalkerID)
}

func (b *StatusBoard) suspect(walkerID uint32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, reported := b.steps[walkerID]; !reported {
		b.suspected[walkerID] = true
	}
}

func (b *StatusBoard) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done = true
}

func (b *StatusBoard) Snapshot() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	suspected := make([]uint32, 0, len(b.suspected))
	for id := range b.suspected {
		suspected = append(suspected, id)
	}
	sort.Slice(suspected, func(i, j int) bool { return suspected[i] < suspected[j] })

	return Status{
		Received:  b.tally.Received,
		Expected:  b.tally.Expected,
		Done:      b.done,
		Suspected: suspected,
	}
}

// Walkers lists every walker rank 1..Expected with its report state.
func (b *StatusBoard) Walkers() []WalkerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	walkers := make([]WalkerStatus, 0, b.tally.Expected)
	for id := uint32(1); id <= uint32(b.tally.Expected); id++ {
		steps, reported := b.steps[id]
		walkers = append(walkers, WalkerStatus{
			WalkerID:   id,
			Reported:   reported,
			StepsTaken: steps,
			Suspected:  b.suspected[id],
		})
	}
	return walkers
}

func (b *StatusBoard) getStatus(context *gin.Context) {
	context.JSON(http.StatusOK, b.Snapshot())
}

func (b *StatusBoard) getWalkers(context *gin.Context) {
	context.JSON(http.StatusOK, b.Walkers())
}

func (b *StatusBoard) getWalker(context *gin.Context) {
	id, err := strconv.ParseUint(context.Param("id"), 10, 32)
	if err != nil {
		context.JSON(http.StatusBadRequest, gin.H{"error": "walker id must be a number"})
		return
	}
	for _, w := range b.Walkers() {
		if w.WalkerID == uint32(id) {
			context.JSON(http.StatusOK, w)
			return
		}
	}
	context.JSON(http.StatusNotFound, gin.H{"error": "unknown walker"})
}

// NewStatusRouter exposes the board over HTTP.
func NewStatusRouter(board *StatusBoard) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	statusAPI := router.Group("/api")
	{
		statusAPI.GET("/status", board.getStatus)
		statusAPI.GET("/walkers", board.getWalkers)
		statusAPI.GET("/walkers/:id", board.getWalker)
	}
	return router
}

// grpcMultiplexer routes grpc-web requests to the coordinator service and
// everything else to the status router.
type grpcMultiplexer struct {
	*grpcweb.WrappedGrpcServer
}

func (m *grpcMultiplexer) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if m.IsGrpcWebRequest(r) {
				m.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		},
	)
}

func newStatusHandler(board *StatusBoard, grpcServer *grpc.Server) http.Handler {
	router := NewStatusRouter(board)
	if grpcServer == nil {
		return router
	}
	mux := grpcMultiplexer{
		grpcweb.WrapServer(
			grpcServer,
			grpcweb.WithOriginFunc(func(origin string) bool { return true }),
		),
	}
	return mux.Handler(router)
}
