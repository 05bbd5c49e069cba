package sandwich

import (
	"strconv"
	"time"

	"github.com/WelcomerTeam/Sandwich-Gateway/gateway"
	"github.com/WelcomerTeam/Sandwich-Gateway/sandwichjson"
	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// BaseRestResponse wraps every status server response.
type BaseRestResponse struct {
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Ok    bool   `json:"ok"`
}

type ShardStatus struct {
	Status    string `json:"status"`
	ShardID   int32  `json:"shard_id"`
	LatencyMS int64  `json:"latency_ms"`
	Sequence  int64  `json:"sequence"`
}

type StatusResponse struct {
	Shards  []ShardStatus `json:"shards"`
	Version string        `json:"version"`
	Uptime  string        `json:"uptime"`
}

// ShardProvider is what the status server reads shards from. *gateway.Manager implements it.
type ShardProvider interface {
	Shards() []*gateway.Shard
	Shard(shardID int32) (*gateway.Shard, bool)
}

type statusServer struct {
	logger    zerolog.Logger
	shards    ShardProvider
	startTime time.Time
}

// NewStatusHandler returns the status server routes: /api/status, /api/shards/{id} and /metrics.
func NewStatusHandler(logger zerolog.Logger, shards ShardProvider, gatherer prometheus.Gatherer, startTime time.Time) fasthttp.RequestHandler {
	server := &statusServer{
		logger:    logger,
		shards:    shards,
		startTime: startTime,
	}

	r := router.New()
	r.GET("/api/status", server.handleStatus)
	r.GET("/api/shards/{id}", server.handleShard)
	r.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
	))

	return server.logRequest(r.Handler)
}

func (s *statusServer) logRequest(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()

		next(ctx)

		s.logger.Debug().
			Str("method", string(ctx.Method())).
			Str("path", string(ctx.Path())).
			Int("status", ctx.Response.StatusCode()).
			Dur("duration", time.Since(start)).
			Msg("Handled request")
	}
}

func (s *statusServer) handleStatus(ctx *fasthttp.RequestCtx) {
	shards := s.shards.Shards()

	response := StatusResponse{
		Shards:  make([]ShardStatus, 0, len(shards)),
		Version: VERSION,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	}

	for _, shard := range shards {
		response.Shards = append(response.Shards, newShardStatus(shard))
	}

	s.writeResponse(ctx, fasthttp.StatusOK, BaseRestResponse{Ok: true, Data: response})
}

func (s *statusServer) handleShard(ctx *fasthttp.RequestCtx) {
	rawID, _ := ctx.UserValue("id").(string)

	shardID, err := strconv.ParseInt(rawID, 10, 32)
	if err != nil {
		s.writeResponse(ctx, fasthttp.StatusBadRequest, BaseRestResponse{Error: "invalid shard id"})

		return
	}

	shard, ok := s.shards.Shard(int32(shardID))
	if !ok {
		s.writeResponse(ctx, fasthttp.StatusNotFound, BaseRestResponse{Error: "shard not found"})

		return
	}

	s.writeResponse(ctx, fasthttp.StatusOK, BaseRestResponse{Ok: true, Data: newShardStatus(shard)})
}

func (s *statusServer) writeResponse(ctx *fasthttp.RequestCtx, statusCode int, response BaseRestResponse) {
	ctx.SetContentType("application/json;charset=UTF-8")
	ctx.SetStatusCode(statusCode)

	if err := sandwichjson.MarshalToWriter(ctx, response); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write response")
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	}
}

func newShardStatus(shard *gateway.Shard) ShardStatus {
	return ShardStatus{
		Status:    shard.Status().String(),
		ShardID:   shard.ID,
		LatencyMS: shard.Latency().Milliseconds(),
		Sequence:  shard.Sequence(),
	}
}
