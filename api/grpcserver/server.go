// Package grpcserver exposes the order service over gRPC. The method
// set is declared by hand with a JSON codec, so no generated stubs live
// in this repo; clients dial with the same codec and the full method
// names below.
package grpcserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/encoding"
	"google.golang.org/grpc/status"

	"odin/domain/book"
	"odin/service"
)

const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type Server struct {
	svc *service.OrderService
}

func NewServer(svc *service.OrderService) *Server {
	return &Server{svc: svc}
}

// Register attaches the hand-rolled descriptor to a grpc.Server.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&serviceDesc, s)
}

/* ---------------- wire types ---------------- */

type TicketRequest struct {
	Condition string `json:"condition"`
	Trigger   string `json:"trigger,omitempty"`
	LegSide   string `json:"leg_side,omitempty"`
	LegSize   uint64 `json:"leg_size,omitempty"`
	LegLimit  string `json:"leg_limit,omitempty"`
	LegStop   string `json:"leg_stop,omitempty"`
	// bracket profit target, absolute price
	TargetLimit string `json:"target_limit,omitempty"`
	// trailing offsets, in ticks
	StopTicks   int64 `json:"stop_ticks,omitempty"`
	TargetTicks int64 `json:"target_ticks,omitempty"`
}

type PlaceRequest struct {
	Side   string         `json:"side"`
	Type   string         `json:"type"`
	Limit  string         `json:"limit,omitempty"`
	Stop   string         `json:"stop,omitempty"`
	Size   uint64         `json:"size"`
	Ticket *TicketRequest `json:"ticket,omitempty"`
	// Target makes the place a replace of that order id.
	Target uint64 `json:"target,omitempty"`
}

type PlaceResponse struct {
	ID uint64 `json:"id"`
}

type OrderRequest struct {
	ID uint64 `json:"id"`
}

type PullResponse struct {
	ID uint64 `json:"id"`
}

type DepthRequest struct {
	Levels int `json:"levels"`
}

type DepthResponse struct {
	Bids []service.Quote `json:"bids"`
	Asks []service.Quote `json:"asks"`
}

type AONDepthResponse struct {
	Levels []service.AONQuote `json:"levels"`
}

type Empty struct{}

type TapeResponse struct {
	Trades []service.TradeView `json:"trades"`
}

/* ---------------- handlers ---------------- */

func (s *Server) place(ctx context.Context, req *PlaceRequest) (*PlaceResponse, error) {
	cmd, err := s.buildCommand(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	id, err := s.svc.Submit(cmd)
	if err != nil {
		return nil, toStatus(err)
	}
	return &PlaceResponse{ID: id}, nil
}

func (s *Server) pull(ctx context.Context, req *OrderRequest) (*PullResponse, error) {
	id, err := s.svc.Submit(service.Command{Op: service.OpPull, Target: req.ID})
	if err != nil {
		return nil, toStatus(err)
	}
	return &PullResponse{ID: id}, nil
}

func (s *Server) orderInfo(ctx context.Context, req *OrderRequest) (*service.OrderView, error) {
	v, ok := s.svc.OrderInfo(req.ID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "order %d", req.ID)
	}
	return &v, nil
}

func (s *Server) depth(ctx context.Context, req *DepthRequest) (*DepthResponse, error) {
	bids, asks := s.svc.Depth(req.Levels)
	return &DepthResponse{Bids: bids, Asks: asks}, nil
}

func (s *Server) aonDepth(ctx context.Context, _ *Empty) (*AONDepthResponse, error) {
	return &AONDepthResponse{Levels: s.svc.AONDepth()}, nil
}

func (s *Server) stats(ctx context.Context, _ *Empty) (*service.Stats, error) {
	st := s.svc.Stats()
	return &st, nil
}

func (s *Server) timeAndSales(ctx context.Context, _ *Empty) (*TapeResponse, error) {
	return &TapeResponse{Trades: s.svc.TimeAndSales()}, nil
}

/* ---------------- request mapping ---------------- */

func (s *Server) buildCommand(req *PlaceRequest) (service.Command, error) {
	side, err := parseSide(req.Side)
	if err != nil {
		return service.Command{}, err
	}

	c := service.Command{Side: side, Size: req.Size, Target: req.Target}

	switch req.Type {
	case "limit":
		c.Op = service.OpLimit
	case "market":
		c.Op = service.OpMarket
	case "stop":
		c.Op = service.OpStop
	case "stop-limit":
		c.Op = service.OpStopLimit
	default:
		return service.Command{}, fmt.Errorf("order type %q", req.Type)
	}
	if req.Target != 0 {
		// same op order, replace variants
		c.Op += service.OpReplaceLimit - service.OpLimit
	}

	if c.Limit, err = s.ticks(req.Limit); err != nil {
		return service.Command{}, err
	}
	if c.Stop, err = s.ticks(req.Stop); err != nil {
		return service.Command{}, err
	}

	if req.Ticket != nil {
		if c.Ticket, err = s.buildTicket(req.Ticket); err != nil {
			return service.Command{}, err
		}
	}
	return c, nil
}

func (s *Server) buildTicket(t *TicketRequest) (service.TicketSpec, error) {
	spec := service.TicketSpec{}

	switch t.Condition {
	case "oco":
		spec.Cond = book.CondOCO
	case "oto":
		spec.Cond = book.CondOTO
	case "fok":
		spec.Cond = book.CondFOK
	case "aon":
		spec.Cond = book.CondAON
	case "bracket":
		spec.Cond = book.CondBracket
	case "trailing-stop":
		spec.Cond = book.CondTrailingStop
	case "trailing-bracket":
		spec.Cond = book.CondTrailingBracket
	default:
		return spec, fmt.Errorf("ticket condition %q", t.Condition)
	}

	switch t.Trigger {
	case "":
	case "fill-partial":
		spec.Trigger = book.TriggerFillPartial
	case "fill-full":
		spec.Trigger = book.TriggerFillFull
	default:
		return spec, fmt.Errorf("ticket trigger %q", t.Trigger)
	}

	var err error
	switch spec.Cond {
	case book.CondOCO, book.CondOTO:
		if spec.LegSide, err = parseSide(t.LegSide); err != nil {
			return spec, err
		}
		spec.LegSize = t.LegSize
		if spec.LegLimit, err = s.ticks(t.LegLimit); err != nil {
			return spec, err
		}
		if spec.LegStop, err = s.ticks(t.LegStop); err != nil {
			return spec, err
		}
	case book.CondBracket:
		if spec.LegStop, err = s.ticks(t.LegStop); err != nil {
			return spec, err
		}
		if spec.LegLimit, err = s.ticks(t.LegLimit); err != nil {
			return spec, err
		}
		if spec.Limit2, err = s.ticks(t.TargetLimit); err != nil {
			return spec, err
		}
	case book.CondTrailingStop:
		spec.LegStop = t.StopTicks
	case book.CondTrailingBracket:
		spec.LegStop = t.StopTicks
		spec.Limit2 = t.TargetTicks
	}
	return spec, nil
}

func (s *Server) ticks(price string) (int64, error) {
	if price == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return 0, fmt.Errorf("price %q: %w", price, err)
	}
	return s.svc.Ladder().ToTicks(d)
}

func parseSide(s string) (book.Side, error) {
	switch s {
	case "buy":
		return book.Buy, nil
	case "sell":
		return book.Sell, nil
	}
	return 0, fmt.Errorf("side %q", s)
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, book.ErrOrderNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, book.ErrInvalidPrice),
		errors.Is(err, book.ErrInvalidSize),
		errors.Is(err, book.ErrInvalidTicket):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, book.ErrInsufficientLiquidity):
		return status.Error(codes.FailedPrecondition, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

/* ---------------- descriptor ---------------- */

func unary[Req any, Resp any](
	method func(*Server, context.Context, *Req) (*Resp, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, r any) (any, error) {
			return method(srv.(*Server), ctx, r.(*Req))
		}
		if interceptor == nil {
			return handler(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/odin.Engine/"}
		return interceptor(ctx, req, info, handler)
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "odin.Engine",
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Place", Handler: unary((*Server).place)},
		{MethodName: "Pull", Handler: unary((*Server).pull)},
		{MethodName: "OrderInfo", Handler: unary((*Server).orderInfo)},
		{MethodName: "Depth", Handler: unary((*Server).depth)},
		{MethodName: "AONDepth", Handler: unary((*Server).aonDepth)},
		{MethodName: "Stats", Handler: unary((*Server).stats)},
		{MethodName: "TimeAndSales", Handler: unary((*Server).timeAndSales)},
	},
	Streams: []grpc.StreamDesc{},
}
