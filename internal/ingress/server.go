package ingress

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"citadel/internal/common"
	"citadel/internal/orchestrator"
	"citadel/internal/wire"
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

const (
	defaultWorkers = 10
)

// Server is the TCP front door: it accepts connections, hands each to the
// worker pool, and forwards decoded requests into Orchestrator. Grounded
// on the teacher's internal/net.Server — same accept loop and
// tomb.WithContext shutdown, generalized from one in-process Engine
// interface to Orchestrator's channel-mediated API.
type Server struct {
	address string
	port    int
	orch    *orchestrator.Orchestrator
	pool    workerPool
}

// New constructs a Server bound to address:port, forwarding decoded
// requests to orch.
func New(address string, port int, orch *orchestrator.Orchestrator) *Server {
	return &Server{address: address, port: port, orch: orch, pool: newWorkerPool(defaultWorkers)}
}

// Run accepts connections until ctx is canceled.
func (s *Server) Run(ctx context.Context) error {
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		return fmt.Errorf("ingress: listen: %w", err)
	}
	defer listener.Close()
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	t.Go(func() error {
		s.pool.run(t, s.handleConnection)
		return nil
	})

	log.Info().Str("address", listener.Addr().String()).Msg("ingress: server listening")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			log.Error().Err(err).Msg("ingress: accept failed")
			continue
		}
		s.pool.addTask(conn)
	}
}

// handleConnection serves one connection to completion: it reads frames
// in a loop until the client disconnects or the tomb dies, replying to
// each synchronously. Unlike the teacher's per-message worker handoff,
// one worker owns a connection end to end; that is enough concurrency
// given Orchestrator itself serializes on Titan/Oracle internally.
func (s *Server) handleConnection(t *tomb.Tomb, conn net.Conn) error {
	defer conn.Close()
	r := bufio.NewReader(conn)

	for {
		select {
		case <-t.Dying():
			return nil
		default:
		}

		f, err := wire.ReadFrame(r)
		if err != nil {
			if err != io.EOF {
				log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("ingress: connection read failed")
			}
			return nil
		}

		reply, err := s.dispatch(context.Background(), f)
		if err != nil {
			reply = wire.Frame{Type: wire.MsgErrorReport, Corr: f.Corr, Body: wire.ErrorBody(err.Error())}
		}
		if err := wire.WriteFrame(conn, reply); err != nil {
			log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("ingress: write failed")
			return nil
		}
	}
}

func (s *Server) dispatch(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	switch f.Type {
	case wire.MsgNewOrder:
		return s.handleNewOrder(ctx, f)
	case wire.MsgCancelOrder:
		return s.handleCancel(ctx, f)
	case wire.MsgSnapshot:
		return s.handleSnapshot(ctx, f)
	default:
		return wire.Frame{}, wire.ErrUnknownMessage
	}
}

func (s *Server) handleNewOrder(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	nw, err := wire.DecodeNewOrder(f.Body)
	if err != nil {
		return wire.Frame{}, err
	}
	req, err := requestFromWire(nw)
	if err != nil {
		return wire.Frame{}, err
	}

	report, err := s.orch.SubmitOrder(ctx, req)
	if err != nil {
		return wire.Frame{}, err
	}

	execs := make([]wire.ExecutionWire, 0, len(report.Executions))
	for _, e := range report.Executions {
		execs = append(execs, wire.ExecutionWire{
			ExecId:   e.ExecId,
			MakerId:  uint64(e.MakerId),
			TakerId:  uint64(e.TakerId),
			Price:    e.Price.Decimal.String(),
			Quantity: e.Quantity.Decimal.String(),
		})
	}
	body := wire.EncodeExecutionReport(wire.ExecutionReportWire{
		State:      uint8(report.State),
		OrderId:    uint64(report.Order.OrderId),
		SubmitSeq:  report.Order.SubmitSeq,
		Executions: execs,
	})
	return wire.Frame{Type: wire.MsgExecutionReport, Corr: f.Corr, Body: body}, nil
}

func (s *Server) handleCancel(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	cw, err := wire.DecodeCancelOrder(f.Body)
	if err != nil {
		return wire.Frame{}, err
	}
	canceled, err := s.orch.CancelOrder(ctx, common.Symbol(cw.Symbol), common.OrderId(cw.OrderId))
	if err != nil && !errors.Is(err, common.ErrUnknownOrder) {
		return wire.Frame{}, err
	}
	body := []byte{0}
	if canceled {
		body[0] = 1
	}
	return wire.Frame{Type: wire.MsgCancelAck, Corr: f.Corr, Body: body}, nil
}

func (s *Server) handleSnapshot(ctx context.Context, f wire.Frame) (wire.Frame, error) {
	sw, err := wire.DecodeSnapshot(f.Body)
	if err != nil {
		return wire.Frame{}, err
	}
	view, err := s.orch.Snapshot(ctx, common.Symbol(sw.Symbol))
	if err != nil {
		return wire.Frame{}, err
	}
	body := wire.EncodeBookView(view)
	return wire.Frame{Type: wire.MsgSnapshotReport, Corr: f.Corr, Body: body}, nil
}
