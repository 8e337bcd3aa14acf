// orderctl is a thin TCP client for citadeld's ingress protocol. Grounded
// on the teacher's cmd/client/client.go: flag-based CLI, dial, send,
// print the response — generalized from fixed-width float wire fields to
// this repo's length-prefixed decimal-string frames.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"citadel/internal/wire"
	"github.com/google/uuid"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "address of the citadeld ingress server")
	owner := flag.String("owner", "", "owner account name (required)")
	action := flag.String("action", "place", "action: place | cancel | snapshot")

	symbol := flag.String("symbol", "BTC-USD", "symbol")
	sideStr := flag.String("side", "buy", "buy | sell")
	typeStr := flag.String("type", "limit", "limit | market")
	price := flag.String("price", "50000", "limit price (decimal string, ignored for market orders)")
	qty := flag.String("qty", "1", "quantity (decimal string)")

	orderID := flag.Uint64("order-id", 0, "order id to cancel")

	flag.Parse()

	if *action == "place" && *owner == "" {
		fmt.Fprintln(os.Stderr, "error: -owner is required for place")
		os.Exit(1)
	}

	conn, err := net.DialTimeout("tcp", *serverAddr, 5*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: connecting to %s: %v\n", *serverAddr, err)
		os.Exit(1)
	}
	defer conn.Close()

	var body []byte
	var typ wire.MsgType
	switch strings.ToLower(*action) {
	case "place":
		side := uint8(0)
		if strings.ToLower(*sideStr) == "sell" {
			side = 1
		}
		orderType := uint8(0)
		marketable := false
		if strings.ToLower(*typeStr) == "market" {
			orderType = 1
			marketable = true
		}
		typ = wire.MsgNewOrder
		body = wire.EncodeNewOrder(wire.NewOrderWire{
			Symbol:     *symbol,
			Side:       side,
			OrderType:  orderType,
			Marketable: marketable,
			Price:      *price,
			Quantity:   *qty,
			Owner:      *owner,
		})
	case "cancel":
		typ = wire.MsgCancelOrder
		body = wire.EncodeCancelOrder(wire.CancelOrderWire{Symbol: *symbol, OrderId: *orderID})
	case "snapshot":
		typ = wire.MsgSnapshot
		body = wire.EncodeSnapshot(wire.SnapshotWire{Symbol: *symbol})
	default:
		fmt.Fprintf(os.Stderr, "error: unknown action %q\n", *action)
		os.Exit(1)
	}

	corr := uuid.New()
	if err := wire.WriteFrame(conn, wire.Frame{Type: typ, Corr: corr, Body: body}); err != nil {
		fmt.Fprintf(os.Stderr, "error: sending request: %v\n", err)
		os.Exit(1)
	}

	reply, err := wire.ReadFrame(bufio.NewReader(conn))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: reading response: %v\n", err)
		os.Exit(1)
	}
	printReply(reply)
}

func printReply(f wire.Frame) {
	switch f.Type {
	case wire.MsgExecutionReport:
		report, err := wire.DecodeExecutionReport(f.Body)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: decoding execution report: %v\n", err)
			return
		}
		fmt.Printf("order_id=%d submit_seq=%d state=%d executions=%d\n", report.OrderId, report.SubmitSeq, report.State, len(report.Executions))
		for _, e := range report.Executions {
			fmt.Printf("  exec_id=%d maker=%d taker=%d price=%s qty=%s\n", e.ExecId, e.MakerId, e.TakerId, e.Price, e.Quantity)
		}
	case wire.MsgCancelAck:
		fmt.Printf("canceled=%v\n", len(f.Body) > 0 && f.Body[0] == 1)
	case wire.MsgSnapshotReport:
		symbol, bids, asks, err := wire.DecodeBookView(f.Body)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: decoding snapshot: %v\n", err)
			return
		}
		fmt.Printf("symbol=%s\n", symbol)
		for _, b := range bids {
			fmt.Printf("  bid price=%s qty=%s\n", b.Price, b.Quantity)
		}
		for _, a := range asks {
			fmt.Printf("  ask price=%s qty=%s\n", a.Price, a.Quantity)
		}
	case wire.MsgErrorReport:
		fmt.Fprintf(os.Stderr, "error: %s\n", string(f.Body))
	default:
		fmt.Fprintf(os.Stderr, "error: unexpected response type %d\n", f.Type)
	}
}
