package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"ghostround.io/internal/protocol"
	"ghostround.io/internal/replication"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "player name")
		codec = flag.String("codec", protocol.CodecJSON, "frame codec (json|msgpack)")
		seed  = flag.Int64("seed", 0, "decision seed (0 = time based)")
		every = flag.Uint64("every", 5, "act at most once per this many ticks")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		PlayerName:      *name,
		Codec:           *codec,
		Capabilities:    protocol.HelloCapabilities{MaxQueue: 64},
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var welcome protocol.WelcomeMsg
	if err := conn.ReadJSON(&welcome); err != nil || welcome.Type != protocol.TypeWelcome {
		logger.Fatalf("read WELCOME: %v", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	logger.Printf("WELCOME player_id=%s host=%s codec=%s tick_rate=%d seed=%d",
		welcome.PlayerID, welcome.HostID, welcome.Codec, welcome.WorldParams.TickRateHz, welcome.WorldParams.Seed)

	s := *seed
	if s == 0 {
		s = time.Now().UnixNano()
	}
	pl := newPlanner(welcome.PlayerID, welcome.WorldParams, rand.New(rand.NewSource(s)), *every)
	c := protocol.CodecByName(welcome.Codec)

	rep := replication.NewReplica()
	rep.OnEvent(func(e protocol.Event) {
		switch e.Type {
		case protocol.EventRoundState, protocol.EventAgentConverted, protocol.EventPlayerIncapacitated, protocol.EventPlayerRevived:
			logger.Printf("event %s player=%s agent=%s", e.Type, e.PlayerID, e.AgentID)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Printf("read: %v", err)
			}
			return
		}
		base, err := protocol.DecodeBaseWith(c, msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeEvents:
			var m protocol.EventsMsg
			if err := c.Unmarshal(msg, &m); err == nil {
				rep.ApplyEvents(m)
			}
		case protocol.TypeState:
			var m protocol.StateMsg
			if err := c.Unmarshal(msg, &m); err != nil {
				continue
			}
			rep.ApplyState(m)
			for _, req := range pl.next(rep) {
				if err := send(conn, c, req); err != nil {
					logger.Printf("send: %v", err)
					return
				}
			}
		}
	}
}

func send(conn *websocket.Conn, c protocol.Codec, req protocol.ReqMsg) error {
	b, err := c.Marshal(req)
	if err != nil {
		return err
	}
	mt := websocket.TextMessage
	if c.Binary() {
		mt = websocket.BinaryMessage
	}
	return conn.WriteMessage(mt, b)
}
