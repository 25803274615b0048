package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/wiphone/tinysip"
	"github.com/wiphone/tinysip/connection"
)

func main() {
	user := flag.String("user", "alice", "SIP username")
	password := flag.String("password", "", "SIP account password")
	displayName := flag.String("name", "Alice", "display name")
	proxyHost := flag.String("proxy", "127.0.0.1", "proxy/registrar host")
	proxyPort := flag.Int("port", tinysip.DefaultSIPPort, "proxy/registrar port")
	call := flag.String("call", "", "callee URI to dial on startup, e.g. sip:bob@example.org")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05.000",
	}).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	if *debug {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	}

	slogLevel := slog.LevelInfo
	if *debug {
		slogLevel = slog.LevelDebug
	}
	tinysip.SetDefaultLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))

	cfg := tinysip.Config{
		DisplayName: *displayName,
		User:        *user,
		Password:    *password,
		ProxyHost:   *proxyHost,
		ProxyPort:   *proxyPort,
		Transport:   connection.UDP,
		MAC:         localMAC(),
	}

	engine, err := tinysip.NewEngine(cfg)
	if err != nil {
		log.Error().Err(err).Msg("constructing engine")
		os.Exit(1)
	}

	start := time.Now()
	nowMs := func() uint32 { return uint32(time.Since(start).Milliseconds()) }

	if err := engine.Init(context.Background(), nowMs()); err != nil {
		log.Error().Err(err).Msg("connecting to proxy")
		os.Exit(1)
	}
	log.Info().Str("proxy", fmt.Sprintf("%s:%d", *proxyHost, *proxyPort)).Msg("engine started")

	if *call != "" {
		if err := engine.StartCall(*call, nowMs()); err != nil {
			log.Error().Err(err).Msg("starting call")
		}
	}

	for {
		events := engine.Poll(nowMs())
		logEvents(events)
		if events.Has(tinysip.EventIncomingCall) {
			log.Info().Str("from", engine.RemoteName()).Msg("incoming call, auto-declining")
			engine.DeclineCall(nowMs())
		}
		if msg := engine.CheckMessage(); msg != nil {
			log.Info().Str("from", msg.From).Str("body", msg.Body).Msg("text message received")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func logEvents(events tinysip.Events) {
	if events == tinysip.EventNone {
		return
	}
	if events.Has(tinysip.EventConnectionError) {
		log.Warn().Msg("connection error")
	}
	if events.Has(tinysip.EventSIPError) {
		log.Warn().Msg("sip error")
	}
	if events.Has(tinysip.EventRegistered) {
		log.Info().Msg("registered")
	}
	if events.Has(tinysip.EventRinging) {
		log.Info().Msg("ringing")
	}
	if events.Has(tinysip.EventCallConfirmed) {
		log.Info().Int("port", engineAudioPort).Msg("call confirmed")
	}
	if events.Has(tinysip.EventCallTerminated) {
		log.Info().Msg("call terminated")
	}
}

// engineAudioPort is a placeholder hook point for a media engine; tinyphone
// itself does not send or receive RTP.
var engineAudioPort int

// localMAC picks the first non-empty hardware address on the host to seed
// the Contact +sip.instance UUID (§4.2). Real tinySIP firmware reads this
// from the network chip instead.
func localMAC() [6]byte {
	ifaces, err := net.Interfaces()
	if err != nil {
		return [6]byte{}
	}
	for _, iface := range ifaces {
		if len(iface.HardwareAddr) == 6 {
			var mac [6]byte
			copy(mac[:], iface.HardwareAddr)
			return mac
		}
	}
	return [6]byte{}
}
