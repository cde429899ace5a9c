// Command sipreactord runs the SIP transaction/dialog engine as a
// standalone UAS: it binds the UDP transport, drives the reactor loop,
// and answers INVITE/REGISTER/BYE/OPTIONS/CANCEL per spec.md section
// 4.4, exposing prometheus metrics over HTTP.
//
// Grounded on the teacher's cmd/proxysip/main.go for flag handling,
// zerolog setup and the promhttp.Handler() wiring - trimmed to the
// flags SPEC_FULL.md section 6.3 names (-h, -v) plus the listen
// address/metrics port this core actually needs, instead of the
// teacher proxy's destination/transport-type flags (routing is out of
// scope here).
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sipcore/sipreactor/core"
	"github.com/sipcore/sipreactor/logging"
)

const version = "sipreactord 0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [-addr 0.0.0.0:5060] [-metrics :9100]\n", os.Args[0])
	fmt.Fprintln(os.Stderr, "  -h  show this help and exit")
	fmt.Fprintln(os.Stderr, "  -v  show version and exit")
}

func main() {
	addr := flag.String("addr", "", "UDP listen address (default 0.0.0.0:5060)")
	metricsAddr := flag.String("metrics", ":9100", "address to serve /metrics on")
	debug := flag.Bool("debug", false, "enable debug logging")
	help := flag.Bool("h", false, "show usage")
	ver := flag.Bool("v", false, "show version")
	flag.Usage = usage
	flag.Parse()

	if *help {
		usage()
		os.Exit(0)
	}
	if *ver {
		fmt.Println(version)
		os.Exit(0)
	}
	if flag.NArg() > 0 {
		usage()
		os.Exit(2)
	}

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logging.SetDefault(zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger().Level(level))
	log := logging.Default()

	c := core.New(prometheus.DefaultRegisterer)
	if err := c.Start(*addr); err != nil {
		log.Fatal().Err(err).Msg("sipreactord: failed to start transport")
	}

	go serveMetrics(*metricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("sipreactord: signal received, shutting down")
		c.Stop()
	}()

	log.Info().Str("addr", c.Transport.LocalSocket()).Msg("sipreactord: listening")
	c.Run()
	log.Info().Msg("sipreactord: reactor loop exited")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	logging.Default().Info().Str("addr", addr).Msg("sipreactord: metrics server listening")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logging.Default().Error().Err(err).Msg("sipreactord: metrics server stopped")
	}
}
