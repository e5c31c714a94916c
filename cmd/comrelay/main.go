// Command comrelay connects its stdin/stdout to a serial port and
// relays bytes in both directions until either side closes.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jmkristian/comrelay-go"
	"github.com/rs/zerolog"
	"golang.org/x/text/language"
)

var lang = flag.String("lang", "", "Used language.")

func main() {
	flag.Parse()

	tag := language.AmericanEnglish
	if *lang != "" {
		parsed, err := language.Parse(*lang)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error parsing language:", err)
			os.Exit(comrelay.ExitUsage)
		}
		tag = parsed
	}
	p := comrelay.Printer(tag)

	args := flag.Args()
	if len(args) < 1 || len(args) > 2 {
		p.Fprintf(os.Stderr, "msg.usage", os.Args[0])
		fmt.Fprintln(os.Stderr)
		os.Exit(comrelay.ExitUsage)
	}
	portName := args[0]

	var logOut io.Writer = os.Stderr
	if len(args) == 2 {
		f, err := os.OpenFile(args[1], os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			p.Fprintf(os.Stderr, "msg.log_open_failed", args[1], err)
			fmt.Fprintln(os.Stderr)
			os.Exit(comrelay.ExitLogFile)
		}
		defer f.Close()
		logOut = f
	}
	logger := comrelay.NewLogger(logOut, zerolog.TraceLevel)

	logger.Info().Msg(p.Sprintf("msg.opening_port", portName))
	dev, err := comrelay.OpenDevice(portName, comrelay.DefaultSettings(), logger)
	if err != nil {
		logger.Info().Msg(p.Sprintf("msg.open_failed", portName, err))
		if ports, perr := comrelay.GetPortNames(); perr == nil && len(ports) > 0 {
			logger.Info().Msg(p.Sprintf("msg.available_ports", strings.Join(ports, " ")))
		}
		os.Exit(comrelay.ExitOpenFailed)
	}

	relay := comrelay.NewRelay(dev, os.Stdin, os.Stdout, logger, comrelay.Options{})
	code := relay.Run()
	_ = dev.Close()
	logger.Info().Msg(p.Sprintf("msg.port_closed", portName))
	os.Exit(code)
}
