package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/keldb/keldb/internal/engine"
	"github.com/keldb/keldb/internal/manager"
	"github.com/keldb/keldb/internal/server"
	"github.com/keldb/keldb/pkg"
)

func main() {
	should_log := flag.Bool("log", true, "enable logging")
	debug := flag.Bool("debug", false, "show debug logs")
	ws_port := flag.Int("ws-port", 0, "optional websocket port (0 disables)")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <db-path> <socket-path>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 2 {
		flag.Usage()
		os.Exit(2)
	}
	db_path := flag.Arg(0)
	socket_path := flag.Arg(1)

	if !*should_log {
		pkg.SetLogLevel(pkg.LogLevelNone)
	} else if *debug {
		pkg.SetLogLevel(pkg.LogLevelDebug)
	} else {
		pkg.SetLogLevel(pkg.LogLevelErrOnly)
	}

	e := engine.New()
	m, err := manager.Open(db_path, e)
	if err != nil {
		pkg.FatalLog(err)
	}

	s := server.New(e, m, socket_path, *ws_port)
	if err := s.Listen(); err != nil {
		m.Unlock()
		pkg.FatalLog(err)
	}
}
