// ptymaster – the CLI client for the ptymasterd daemon.
//
// Usage:
//
//	ptymaster attach [-session <id>]           – attach your terminal to a session's PTY
//	ptymaster view [-session <id>]              – stream a session's output read-only
//	ptymaster send [-session <id>] <text>       – send keystrokes to a session
//	ptymaster resize [-session <id>] <rows> <cols> – resize a session's window
//
// All subcommands accept -socket <path> to override the default endpoint.
// Detach from an attached session with Ctrl-] (0x1D).
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/ptymaster/ptymasterd/internal/client"
	"github.com/ptymaster/ptymasterd/internal/config"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "attach":
		cmdAttach()
	case "view":
		cmdView()
	case "send":
		cmdSend()
	case "resize":
		cmdResize()
	default:
		fmt.Fprintf(os.Stderr, "ptymaster: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `ptymaster – attach to ptymasterd PTY sessions

Usage:
  ptymaster attach [-session <id>]
  ptymaster view [-session <id>]
  ptymaster send [-session <id>] <text>
  ptymaster resize [-session <id>] <rows> <cols>`)
}

func daemonSocket() string {
	if env := os.Getenv("PTYMASTER_SOCKET"); env != "" {
		return env
	}
	return config.DefaultSocketPath
}

func cmdAttach() {
	fs := flag.NewFlagSet("attach", flag.ExitOnError)
	sessionID := fs.String("session", config.DefaultSessionID, "session id to attach to")
	socketPath := fs.String("socket", daemonSocket(), "daemon socket path")
	fs.Parse(os.Args[2:])

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ptymaster: cannot set raw mode: %v\n", err)
		os.Exit(1)
	}
	defer term.Restore(fd, oldState)

	c, err := client.Connect(*socketPath, *sessionID, os.Stdout)
	if err != nil {
		term.Restore(fd, oldState)
		fmt.Fprintf(os.Stderr, "ptymaster: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "\r\n[ptymaster] attached to %s (detach: Ctrl-])\r\n", *sessionID)

	if cols, rows, err := term.GetSize(fd); err == nil {
		c.SendResize(rows, cols)
	}

	winchCh := make(chan os.Signal, 1)
	signal.Notify(winchCh, syscall.SIGWINCH)
	go func() {
		for range winchCh {
			if cols, rows, err := term.GetSize(fd); err == nil {
				c.SendResize(rows, cols)
			}
		}
	}()

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := os.Stdin.Read(buf)
			if n > 0 {
				for i := 0; i < n; i++ {
					if buf[i] == 0x1D {
						c.Disconnect()
						return
					}
				}
				if err := c.SendRaw(buf[:n]); err != nil {
					return
				}
			}
			if err != nil {
				c.Disconnect()
				return
			}
		}
	}()

	<-c.Done()
}

func cmdView() {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	sessionID := fs.String("session", config.DefaultSessionID, "session id to view")
	socketPath := fs.String("socket", daemonSocket(), "daemon socket path")
	fs.Parse(os.Args[2:])

	c, err := client.Connect(*socketPath, *sessionID, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ptymaster: %v\n", err)
		os.Exit(1)
	}
	defer c.Disconnect()

	<-c.Done()
}

func cmdSend() {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	sessionID := fs.String("session", config.DefaultSessionID, "session id to send to")
	socketPath := fs.String("socket", daemonSocket(), "daemon socket path")
	fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: ptymaster send [-session <id>] <text>")
		os.Exit(1)
	}

	c, err := client.Connect(*socketPath, *sessionID, io.Discard)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ptymaster: %v\n", err)
		os.Exit(1)
	}
	defer c.Disconnect()

	if err := c.SendInput([]byte(fs.Arg(0))); err != nil {
		fmt.Fprintf(os.Stderr, "ptymaster: send failed: %v\n", err)
		os.Exit(1)
	}
}

func cmdResize() {
	fs := flag.NewFlagSet("resize", flag.ExitOnError)
	sessionID := fs.String("session", config.DefaultSessionID, "session id to resize")
	socketPath := fs.String("socket", daemonSocket(), "daemon socket path")
	fs.Parse(os.Args[2:])

	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, "usage: ptymaster resize [-session <id>] <rows> <cols>")
		os.Exit(1)
	}

	var rows, cols int
	if _, err := fmt.Sscanf(fs.Arg(0), "%d", &rows); err != nil {
		fmt.Fprintf(os.Stderr, "ptymaster: bad rows %q\n", fs.Arg(0))
		os.Exit(1)
	}
	if _, err := fmt.Sscanf(fs.Arg(1), "%d", &cols); err != nil {
		fmt.Fprintf(os.Stderr, "ptymaster: bad cols %q\n", fs.Arg(1))
		os.Exit(1)
	}

	c, err := client.Connect(*socketPath, *sessionID, io.Discard)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ptymaster: %v\n", err)
		os.Exit(1)
	}
	defer c.Disconnect()

	if err := c.SendResize(rows, cols); err != nil {
		fmt.Fprintf(os.Stderr, "ptymaster: resize failed: %v\n", err)
		os.Exit(1)
	}
}
