// Command chirp-auth is the standalone auth service scaffold: it answers
// LOGIN_REQ/LOGOUT_REQ RPCs from gateway instances, verifying a JWT when
// --jwt_secret is set and the token looks like one, and otherwise resolving
// the token through a fixed in-memory credential map.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/chirp-im/chirp/internal/authsvc"
	"github.com/chirp-im/chirp/internal/transport"
)

type fixedUserFlag map[string]string

func (f fixedUserFlag) String() string { return "" }

func (f fixedUserFlag) Set(value string) error {
	token, userID, ok := strings.Cut(value, ":")
	if !ok || token == "" || userID == "" {
		return nil
	}
	f[token] = userID
	return nil
}

func main() {
	port := flag.Int("port", 6000, "primary TCP listen port")
	flag.IntVar(port, "p", 6000, "primary TCP listen port (shorthand)")
	jwtSecret := flag.String("jwt_secret", "", "HS256 secret; tokens with two '.' separators are verified as a JWT")
	fixedUsers := make(fixedUserFlag)
	flag.Var(fixedUsers, "fixed_user", "repeatable token:user_id scaffold credential")
	flag.Parse()

	svc := authsvc.New(*jwtSecret, fixedUsers)

	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(*port)))
	if err != nil {
		log.Fatalf("auth: failed to listen on port %d: %v", *port, err)
	}
	log.Printf("chirp-auth starting tcp=%d fixed_users=%d jwt=%v", *port, len(fixedUsers), *jwtSecret != "")

	go acceptTCP(ln, svc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("chirp-auth shutting down")
	ln.Close()
}

func acceptTCP(ln net.Listener, svc *authsvc.Service) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		transport.NewTCPSession(conn, svc.OnFrame, nil)
	}
}
