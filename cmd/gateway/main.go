// Command chirp-gateway runs the session-brokering gateway: it terminates
// client TCP and WebSocket connections, forwards LOGIN_REQ/LOGOUT_REQ to the
// configured auth service (or falls back to scaffolding mode), and
// coordinates single-session-per-user ownership locally and, when Redis is
// configured, across a fleet of gateway instances.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/chirp-im/chirp/internal/adminhttp"
	"github.com/chirp-im/chirp/internal/authclient"
	"github.com/chirp-im/chirp/internal/gateway"
	"github.com/chirp-im/chirp/internal/ownership"
	"github.com/chirp-im/chirp/internal/transport"
)

func main() {
	port := flag.Int("port", 5000, "primary TCP listen port")
	flag.IntVar(port, "p", 5000, "primary TCP listen port (shorthand)")
	wsPort := flag.Int("ws_port", 0, "WebSocket listen port (default: port+1)")
	authHost := flag.String("auth_host", "", "auth service host; unset disables RPC and enables scaffolding login")
	authPort := flag.Int("auth_port", 6000, "auth service port")
	redisHost := flag.String("redis_host", "", "redis host for fleet-wide session ownership; unset keeps ownership local-only")
	redisPort := flag.Int("redis_port", 6379, "redis port")
	redisTTL := flag.Int("redis_ttl", 3600, "redis session lease TTL in seconds")
	instanceID := flag.String("instance_id", "", "identity for the redis lease; random 8-byte hex if omitted")
	adminPort := flag.Int("admin_port", 0, "admin HTTP port; 0 disables the admin surface")
	flag.Parse()

	if *wsPort == 0 {
		*wsPort = *port + 1
	}
	if *instanceID == "" {
		*instanceID = randomHex(8)
	}

	var authCli *authclient.Client
	if *authHost != "" {
		authCli = authclient.NewClient(net.JoinHostPort(*authHost, itoa(*authPort)), 3*time.Second)
		defer authCli.Stop()
	}

	gw := gateway.New(authCli, nil)

	if *redisHost != "" {
		redisMgr := ownership.NewSessionManager(
			net.JoinHostPort(*redisHost, itoa(*redisPort)),
			*instanceID,
			time.Duration(*redisTTL)*time.Second,
			gw.HandleKick,
		)
		if err := redisMgr.Start(); err != nil {
			log.Fatalf("gateway: failed to start redis session manager: %v", err)
		}
		defer redisMgr.Stop()
		gw.AttachRedis(redisMgr)
	}

	tcpLn, err := net.Listen("tcp", net.JoinHostPort("", itoa(*port)))
	if err != nil {
		log.Fatalf("gateway: failed to listen on tcp port %d: %v", *port, err)
	}
	wsLn, err := net.Listen("tcp", net.JoinHostPort("", itoa(*wsPort)))
	if err != nil {
		log.Fatalf("gateway: failed to listen on ws port %d: %v", *wsPort, err)
	}

	log.Printf("chirp-gateway starting tcp=%d ws=%d auth=%q redis=%q instance=%s",
		*port, *wsPort, *authHost, *redisHost, *instanceID)

	go acceptTCP(tcpLn, gw)
	go acceptWebSocket(wsLn, gw)

	var adminSrv *http.Server
	if *adminPort > 0 {
		router := adminhttp.NewRouter("chirp-gateway", adminhttp.Stats{
			InstanceID:        *instanceID,
			LocalSessionCount: gw.LocalSessionCount,
		})
		adminSrv = &http.Server{Addr: net.JoinHostPort("", itoa(*adminPort)), Handler: router}
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("gateway: admin http server error: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("chirp-gateway shutting down")
	tcpLn.Close()
	wsLn.Close()
	if adminSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		adminSrv.Shutdown(shutdownCtx)
	}
}

func acceptTCP(ln net.Listener, gw *gateway.Gateway) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		transport.NewTCPSession(conn, gw.OnFrame, gw.OnClose)
	}
}

func acceptWebSocket(ln net.Listener, gw *gateway.Gateway) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		go func(c net.Conn) {
			if _, err := transport.NewWebSocketSession(c, gw.OnFrame, gw.OnClose); err != nil {
				log.Printf("gateway: websocket handshake failed from %s: %v", c.RemoteAddr(), err)
			}
		}(conn)
	}
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
