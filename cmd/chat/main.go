// Command chirp-chat runs the chat service: it answers its own scaffolding
// LOGIN_REQ/LOGOUT_REQ on its listen port, persists SEND_MESSAGE_REQ into a
// bounded per-channel history (in-memory by default, optionally MySQL via
// GORM), and pushes CHAT_MESSAGE_NOTIFY to online recipients.
package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/chirp-im/chirp/internal/adminhttp"
	"github.com/chirp-im/chirp/internal/chat"
	"github.com/chirp-im/chirp/internal/rabbitmq"
	"github.com/chirp-im/chirp/internal/transport"
)

func main() {
	port := flag.Int("port", 7000, "primary TCP listen port")
	flag.IntVar(port, "p", 7000, "primary TCP listen port (shorthand)")
	mysqlDSN := flag.String("mysql_dsn", "", "MySQL DSN for the durable GORM history backend; unset uses the in-memory ring")
	rmqURL := flag.String("rmq_url", "", "RabbitMQ URL for the chat audit event bus; unset disables it")
	adminPort := flag.Int("admin_port", 0, "admin HTTP port; 0 disables the admin surface")
	flag.Parse()

	var store chat.HistoryStore
	var memStore *chat.MemoryHistoryStore
	if *mysqlDSN != "" {
		db, err := gorm.Open(mysql.Open(*mysqlDSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
		if err != nil {
			log.Fatalf("chat: failed to open mysql: %v", err)
		}
		gormStore, err := chat.NewGormHistoryStore(db)
		if err != nil {
			log.Fatalf("chat: failed to migrate history store: %v", err)
		}
		store = gormStore
		log.Printf("chat: using durable GORM history store")
	} else {
		memStore = chat.NewMemoryHistoryStore()
		store = memStore
		log.Printf("chat: using in-memory history store")
	}

	var bus *rabbitmq.ChatEventBus
	if *rmqURL != "" {
		b, err := rabbitmq.Connect(rabbitmq.DefaultConfig(*rmqURL))
		if err != nil {
			log.Fatalf("chat: failed to connect rabbitmq: %v", err)
		}
		bus = b
		defer bus.Close()
		log.Printf("chat: chat-event bus enabled at %s", *rmqURL)
	}

	svc := chat.New(store, bus)

	ln, err := net.Listen("tcp", net.JoinHostPort("", strconv.Itoa(*port)))
	if err != nil {
		log.Fatalf("chat: failed to listen on port %d: %v", *port, err)
	}
	log.Printf("chirp-chat starting tcp=%d", *port)
	go acceptTCP(ln, svc)

	var adminSrv *http.Server
	if *adminPort > 0 {
		stats := adminhttp.Stats{LocalSessionCount: svc.LocalSessionCount}
		if memStore != nil {
			stats.ChannelCount = memStore.ChannelCount
		}
		router := adminhttp.NewRouter("chirp-chat", stats)
		adminSrv = &http.Server{Addr: net.JoinHostPort("", strconv.Itoa(*adminPort)), Handler: router}
		go func() {
			if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("chat: admin http server error: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("chirp-chat shutting down")
	ln.Close()
	if adminSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		adminSrv.Shutdown(shutdownCtx)
	}
}

func acceptTCP(ln net.Listener, svc *chat.Service) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		transport.NewTCPSession(conn, svc.OnFrame, svc.OnClose)
	}
}
