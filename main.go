package main

import (
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"collab-whiteboard/core"
	"collab-whiteboard/handlers/api/status"
	"collab-whiteboard/handlers/ws"
	"collab-whiteboard/hub"
	"collab-whiteboard/stores"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func setupRouter(h *hub.Hub, store core.Store) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Origin", "Host", "Connection"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", status.HandleHealth())
	r.Get("/api/rooms", status.HandleRooms(h))
	r.Get("/ws/{roomID}/{userID}", ws.Handler(h, store))

	return r
}

func waitForShutdown(h *hub.Hub) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-signals

	logrus.Info("Shutting down...")
	h.Shutdown()
	os.Exit(0)
}

func main() {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found")
	}

	listenAddress := flag.String("listen", ":8000", "The address to listen on.")
	logLevel := flag.String("loglevel", "info", "The log level (debug, info, warn, error).")
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	store := stores.GetStore()
	h := hub.New(store)

	r := setupRouter(h, store)

	logrus.WithField("addr", *listenAddress).Info("starting server")
	go func() {
		if err := http.ListenAndServe(*listenAddress, r); err != nil {
			logrus.WithField("event", "start server").Fatal(err)
		}
	}()

	waitForShutdown(h)
}
