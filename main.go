package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clerk/clerk-sdk-go/v2"
	gorillaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cityPerksAPI/handlers"
	"cityPerksAPI/internal/activity"
	"cityPerksAPI/internal/catalog"
	"cityPerksAPI/internal/clock"
	"cityPerksAPI/internal/notification"
	"cityPerksAPI/internal/profilestore"
	"cityPerksAPI/middleware"
	"cityPerksAPI/services"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	clerkKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is required")
	}
	clerk.SetKey(clerkKey)

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		log.Fatalf("Unable to parse database config: %v", err)
	}
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	ctx := context.Background()
	dbPool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatalf("Unable to create connection pool: %v", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatalf("Unable to ping database: %v", err)
	}
	log.Println("Connected to database")

	middleware.InitPrometheus()
	services.InitMetrics()

	cat := catalog.Default()
	if err := cat.Validate(); err != nil {
		log.Fatalf("Invalid reward catalog: %v", err)
	}

	clk := clock.System{}
	store := profilestore.NewPostgres(dbPool, clk)
	oracle := activity.NewPostgresOracle(dbPool, clk)

	dispatcher := notification.NewDispatcher()
	fcm, err := notification.NewFCMProvider(dbPool, "./serviceAccountKey.json")
	if err != nil {
		log.Printf("Warning: push notifications disabled: %v", err)
	} else {
		dispatcher.SetPushProvider(fcm)
	}

	gamificationService := services.NewGamificationService(store, oracle, clk, cat, dispatcher)
	collectionService := services.NewCollectionService(gamificationService, clk, cat)
	surpriseBoxService := services.NewSurpriseBoxService(gamificationService, clk, cat, nil)
	friendService := services.NewFriendService(gamificationService, store, clk, cat, dispatcher)

	gamificationHandler := handlers.NewGamificationHandler(store, gamificationService, collectionService, surpriseBoxService)
	friendHandler := handlers.NewFriendHandler(store, friendService, store)

	go middleware.CleanupVisitors()

	router := mux.NewRouter()

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok"}`))
	}).Methods("GET")

	router.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler())).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RateLimitMiddleware)
	api.Use(middleware.ClerkAuthMiddleware)
	api.Use(middleware.MonitorMiddleware)

	api.HandleFunc("/user/gamification", gamificationHandler.GetProfile).Methods("GET")
	api.HandleFunc("/user/xp", gamificationHandler.AddXP).Methods("POST")
	api.HandleFunc("/user/checkin", gamificationHandler.Checkin).Methods("POST")
	api.HandleFunc("/user/tasks", gamificationHandler.GetTaskBoard).Methods("GET")
	api.HandleFunc("/user/tasks/{taskID}/complete", gamificationHandler.CompleteTask).Methods("POST")
	api.HandleFunc("/user/collections/{collectionID}/progress", gamificationHandler.UpdateCollection).Methods("POST")
	api.HandleFunc("/user/surprise-box/open", gamificationHandler.OpenSurpriseBox).Methods("POST")
	api.HandleFunc("/user/brand-visit", gamificationHandler.RecordBrandVisit).Methods("POST")

	api.HandleFunc("/user/friends", friendHandler.GetFriends).Methods("GET")
	api.HandleFunc("/user/friends/requests", friendHandler.SendRequest).Methods("POST")
	api.HandleFunc("/user/friends/requests/{friendID}/accept", friendHandler.AcceptRequest).Methods("PUT")
	api.HandleFunc("/user/friends/requests/{friendID}/cancel", friendHandler.CancelRequest).Methods("DELETE")
	api.HandleFunc("/user/friends/requests/{friendID}", friendHandler.RejectRequest).Methods("DELETE")
	api.HandleFunc("/user/friends/{friendID}", friendHandler.RemoveFriend).Methods("DELETE")
	api.HandleFunc("/user/leaderboard", friendHandler.Compare).Methods("GET")
	api.HandleFunc("/leaderboard/global", friendHandler.GlobalLeaderboard).Methods("GET")

	corsHandler := gorillaHandlers.CORS(
		gorillaHandlers.AllowedOrigins([]string{"*"}),
		gorillaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorillaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      corsHandler(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
