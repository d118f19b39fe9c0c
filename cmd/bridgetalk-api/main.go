// README: Entry point; loads config, wires the navigation stack and serves the HTTP API until signalled.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bridgetalk/internal/ai"
	"bridgetalk/internal/config"
	httptransport "bridgetalk/internal/http"
	"bridgetalk/internal/http/handlers"
	"bridgetalk/internal/infra"
	"bridgetalk/internal/maps"
	"bridgetalk/internal/modules/agentusage"
	"bridgetalk/internal/modules/location"
	"bridgetalk/internal/modules/navigation"
	"bridgetalk/internal/speech"
	"bridgetalk/internal/stream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var verifier infra.TokenVerifier
	if cfg.Firebase.ProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, infra.FirebaseOptions{
			ProjectID:       cfg.Firebase.ProjectID,
			CredentialsFile: cfg.Firebase.CredentialsFile,
			CheckRevoked:    cfg.Firebase.CheckRevoked,
		})
		if err != nil {
			log.Fatalf("firebase init: %v", err)
		}
	} else {
		log.Printf("BT_FIREBASE_PROJECT_ID not set, API is unauthenticated")
	}

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal(err)
	}
	var db infra.Querier
	if dbPool != nil {
		defer dbPool.Close()
		db = dbPool
	}

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	if redisClient != nil {
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		defer redisClient.Close()
	}

	locationSvc := location.NewService(location.NewStore(redisClient))

	var geocoder navigation.Geocoder
	var routes navigation.RouteProvider
	if cfg.Maps.APIKey != "" {
		places, err := maps.NewPlacesService(cfg.Maps.APIKey, cfg.Maps.Language, cfg.Maps.Region)
		if err != nil {
			log.Fatalf("places init: %v", err)
		}
		routeSvc, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Language, cfg.Maps.Region, places)
		if err != nil {
			log.Fatalf("routes init: %v", err)
		}
		geocoder, routes = routeSvc, routeSvc
	} else {
		log.Printf("GOOGLE_MAPS_API_KEY not set, route requests will fail")
	}
	planner := navigation.NewPlanner(geocoder, routes, cfg.Navigation.TransitMeters)

	agent, closeAgent := newAgent(ctx, cfg)
	defer closeAgent()
	var allowance handlers.AgentAllowance
	if agent != nil && db != nil && cfg.Agent.MonthlyCalls > 0 {
		usage := agentusage.NewService(agentusage.NewStore(db), cfg.Agent.MonthlyCalls)
		agent = agentusage.Guard(agent, usage)
		allowance = usage
	}
	interpreter := navigation.NewInterpreter(agent, cfg.Agent.Timeout)

	var synth speech.Synthesizer
	if cfg.TTS.APIKey != "" || cfg.TTS.CredentialsFile != "" {
		tts, err := speech.NewGoogleTTS(ctx, speech.TTSConfig{
			APIKey:          cfg.TTS.APIKey,
			CredentialsFile: cfg.TTS.CredentialsFile,
			LanguageCode:    cfg.TTS.LanguageCode,
			VoiceName:       cfg.TTS.VoiceName,
		})
		if err != nil {
			log.Fatalf("tts init: %v", err)
		}
		synth = tts
	}

	hub := stream.NewHub(redisClient)
	defer hub.Close()

	store := navigation.NewStore(db, redisClient, time.Duration(cfg.Navigation.SnapshotTTLHours)*time.Hour)

	navSvc := navigation.NewService(navigation.SessionOptions{
		Thresholds: navigation.Thresholds{
			AnnounceMeters: cfg.Navigation.AnnounceMeters,
			AdvanceMeters:  cfg.Navigation.AdvanceMeters,
		},
		Listener: navigation.ListenerOptions{
			Lang:       cfg.Navigation.RecognitionLang,
			Interim:    cfg.Navigation.InterimResults,
			RetryDelay: cfg.Navigation.RetryDelay,
			MaxRetries: 1,
		},
		LocationTimeout: cfg.Navigation.LocationTimeout,
		FixMaxAge:       cfg.Navigation.FixMaxAge,
		PlaybackGrace:   cfg.Navigation.PlaybackGrace,
	}, navigation.ServiceDeps{
		Interpreter: interpreter,
		Planner:     planner,
		Locations:   locationSvc,
		Synth:       synth,
		Devices:     stream.Devices(hub),
		Store:       store,
		OnChange:    hub.PublishSnapshot,
	})

	handler := httptransport.NewServer(httptransport.ServerDeps{
		Navigation: navSvc,
		Hub:        hub,
		Verifier:   verifier,
		Allowance:  allowance,
	})

	server := &http.Server{Addr: cfg.HTTP.Addr, Handler: handler.Routes()}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("bridgetalk listening on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Printf("http server: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	navSvc.Shutdown(shutdownCtx)
	log.Printf("bridgetalk stopped")
}

// newAgent returns the configured conversational agent, or nil for local
// prefix matching only.
func newAgent(ctx context.Context, cfg config.Config) (ai.LLMProvider, func()) {
	switch cfg.Agent.Provider {
	case "vapi":
		if cfg.Agent.VapiURL == "" {
			log.Printf("VAPI_API_URL not set, using local destination matching")
			return nil, func() {}
		}
		return ai.NewVapiProvider(cfg.Agent.VapiURL, cfg.Agent.VapiKey, cfg.Agent.Timeout), func() {}
	case "gemini":
		if cfg.Agent.GeminiKey == "" {
			log.Printf("GEMINI_API_KEY not set, using local destination matching")
			return nil, func() {}
		}
		p, err := ai.NewGeminiProvider(ctx, cfg.Agent.GeminiKey)
		if err != nil {
			log.Fatalf("gemini init: %v", err)
		}
		return p, p.Close
	default:
		return nil, func() {}
	}
}
