// README: Demo; sends one spoken request through the configured agent and, with a Maps key, plans the route.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"bridgetalk/internal/ai"
	"bridgetalk/internal/config"
	"bridgetalk/internal/maps"
	"bridgetalk/internal/modules/navigation"
	"bridgetalk/internal/types"
)

func main() {
	phase := flag.String("phase", string(navigation.PhaseListening), "phase the transcript is heard in")
	lat := flag.Float64("lat", 40.7580, "origin latitude")
	lng := flag.Float64("lng", -73.9855, "origin longitude")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	transcript := strings.Join(flag.Args(), " ")
	if transcript == "" {
		transcript = "Take me to the Museum of Modern Art"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var agent ai.LLMProvider
	switch {
	case cfg.Agent.Provider == "gemini" && cfg.Agent.GeminiKey != "":
		provider, err := ai.NewGeminiProvider(ctx, cfg.Agent.GeminiKey)
		if err != nil {
			log.Fatalf("Failed to initialize Gemini: %v", err)
		}
		defer provider.Close()
		agent = provider
	case cfg.Agent.Provider == "vapi" && cfg.Agent.VapiURL != "":
		agent = ai.NewVapiProvider(cfg.Agent.VapiURL, cfg.Agent.VapiKey, cfg.Agent.Timeout)
	default:
		fmt.Println("No agent configured, using local matching")
	}

	origin := types.Point{Lat: *lat, Lng: *lng}
	hints := map[string]string{
		"current_time":  time.Now().Format(time.RFC3339),
		"user_location": origin.String(),
	}

	fmt.Printf("User: %s\n", transcript)
	cmd := navigation.NewInterpreter(agent, cfg.Agent.Timeout).
		Interpret(ctx, navigation.Phase(*phase), transcript, hints)

	fmt.Printf("Command: %s\n", cmd.Kind)
	if cmd.Speech != "" {
		fmt.Printf("Agent reply: %s\n", cmd.Speech)
	}
	if cmd.Audio != "" {
		fmt.Printf("Agent audio: %d bytes (base64)\n", len(cmd.Audio))
	}
	if cmd.Fallback {
		fmt.Printf("Agent failed (%v), destination from local matching\n", cmd.Err)
	}
	if cmd.Kind != navigation.CommandRoute {
		return
	}
	fmt.Printf("Destination: %s\n", cmd.Destination)

	if cfg.Maps.APIKey == "" {
		fmt.Println("GOOGLE_MAPS_API_KEY not set, skipping route")
		return
	}
	places, err := maps.NewPlacesService(cfg.Maps.APIKey, cfg.Maps.Language, cfg.Maps.Region)
	if err != nil {
		log.Fatalf("places init: %v", err)
	}
	routes, err := maps.NewRouteService(cfg.Maps.APIKey, cfg.Maps.Language, cfg.Maps.Region, places)
	if err != nil {
		log.Fatalf("routes init: %v", err)
	}
	plan, err := navigation.NewPlanner(routes, routes, cfg.Navigation.TransitMeters).
		Plan(ctx, origin, cmd.Destination)
	if err != nil {
		log.Fatalf("Plan: %v", err)
	}

	fmt.Printf("Summary: %s\n", plan.Summary)
	for i, st := range plan.Route.Steps {
		fmt.Printf("%2d. %s (%s)\n", i+1, navigation.StripHTML(st.InstructionHTML), st.DistanceText)
	}
}
