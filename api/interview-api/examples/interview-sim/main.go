// Copyright (c) 2024-2025 Potential Labs
// Interview Simulator - Runs a full interview session against an embedded
// loopback agent, with synthetic capture devices. Useful for exercising the
// orchestration pipeline without real hardware or a live agent endpoint.

package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"math"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/potentialai/api/interview-api/config"
	internal_playback "github.com/potentialai/api/interview-api/internal/audio/playback"
	internal_evaluate "github.com/potentialai/api/interview-api/internal/evaluate"
	internal_interview "github.com/potentialai/api/interview-api/internal/interview"
	internal_media "github.com/potentialai/api/interview-api/internal/media"
	internal_record "github.com/potentialai/api/interview-api/internal/record"
	internal_transport "github.com/potentialai/api/interview-api/internal/transport"
	"github.com/potentialai/pkg/commons"
)

// Flags holds the simulator-only knobs; everything else comes from the
// service config (env / .env file).
type Flags struct {
	Duration  time.Duration
	WithVideo bool
	Loopback  bool
}

func main() {
	flags := parseFlags()

	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := os.MkdirAll(cfg.ArtifactDir, 0o755); err != nil {
		log.Fatalf("artifact dir: %v", err)
	}

	logger, err := commons.NewApplicationLogger(
		commons.Name(cfg.Name),
		commons.Level(cfg.LogLevel),
		commons.Path(cfg.LogPath),
	)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutting down...")
		cancel()
	}()

	agentURL := cfg.AgentUrl
	agentHeaders := map[string]string{}
	if cfg.AgentToken != "" {
		agentHeaders["Authorization"] = "Bearer " + cfg.AgentToken
	}
	if flags.Loopback {
		url, stop, err := startLoopbackAgent()
		if err != nil {
			log.Fatalf("loopback agent: %v", err)
		}
		defer stop()
		agentURL = url
		log.Printf("Loopback agent listening at %s", agentURL)
	}

	store, err := internal_record.NewSQLiteStore(logger, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	orchestrator := internal_interview.NewOrchestrator(logger, internal_interview.Config{
		AgentURL:     agentURL,
		AgentHeaders: agentHeaders,
		ArtifactDir:  cfg.ArtifactDir,
	}, internal_interview.Candidate{
		ID:             "sim-candidate",
		Name:           "Jordan Rivera",
		Headline:       "Backend engineer, distributed systems",
		Skills:         []string{"Go", "Postgres", "Kafka"},
		PotentialScore: 91,
	}, internal_interview.Job{
		Title:          "Senior Backend Engineer",
		Company:        "Potential Labs",
		PotentialMatch: 87,
	}, internal_interview.Dependencies{
		Devices:   &syntheticProvider{},
		Sink:      consoleSink{},
		Evaluator: internal_evaluate.NewHeuristicEvaluator(),
		Store:     store,
	})

	if err := orchestrator.Start(ctx, internal_media.Constraints{
		Audio:      true,
		Video:      flags.WithVideo,
		Resolution: internal_media.Res720p,
		Container:  "wav",
	}); err != nil {
		log.Fatalf("start: %v", err)
	}
	log.Printf("Interview running for %s (session %s)", flags.Duration, orchestrator.State().ID())

	select {
	case <-time.After(flags.Duration):
	case <-ctx.Done():
	}

	record, err := orchestrator.Conclude(context.Background())
	if err != nil {
		log.Fatalf("conclude: %v", err)
	}

	fmt.Printf("\nSession archived: %s\n", record.SessionId)
	fmt.Printf("  trust score:  %d (%d flags)\n", record.TrustScore, record.FlagCount)
	fmt.Printf("  clarity:      %d\n", record.ClarityScore)
	fmt.Printf("  confidence:   %d\n", record.ConfidenceScore)
	fmt.Printf("  artifact:     %s\n", record.ArtifactPath)
	fmt.Printf("  transcript:   %d turns\n", len(record.Transcript))
	for _, turn := range record.Transcript {
		fmt.Printf("    %-9s %s\n", turn.Speaker+":", turn.Text)
	}
}

func parseFlags() *Flags {
	flags := &Flags{}

	flag.DurationVar(&flags.Duration, "duration", 10*time.Second, "How long to run the session")
	flag.BoolVar(&flags.WithVideo, "video", true, "Capture synthetic video")
	flag.BoolVar(&flags.Loopback, "loopback", true, "Run against the embedded loopback agent instead of AGENT_URL")

	flag.Parse()
	return flags
}

// =============================================================================
// Synthetic capture devices
// =============================================================================

// syntheticAudio produces a 440Hz tone in 20ms frames at the capture rate.
type syntheticAudio struct {
	frames chan []float32
	stop   chan struct{}
}

func newSyntheticAudio() *syntheticAudio {
	s := &syntheticAudio{
		frames: make(chan []float32, 8),
		stop:   make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *syntheticAudio) run() {
	const frameSamples = 320 // 20ms at 16kHz
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	var phase float64
	for {
		select {
		case <-s.stop:
			close(s.frames)
			return
		case <-ticker.C:
			frame := make([]float32, frameSamples)
			for i := range frame {
				frame[i] = float32(0.2 * math.Sin(phase))
				phase += 2 * math.Pi * 440 / 16000
			}
			select {
			case s.frames <- frame:
			default:
			}
		}
	}
}

func (s *syntheticAudio) Frames() <-chan []float32 { return s.frames }

func (s *syntheticAudio) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	return nil
}

type syntheticVideo struct{}

func (syntheticVideo) Snapshot(context.Context) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 1280, 720))
	shade := uint8(time.Now().UnixMilli() % 256)
	for y := 0; y < 720; y += 4 {
		for x := 0; x < 1280; x += 4 {
			img.Set(x, y, color.RGBA{R: shade, G: 64, B: 128, A: 255})
		}
	}
	return img, nil
}

func (syntheticVideo) Close() error { return nil }

type syntheticProvider struct{}

func (p *syntheticProvider) OpenAudio(context.Context) (internal_media.AudioSource, error) {
	return newSyntheticAudio(), nil
}

func (p *syntheticProvider) OpenVideo(context.Context, internal_media.Resolution) (internal_media.VideoSource, error) {
	return syntheticVideo{}, nil
}

// consoleSink discards audio; a desktop shell would feed the speaker here.
type consoleSink struct{}

func (consoleSink) Play(*internal_playback.Handle) {}
func (consoleSink) Stop(*internal_playback.Handle) {}

// =============================================================================
// Embedded loopback agent
// =============================================================================

// startLoopbackAgent serves a minimal agent endpoint: it greets, echoes a
// canned transcription per audio burst and closes politely.
func startLoopbackAgent() (string, func(), error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", nil, err
	}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		serveLoopback(conn)
	})

	server := &http.Server{Handler: mux}
	go server.Serve(listener)

	url := fmt.Sprintf("ws://%s/live", listener.Addr().String())
	return url, func() { server.Close() }, nil
}

func serveLoopback(conn *websocket.Conn) {
	send := func(msgType internal_transport.LiveMessageType, data interface{}) {
		payload, _ := json.Marshal(data)
		raw, _ := json.Marshal(internal_transport.LiveResponse{Type: msgType, Data: payload})
		conn.WriteMessage(websocket.TextMessage, raw)
	}

	greeted := false
	audioFrames := 0
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req internal_transport.LiveRequest
		if err := json.Unmarshal(message, &req); err != nil {
			continue
		}

		switch req.Type {
		case internal_transport.LiveTypeSetup:
			if greeted {
				continue
			}
			greeted = true
			send(internal_transport.LiveTypeOutputTranscription, internal_transport.LiveTranscriptionData{
				Text: "Hello, I am Aria. Tell me about a system you have designed.",
			})
			send(internal_transport.LiveTypeAgentAudio, internal_transport.LiveAudioData{
				Payload:    tonePayload(2400),
				SampleRate: 24000,
				Channels:   1,
			})
			send(internal_transport.LiveTypeTurnComplete, nil)

		case internal_transport.LiveTypeAudio:
			audioFrames++
			// One canned exchange per ~2s of candidate audio.
			if audioFrames%100 == 0 {
				send(internal_transport.LiveTypeInputTranscription, internal_transport.LiveTranscriptionData{
					Text: "I designed a streaming ingestion pipeline with backpressure. ",
				})
				send(internal_transport.LiveTypeAgentAudio, internal_transport.LiveAudioData{
					Payload:    tonePayload(1200),
					SampleRate: 24000,
					Channels:   1,
				})
				send(internal_transport.LiveTypeOutputTranscription, internal_transport.LiveTranscriptionData{
					Text: "Interesting. What was the hardest tradeoff? ",
				})
				send(internal_transport.LiveTypeTurnComplete, nil)
			}

		case internal_transport.LiveTypeNotice:
			send(internal_transport.LiveTypeOutputTranscription, internal_transport.LiveTranscriptionData{
				Text: "I noticed a disruption on your side, let us continue. ",
			})
		}
	}
}

// tonePayload renders a 330Hz PCM16 tone of the given sample count.
func tonePayload(samples int) string {
	pcm := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(8000 * math.Sin(2*math.Pi*330*float64(i)/24000))
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return base64.StdEncoding.EncodeToString(pcm)
}
