package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/gradlink/proctor/config"
	"github.com/gradlink/proctor/internal/api/handlers"
	"github.com/gradlink/proctor/internal/api/middleware"
	"github.com/gradlink/proctor/internal/api/routes"
	"github.com/gradlink/proctor/internal/events"
	"github.com/gradlink/proctor/internal/history"
	"github.com/gradlink/proctor/internal/logger"
	"github.com/gradlink/proctor/internal/models"
	"github.com/gradlink/proctor/internal/proctor"
	"github.com/gradlink/proctor/internal/providers/facemesh"
	"github.com/gradlink/proctor/internal/providers/media"
	"github.com/gradlink/proctor/internal/providers/speech"
	"github.com/gradlink/proctor/internal/scoring"
	"github.com/gradlink/proctor/internal/scoringstub"
	"github.com/gradlink/proctor/internal/storage"
)

func main() {
	resumePath := flag.String("resume", "", "resume file to analyze for role detection")
	rolesFlag := flag.String("roles", "", "comma separated roles (skips resume analysis)")
	useStub := flag.Bool("stub", false, "run the in-process scoring stub instead of SCORING_BASE_URL")
	outDir := flag.String("out", ".", "directory for the report and answer bundle")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("config error: %v", err)
	}

	log := logger.New()

	// Scoring backend: external service, or the bundled stub on a loopback port.
	baseURL := cfg.Scoring.BaseURL
	if *useStub {
		stub := scoringstub.New(log)
		ln, lerr := net.Listen("tcp", "127.0.0.1:0")
		if lerr != nil {
			log.Fatalf("stub listen error: %v", lerr)
		}
		srv := &http.Server{Handler: stub.Router()}
		go func() {
			if serr := srv.Serve(ln); serr != nil && serr != http.ErrServerClosed {
				log.Errorf("stub server: %v", serr)
			}
		}()
		defer srv.Close()
		baseURL = "http://" + ln.Addr().String()
		log.WithField("base_url", baseURL).Info("scoring stub started")
	}

	client := scoring.NewClient(baseURL, cfg.Scoring.Timeout, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event sinks: structured log always, fan-out bus for the monitor
	// websocket, Redis pub/sub when configured.
	bus := events.NewBus()
	sinks := events.Multi{&events.LogSink{Logger: log}, bus}
	if cfg.Redis.Addr != "" {
		rdb, rerr := config.NewRedisClient(ctx, cfg.Redis.Addr)
		if rerr != nil {
			log.Fatalf("redis init error: %v", rerr)
		}
		defer rdb.Close()
		sinks = append(sinks, &events.RedisSink{Client: rdb, Logger: log})
		log.Info("redis event sink connected")
	}

	// Local attempt history.
	var store history.Store
	if cfg.History.Path != "" {
		db, derr := config.OpenHistoryDB(cfg.History.Path)
		if derr != nil {
			log.Fatalf("history init error: %v", derr)
		}
		store, derr = history.NewStore(db)
		if derr != nil {
			log.Fatalf("history migrate error: %v", derr)
		}
	}

	// Simulated capture devices; the candidate looks at the screen and the
	// microphone produces a steady tone with a small recorded payload.
	devices := media.NewSimDevices()
	engine := facemesh.NewScripted()
	engine.SetResultFn(facemesh.LookingFace)

	synth := buildSynthesizer(ctx, cfg.Speech, log)
	defer synth.Close()

	ctrl, err := proctor.New(cfg.Proctor, proctor.Deps{
		Client:  client,
		Devices: devices,
		Engine:  engine,
		Synth:   synth,
		Sink:    sinks,
		Logger:  log,
	})
	if err != nil {
		log.Fatalf("engine init error: %v", err)
	}
	defer ctrl.Close()

	if cfg.Monitor.Enabled {
		go runMonitor(cfg.Monitor, log, ctrl, store, bus)
	}

	roles, err := resolveRoles(ctx, client, *resumePath, *rolesFlag)
	if err != nil {
		log.Fatalf("role detection error: %v", err)
	}

	startedAt := time.Now().UTC()
	if err := ctrl.StartInterview(ctx, roles); err != nil {
		log.Fatalf("start error: %v", err)
	}

	select {
	case <-ctx.Done():
		log.Info("interrupted, ending session")
		endCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_ = ctrl.EndSession(endCtx)
		cancel()
	case <-ctrl.Done():
	}

	snap := ctrl.Snapshot()
	writeBundle(ctrl, *outDir, log)

	if store != nil {
		saveAttempt(store, snap, roles, startedAt, log)
	}

	if snap.Locked {
		log.Error("interview terminated by proctoring lockout")
		os.Exit(2)
	}
	log.WithFields(logrus.Fields{
		"answered":  snap.Answered,
		"questions": snap.TotalQuestions,
	}).Info("interview finished")
}

func buildSynthesizer(ctx context.Context, cfg config.SpeechConfig, log *logrus.Logger) speech.Synthesizer {
	if cfg.Provider != "google" {
		return speech.Noop{}
	}
	tts, err := speech.NewGoogleTTS(ctx, os.Stdout)
	if err != nil {
		log.Warnf("tts init failed, questions will not be read aloud: %v", err)
		return speech.Noop{}
	}
	tts.Language = cfg.Language
	tts.Voice = cfg.Voice
	return tts
}

func resolveRoles(ctx context.Context, client *scoring.Client, resumePath, rolesFlag string) ([]models.Role, error) {
	if resumePath != "" {
		f, err := os.Open(resumePath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return client.AnalyzeResume(ctx, filepath.Base(resumePath), f)
	}

	var roles []models.Role
	for _, name := range strings.Split(rolesFlag, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		roles = append(roles, models.Role{Name: name, Confidence: 1})
	}
	if len(roles) == 0 {
		roles = []models.Role{{Name: "backend engineer", Confidence: 1}}
	}
	return roles, nil
}

func runMonitor(cfg config.MonitorConfig, log *logrus.Logger, ctrl *proctor.Controller, store history.Store, bus *events.Bus) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))

	routes.RegisterRoutes(r, routes.Deps{
		Status:    handlers.NewStatusHandler(ctrl),
		Attempts:  handlers.NewAttemptsHandler(store),
		WS:        handlers.NewWSHandler(bus),
		JWTSecret: cfg.JWTSecret,
	})

	addr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	log.WithField("addr", addr).Info("monitor listening")
	if err := r.Run(addr); err != nil {
		log.Errorf("monitor server: %v", err)
	}
}

func writeBundle(ctrl *proctor.Controller, dir string, log *logrus.Logger) {
	w, err := storage.NewLocalDir(dir)
	if err != nil {
		log.Errorf("bundle dir error: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if path, werr := ctrl.DownloadReport(ctx, w); werr == nil {
		log.WithField("path", path).Info("report written")
	}
	if path, werr := ctrl.DownloadExport(ctx, w); werr == nil {
		log.WithField("path", path).Info("answer bundle written")
	}
}

func saveAttempt(store history.Store, snap proctor.Snapshot, roles []models.Role, startedAt time.Time, log *logrus.Logger) {
	a := &history.Attempt{
		ID:        uuid.NewString(),
		SessionID: snap.SessionID,
		Roles:     history.RolesJSON(roles),
		Questions: snap.TotalQuestions,
		Answered:  snap.Answered,
		Warnings:  snap.Warnings,
		Locked:    snap.Locked,
		StartedAt: startedAt,
		EndedAt:   time.Now().UTC(),
	}
	if snap.Report != nil {
		a.Score = snap.Report.TotalRawScore
		a.MaxScore = snap.Report.MaxPossible
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Save(ctx, a); err != nil {
		log.Errorf("history save error: %v", err)
		return
	}
	log.WithField("attempt_id", a.ID).Info("attempt recorded")
}
