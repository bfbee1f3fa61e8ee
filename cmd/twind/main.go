package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/danielpatrickdp/latent-twin/go-twin/internal/config"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/logger"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/logging"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/obsfeed"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/service"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/store"
	"github.com/danielpatrickdp/latent-twin/go-twin/internal/strategy"
)

// #region main
func main() {
	configPath := flag.String("config", envOr("TWIN_CONFIG", ""), "path to yaml config (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()

	st, err := store.NewStore(cfg.DBPath, cfg.HistoryCap)
	if err != nil {
		zl.Fatal("open store", "path", cfg.DBPath, "err", err)
	}
	defer st.Close()

	svc := service.New(st, zl, cfg.Service())

	memory, err := strategy.NewMemory(st.DB())
	if err != nil {
		zl.Fatal("strategy memory", "err", err)
	}
	selector := strategy.NewSelector(memory)

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		zl.Fatal("listen", "addr", cfg.ListenAddr, "err", err)
	}

	g := grpc.NewServer(grpc.UnaryInterceptor(estimationLogInterceptor(st.DB(), svc, zl)))
	obsfeed.Register(g, obsfeed.NewServer(svc, selector, zl))

	zl.Info("twin daemon ready", "db", cfg.DBPath, "addr", cfg.ListenAddr)
	fmt.Printf("twind listening on %s (db: %s)\n", cfg.ListenAddr, cfg.DBPath)

	errCh := make(chan error, 1)
	go func() { errCh <- g.Serve(lis) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		zl.Info("shutting down", "signal", sig.String())
		g.GracefulStop()
	case err := <-errCh:
		if err != nil {
			zl.Fatal("serve", "err", err)
		}
	}
}

// #endregion main

// #region interceptor

// estimationLogInterceptor writes a provenance row for every mutating feed
// call after the handler has committed. Log failures never fail the call.
func estimationLogInterceptor(db *sql.DB, svc *service.Service, zl *logger.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err != nil {
			return resp, err
		}

		entry, ok := buildEntry(svc, req, resp)
		if !ok {
			return resp, nil
		}
		if logErr := logging.LogEstimation(db, entry); logErr != nil {
			zl.Warn("estimation log write failed", "method", info.FullMethod, "err", logErr)
		}
		return resp, nil
	}
}

// buildEntry maps a completed feed call onto an estimation_log row. Read
// paths produce no row.
func buildEntry(svc *service.Service, req, resp interface{}) (logging.EstimationEntry, bool) {
	now := time.Now().UTC()

	switch r := req.(type) {
	case *obsfeed.SubmitObservationRequest:
		out, ok := resp.(*obsfeed.SubmitObservationResponse)
		if !ok {
			return logging.EstimationEntry{}, false
		}
		decision := "commit"
		if !out.Accepted {
			decision = "reject"
		}
		obsJSON, _ := json.Marshal(r.Observation)
		detail, _ := json.Marshal(logging.CycleRecord{
			ObservationID:   r.Observation.ID,
			Source:          r.Observation.Source,
			Quality:         r.Observation.Quality,
			ObservationJSON: string(obsJSON),
			GateVetoed:      !out.Accepted,
			GateReason:      out.Reason,
			Affected:        out.Affected,
			Version:         out.Version,
			Wellbeing:       out.Wellbeing,
		})
		return logging.EstimationEntry{
			SubjectID:  r.SubjectID,
			VersionID:  currentVersionID(svc, r.SubjectID),
			Trigger:    "observation",
			Source:     r.Observation.Source,
			Decision:   decision,
			Reason:     out.Reason,
			DetailJSON: string(detail),
			CreatedAt:  now,
		}, true

	case *obsfeed.SubmitBatchRequest:
		out, ok := resp.(*obsfeed.SubmitBatchResponse)
		if !ok {
			return logging.EstimationEntry{}, false
		}
		decision := "commit"
		if out.Applied == 0 {
			decision = "no_op"
		}
		detail, _ := json.Marshal(map[string]interface{}{
			"applied":   out.Applied,
			"rejected":  out.Rejected,
			"affected":  out.Affected,
			"version":   out.Version,
			"wellbeing": out.Wellbeing,
		})
		return logging.EstimationEntry{
			SubjectID:  r.SubjectID,
			VersionID:  currentVersionID(svc, r.SubjectID),
			Trigger:    "batch",
			Decision:   decision,
			Reason:     fmt.Sprintf("applied=%d rejected=%d", out.Applied, out.Rejected),
			DetailJSON: string(detail),
			CreatedAt:  now,
		}, true

	case *obsfeed.EstimateRequest:
		out, ok := resp.(*obsfeed.EstimateResponse)
		if !ok {
			return logging.EstimationEntry{}, false
		}
		versionID := ""
		if out.State != nil {
			versionID = out.State.VersionID
		}
		return logging.EstimationEntry{
			SubjectID: r.SubjectID,
			VersionID: versionID,
			Trigger:   "estimate",
			Decision:  "commit",
			Reason:    out.Method,
			CreatedAt: now,
		}, true
	}

	return logging.EstimationEntry{}, false
}

func currentVersionID(svc *service.Service, subjectID string) string {
	t, err := svc.GetState(subjectID)
	if err != nil {
		return ""
	}
	return t.VersionID
}

// #endregion interceptor

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
