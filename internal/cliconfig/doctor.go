package cliconfig

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/PulseLoom/PulseLoom/internal/config"
	"github.com/PulseLoom/PulseLoom/internal/provider"
	"github.com/PulseLoom/PulseLoom/internal/scheduler"
	"github.com/PulseLoom/PulseLoom/internal/store"
)

type DoctorStatus string

const (
	DoctorPass DoctorStatus = "pass"
	DoctorWarn DoctorStatus = "warn"
	DoctorFail DoctorStatus = "fail"
)

type DoctorCheck struct {
	Name    string
	Status  DoctorStatus
	Message string
}

type DoctorReport struct {
	Checks []DoctorCheck
}

type DoctorOptions struct {
	GenerateGatewayToken bool
}

func (r DoctorReport) HasFailures() bool {
	for _, c := range r.Checks {
		if c.Status == DoctorFail {
			return true
		}
	}
	return false
}

func RunDoctor() (DoctorReport, error) {
	return RunDoctorWithOptions(DoctorOptions{})
}

// RunDoctorWithOptions walks the setup from config file to providers to
// the data stores and reports one check per concern. A config that fails
// to resolve or load aborts the walk; later checks need the loaded config.
func RunDoctorWithOptions(opts DoctorOptions) (DoctorReport, error) {
	report := DoctorReport{Checks: make([]DoctorCheck, 0, 12)}
	add := func(name string, status DoctorStatus, format string, args ...any) {
		report.Checks = append(report.Checks, DoctorCheck{
			Name:    name,
			Status:  status,
			Message: fmt.Sprintf(format, args...),
		})
	}

	cfgPath, err := config.ConfigPath()
	if err != nil {
		add("config_path", DoctorFail, "cannot resolve config path: %v", err)
		return report, nil
	}

	if info, statErr := os.Stat(cfgPath); statErr != nil {
		if os.IsNotExist(statErr) {
			add("config_file", DoctorWarn, "config file not found at %s (defaults will be used)", cfgPath)
		} else {
			add("config_file", DoctorFail, "cannot access config file: %v", statErr)
		}
	} else {
		add("config_file", DoctorPass, "config file found at %s", cfgPath)
		if mode := info.Mode().Perm(); mode&0o077 != 0 {
			add("config_permissions", DoctorWarn,
				"config file is readable by other users (mode %04o); it holds API keys, run chmod 600", mode)
		} else {
			add("config_permissions", DoctorPass, "config file is private (mode %04o)", info.Mode().Perm())
		}
	}

	cfg, err := config.Load()
	if err != nil {
		add("config_load", DoctorFail, "config load failed: %v", err)
		return report, nil
	}
	add("config_load", DoctorPass, "config loaded successfully")

	if opts.GenerateGatewayToken {
		token, genErr := randomToken()
		if genErr != nil {
			add("gateway_token", DoctorFail, "failed to generate token: %v", genErr)
		} else {
			cfg.Gateway.AuthToken = token
			if saveErr := config.Save(cfg); saveErr != nil {
				add("gateway_token", DoctorFail, "generated token but failed to save config: %v", saveErr)
			} else {
				add("gateway_token", DoctorPass, "generated and saved gateway auth token")
			}
		}
	}

	if err := config.EnsureDir(cfg.Paths.DataDir); err != nil {
		add("data_dir", DoctorFail, "cannot create data dir %s: %v", cfg.Paths.DataDir, err)
	} else if probe, probeErr := os.CreateTemp(cfg.Paths.DataDir, ".doctor-*"); probeErr != nil {
		add("data_dir", DoctorFail, "data dir %s is not writable: %v", cfg.Paths.DataDir, probeErr)
	} else {
		probe.Close()
		os.Remove(probe.Name())
		add("data_dir", DoctorPass, "data dir writable: %s", cfg.Paths.DataDir)
	}

	if st, dbErr := store.New(cfg.DBPath()); dbErr != nil {
		add("database", DoctorFail, "cannot open database %s: %v", cfg.DBPath(), dbErr)
	} else {
		st.Close()
		add("database", DoctorPass, "database opens at %s", cfg.DBPath())
	}

	if _, provErr := provider.ResolveAnalysis(cfg); provErr != nil {
		add("provider_analysis", DoctorFail, "analysis provider: %v", provErr)
	} else {
		add("provider_analysis", DoctorPass, "analysis provider ready (%s)", cfg.AnalysisModel())
	}
	if _, provErr := provider.ResolveInsight(cfg); provErr != nil {
		add("provider_insight", DoctorFail, "insight provider: %v", provErr)
	} else {
		add("provider_insight", DoctorPass, "insight provider ready (%s)", cfg.InsightModel())
	}

	if cfg.RateLimit.AnalysisInterval <= 0 || cfg.RateLimit.InsightInterval <= 0 {
		add("rate_limits", DoctorWarn, "a rate-limit interval is zero; generator calls will not be spaced")
	} else {
		add("rate_limits", DoctorPass, "generator calls spaced (analysis %s, insight %s)",
			cfg.RateLimit.AnalysisInterval, cfg.RateLimit.InsightInterval)
	}

	if cfg.Ingest.Enabled {
		report.Checks = append(report.Checks, kafkaCheck(cfg.Ingest))
	} else {
		add("ingest_brokers", DoctorPass, "ingest disabled")
	}

	if cfg.Scheduler.Enabled {
		if _, cronErr := scheduler.ParseCron(cfg.Scheduler.MonthlyCron); cronErr != nil {
			add("scheduler_cron", DoctorFail, "monthly cron: %v", cronErr)
		} else if _, cronErr := scheduler.ParseCron(cfg.Scheduler.QuarterlyCron); cronErr != nil {
			add("scheduler_cron", DoctorFail, "quarterly cron: %v", cronErr)
		} else {
			add("scheduler_cron", DoctorPass, "cron expressions valid (monthly %q, quarterly %q)",
				cfg.Scheduler.MonthlyCron, cfg.Scheduler.QuarterlyCron)
		}
	} else {
		add("scheduler_cron", DoctorPass, "scheduler disabled")
	}

	if isLoopbackHost(cfg.Gateway.Host) {
		add("gateway_host", DoctorPass, "gateway bound to loopback (%s)", cfg.Gateway.Host)
	} else if strings.TrimSpace(cfg.Gateway.AuthToken) != "" {
		add("gateway_host", DoctorWarn, "gateway.host %q is reachable from the network; auth token is set", cfg.Gateway.Host)
	} else {
		add("gateway_host", DoctorFail, "gateway.host %q is reachable from the network without an auth token", cfg.Gateway.Host)
	}

	return report, nil
}

// kafkaCheck dials the first broker and looks the activity topics up in
// its metadata.
func kafkaCheck(cfg config.IngestConfig) DoctorCheck {
	broker := strings.TrimSpace(strings.Split(cfg.KafkaBrokers, ",")[0])
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return DoctorCheck{
			Name:    "ingest_brokers",
			Status:  DoctorFail,
			Message: fmt.Sprintf("cannot reach kafka broker %s: %v", broker, err),
		}
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))

	var missing []string
	for _, topic := range []string{cfg.GitHubTopic, cfg.SlackTopic} {
		if _, err := conn.ReadPartitions(topic); err != nil {
			missing = append(missing, topic)
		}
	}
	if len(missing) > 0 {
		return DoctorCheck{
			Name:    "ingest_brokers",
			Status:  DoctorWarn,
			Message: fmt.Sprintf("broker %s reachable, topics not found: %s", broker, strings.Join(missing, ", ")),
		}
	}
	return DoctorCheck{
		Name:    "ingest_brokers",
		Status:  DoctorPass,
		Message: fmt.Sprintf("broker %s reachable, activity topics present", broker),
	}
}

func isLoopbackHost(host string) bool {
	h := strings.ToLower(strings.TrimSpace(host))
	if h == "localhost" {
		return true
	}
	if ip := net.ParseIP(h); ip != nil {
		return ip.IsLoopback()
	}
	return false
}

func randomToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
