package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	General       GeneralConfig       `toml:"general"`
	Tracker       TrackerConfig       `toml:"tracker"`
	Agent         AgentConfig         `toml:"agent"`
	Prioritizer   PrioritizerConfig   `toml:"prioritizer"`
	Watch         WatchConfig         `toml:"watch"`
	Notifications NotificationsConfig `toml:"notifications"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	RepoPath     string `toml:"repo_path"`
	HistoryDir   string `toml:"history_dir"`
	ProgressFile string `toml:"progress_file"`
}

// TrackerConfig selects and parameterizes the ticket provider
type TrackerConfig struct {
	Provider        string `toml:"provider"` // "linear" or "jira"
	Label           string `toml:"label"`
	ReviewState     string `toml:"review_state"`
	LinearTeamID    string `toml:"linear_team_id"`
	LinearProjectID string `toml:"linear_project_id"`
	JiraBaseURL     string `toml:"jira_base_url"`
	JiraUsername    string `toml:"jira_username"`
	JiraProjectKey  string `toml:"jira_project_key"`
}

// AgentConfig holds coding-agent invocation settings
type AgentConfig struct {
	Binary              string `toml:"binary"`
	Model               string `toml:"model"`
	MaxIterations       int    `toml:"max_iterations"`
	TimeoutMinutes      int    `toml:"timeout_minutes"`
	MaxRateLimitRetries int    `toml:"max_rate_limit_retries"` // 0 = unbounded
}

// PrioritizerConfig holds auxiliary-model settings
type PrioritizerConfig struct {
	Enabled        bool   `toml:"enabled"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// WatchConfig holds poll-loop settings
type WatchConfig struct {
	IntervalSeconds int    `toml:"interval_seconds"`
	WindowCron      string `toml:"window_cron"` // optional active-window schedule
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			RepoPath:     ".",
			HistoryDir:   filepath.Join(home, ".claude-issue-loop", "history"),
			ProgressFile: ".claude-progress.md",
		},
		Tracker: TrackerConfig{
			Provider:    "linear",
			Label:       "agent-ready",
			ReviewState: "In Review",
		},
		Agent: AgentConfig{
			Binary:         "claude",
			Model:          "claude-sonnet-4-20250514",
			MaxIterations:  10,
			TimeoutMinutes: 30,
		},
		Prioritizer: PrioritizerConfig{
			Enabled:        true,
			Model:          "gpt-4o-mini",
			TimeoutSeconds: 30,
		},
		Watch: WatchConfig{
			IntervalSeconds: 60,
		},
		Notifications: NotificationsConfig{
			Desktop: true,
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.General.RepoPath = ExpandPath(cfg.General.RepoPath)
	cfg.General.HistoryDir = ExpandPath(cfg.General.HistoryDir)

	return cfg, nil
}

// Validate checks settings that have no workable fallback
func (c *Config) Validate() error {
	switch c.Tracker.Provider {
	case "linear", "jira":
	default:
		return fmt.Errorf("unknown tracker provider %q (want linear or jira)", c.Tracker.Provider)
	}
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be >= 1, got %d", c.Agent.MaxIterations)
	}
	return nil
}

// AgentTimeout returns the per-invocation agent timeout
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.Agent.TimeoutMinutes) * time.Minute
}

// PrioritizerTimeout returns the auxiliary-model call timeout
func (c *Config) PrioritizerTimeout() time.Duration {
	return time.Duration(c.Prioritizer.TimeoutSeconds) * time.Second
}

// PollInterval returns the watch poll interval
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Watch.IntervalSeconds) * time.Second
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "claude-issue-loop", "config.toml")
}
