package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	appLog "eventdigest/internal/log"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions. Secrets may be kept out of the file and supplied through
// the environment (see ApplyEnv).

const (
	EmptyCategoryOmit        = "omit"
	EmptyCategoryPlaceholder = "placeholder"
)

// LabelsConfig lists the marker words recognized per announcement field.
type LabelsConfig struct {
	Title []string `yaml:"title" json:"title"`
	Date  []string `yaml:"date" json:"date"`
	Place []string `yaml:"place" json:"place"`
}

// SlackConfig holds the bot credentials used for reading and posting.
type SlackConfig struct {
	// Token is a bot token (xoxb-...). Prefer SLACK_BOT_TOKEN over the file.
	Token string `yaml:"token,omitempty" json:"-"`
	// PageSize is the per-request limit for history/replies pagination.
	PageSize int `yaml:"page_size" json:"page_size" validate:"gte=1,lte=1000"`
}

// EmailConfig enables an optional mailed copy of each digest.
type EmailConfig struct {
	SMTPServer string `yaml:"smtp_server" json:"smtp_server"`
	SMTPPort   int    `yaml:"smtp_port" json:"smtp_port"`
	SMTPUser   string `yaml:"smtp_user" json:"smtp_user"`
	SMTPPass   string `yaml:"smtp_pass,omitempty" json:"-"`
	FromEmail  string `yaml:"from_email" json:"from_email" validate:"omitempty,email"`
	ToEmail    string `yaml:"to_email" json:"to_email" validate:"omitempty,email"`
}

// Enabled reports whether enough SMTP settings are present to send mail.
func (e EmailConfig) Enabled() bool {
	return e.SMTPServer != "" && e.SMTPUser != "" && e.SMTPPass != "" && e.ToEmail != ""
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the preview server.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Timezone is the IANA timezone used to evaluate "now" and render dates.
	Timezone string `yaml:"timezone" json:"timezone" validate:"required"`

	// Schedule is a cron expression for repeated runs (e.g. "0 9 * * MON").
	Schedule string `yaml:"schedule" json:"schedule" validate:"required"`

	// SourceChannels are scanned in this order.
	SourceChannels []string `yaml:"source_channels" json:"source_channels" validate:"required,min=1,dive,required"`

	// DestinationChannel receives the digest. Not needed for dry runs.
	DestinationChannel string `yaml:"destination_channel" json:"destination_channel" validate:"required_unless=DryRun true"`

	// CategoryMap maps a source channel ID to a display category.
	CategoryMap map[string]string `yaml:"category_map" json:"category_map"`

	// CategoryOrder fixes the display order of categories. Categories not
	// listed are appended in first-seen order, DefaultCategory last.
	CategoryOrder []string `yaml:"category_order" json:"category_order"`

	// DefaultCategory is the catch-all label for unmapped channels.
	DefaultCategory string `yaml:"default_category" json:"default_category" validate:"required"`

	// CategoryFromChannelName uses "#channel-name" instead of
	// DefaultCategory for unmapped channels.
	CategoryFromChannelName bool `yaml:"category_from_channel_name" json:"category_from_channel_name"`

	// EmptyCategory is "omit" or "placeholder".
	EmptyCategory    string `yaml:"empty_category" json:"empty_category" validate:"oneof=omit placeholder"`
	EmptyPlaceholder string `yaml:"empty_placeholder" json:"empty_placeholder"`

	UndecidedLabel string `yaml:"undecided_label" json:"undecided_label" validate:"required"`

	// WeekdayNames are the Sunday-first abbreviations used in M/D(dow).
	WeekdayNames []string `yaml:"weekday_names" json:"weekday_names" validate:"len=7"`

	CloseReactions []string `yaml:"close_reactions" json:"close_reactions"`
	CloseKeywords  []string `yaml:"close_keywords" json:"close_keywords"`

	Labels LabelsConfig `yaml:"labels" json:"labels"`

	// HeaderTitle opens the digest; HeaderFormat is the Go time layout of
	// the evaluation date shown next to it.
	HeaderTitle  string `yaml:"header_title" json:"header_title"`
	HeaderFormat string `yaml:"header_format" json:"header_format"`
	EmptyText    string `yaml:"empty_text" json:"empty_text"`
	FooterText   string `yaml:"footer_text" json:"footer_text"`

	// DryRun logs the payload instead of posting it.
	DryRun bool `yaml:"dry_run" json:"dry_run"`

	// Listen is the HTTP listen address for preview/metrics. Empty disables it.
	Listen    string           `yaml:"listen" json:"listen"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	Slack SlackConfig  `yaml:"slack" json:"slack"`
	Email *EmailConfig `yaml:"email,omitempty" json:"email,omitempty"`

	// ICSPath, when set, receives an iCalendar file of each run's events.
	ICSPath string `yaml:"ics_path" json:"ics_path"`
}

var (
	defaultCloseReactions = []string{"no_entry", "x", "white_check_mark"}
	defaultCloseKeywords  = []string{"締切", "〆切", "クローズ", "closed", "close"}
	defaultWeekdayNames   = []string{"日", "月", "火", "水", "木", "金", "土"}
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Timezone:         "Asia/Tokyo",
		Schedule:         "0 9 * * MON",
		SourceChannels:   []string{},
		CategoryMap:      map[string]string{},
		CategoryOrder:    []string{},
		DefaultCategory:  "その他",
		EmptyCategory:    EmptyCategoryOmit,
		EmptyPlaceholder: "なし",
		UndecidedLabel:   "未定",
		WeekdayNames:     append([]string(nil), defaultWeekdayNames...),
		CloseReactions:   append([]string(nil), defaultCloseReactions...),
		CloseKeywords:    append([]string(nil), defaultCloseKeywords...),
		Labels: LabelsConfig{
			Title: []string{"イベント名", "タイトル", "Event name", "Event"},
			Date:  []string{"日時", "Date"},
			Place: []string{"場所", "Place"},
		},
		HeaderTitle:  "今週の募集中イベント",
		HeaderFormat: "2006/01/02",
		EmptyText:    "掲載可能なイベントはありませんでした。",
		FooterText:   "※ スレッド『締切』返信 or 指定リアクション付き／過去日時は掲載していません",
		Slack:        SlackConfig{PageSize: 200},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.Schedule == "" {
		c.Schedule = d.Schedule
	}
	c.SourceChannels = trimAll(c.SourceChannels)
	if c.SourceChannels == nil {
		c.SourceChannels = []string{}
	}
	if c.CategoryMap == nil {
		c.CategoryMap = map[string]string{}
	}
	if c.CategoryOrder == nil {
		c.CategoryOrder = []string{}
	}
	if c.DefaultCategory == "" {
		c.DefaultCategory = d.DefaultCategory
	}
	switch c.EmptyCategory {
	case EmptyCategoryOmit, EmptyCategoryPlaceholder:
	default:
		// Unknown value; omitting is the least surprising layout.
		c.EmptyCategory = EmptyCategoryOmit
	}
	if c.EmptyPlaceholder == "" {
		c.EmptyPlaceholder = d.EmptyPlaceholder
	}
	if c.UndecidedLabel == "" {
		c.UndecidedLabel = d.UndecidedLabel
	}
	if len(c.WeekdayNames) != 7 {
		c.WeekdayNames = d.WeekdayNames
	}
	// nil means "not configured"; an explicit empty list disables the check.
	if c.CloseReactions == nil {
		c.CloseReactions = d.CloseReactions
	}
	if c.CloseKeywords == nil {
		c.CloseKeywords = d.CloseKeywords
	}
	if len(c.Labels.Title) == 0 {
		c.Labels.Title = d.Labels.Title
	}
	if len(c.Labels.Date) == 0 {
		c.Labels.Date = d.Labels.Date
	}
	if len(c.Labels.Place) == 0 {
		c.Labels.Place = d.Labels.Place
	}
	if c.HeaderTitle == "" {
		c.HeaderTitle = d.HeaderTitle
	}
	if c.HeaderFormat == "" {
		c.HeaderFormat = d.HeaderFormat
	}
	if c.EmptyText == "" {
		c.EmptyText = d.EmptyText
	}
	if c.Slack.PageSize <= 0 {
		c.Slack.PageSize = d.Slack.PageSize
	}
	if c.Email != nil && c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Email != nil && c.Email.FromEmail == "" {
		c.Email.FromEmail = c.Email.SMTPUser
	}
}

// ApplyEnv overlays secrets and run-mode switches from the environment:
// SLACK_BOT_TOKEN, SRC_CHANNELS, DEST_CHANNEL, DRY_RUN and SMTP_PASS.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv("SLACK_BOT_TOKEN")); v != "" {
		c.Slack.Token = v
	}
	if v := strings.TrimSpace(getenv("SRC_CHANNELS")); v != "" {
		c.SourceChannels = trimAll(strings.Split(v, ","))
	}
	if v := strings.TrimSpace(getenv("DEST_CHANNEL")); v != "" {
		c.DestinationChannel = v
	}
	if v := strings.TrimSpace(getenv("DRY_RUN")); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.DryRun = b
		}
	}
	if v := getenv("SMTP_PASS"); v != "" && c.Email != nil {
		c.Email.SMTPPass = v
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the fields a run cannot do without.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s fails %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".eventdigest-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// CategoryFor returns the mapped category of a channel and whether the
// channel had an explicit mapping.
func (c *Config) CategoryFor(channel string) (string, bool) {
	if v, ok := c.CategoryMap[channel]; ok && v != "" {
		return v, true
	}
	return c.DefaultCategory, false
}

// Location resolves Timezone, falling back to time.Local when the name is
// unknown to the tz database.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

func trimAll(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
