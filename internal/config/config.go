package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/staticpress2019/e2e/internal/database"
	"github.com/staticpress2019/e2e/internal/driver"
	"github.com/staticpress2019/e2e/internal/wpoptions"
)

// EnvPrefix prefixes every environment override, e.g. STATICPRESS_BROWSER_DRIVER.
const EnvPrefix = "STATICPRESS"

// Config represents the harness configuration
type Config struct {
	Site         SiteConfig        `mapstructure:"site"`
	Browser      BrowserConfig     `mapstructure:"browser"`
	Timeouts     TimeoutConfig     `mapstructure:"timeouts"`
	Database     database.Config   `mapstructure:"database"`
	OptionsTable wpoptions.Schema  `mapstructure:"options_table"`
	StaticPress  StaticPressConfig `mapstructure:"staticpress"`
	Fixtures     FixturesConfig    `mapstructure:"fixtures"`
	Artifacts    ArtifactsConfig   `mapstructure:"artifacts"`
	Logging      LoggingConfig     `mapstructure:"logging"`
	Metrics      MetricsConfig     `mapstructure:"metrics"`
}

type SiteConfig struct {
	URL           string          `mapstructure:"url"`
	BasicAuth     BasicAuthConfig `mapstructure:"basic_auth"`
	Title         string          `mapstructure:"title"`
	AdminUser     string          `mapstructure:"admin_user"`
	AdminPassword string          `mapstructure:"admin_password"`
	AdminEmail    string          `mapstructure:"admin_email"`
	Language      string          `mapstructure:"language"`
	Plugin        string          `mapstructure:"plugin"`
}

type BasicAuthConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

type BrowserConfig struct {
	Driver         string        `mapstructure:"driver"`
	Name           string        `mapstructure:"name"`
	Headless       bool          `mapstructure:"headless"`
	SlowMo         time.Duration `mapstructure:"slow_mo"`
	ExecPath       string        `mapstructure:"exec_path"`
	RemoteURL      string        `mapstructure:"remote_url"`
	Args           []string      `mapstructure:"args"`
	ViewportWidth  int           `mapstructure:"viewport_width"`
	ViewportHeight int           `mapstructure:"viewport_height"`
	NoSandbox      bool          `mapstructure:"no_sandbox"`
	SkipInstall    bool          `mapstructure:"skip_install"`
}

type TimeoutConfig struct {
	Find      time.Duration `mapstructure:"find"`
	Settle    time.Duration `mapstructure:"settle"`
	Rebuild   time.Duration `mapstructure:"rebuild"`
	Poll      time.Duration `mapstructure:"poll"`
	Preflight time.Duration `mapstructure:"preflight"`
}

// StaticPressConfig holds the values submitted on the options form.
type StaticPressConfig struct {
	StaticURL     string `mapstructure:"static_url"`
	StaticDir     string `mapstructure:"static_dir"`
	BasicUser     string `mapstructure:"basic_user"`
	BasicPassword string `mapstructure:"basic_password"`
	Timeout       string `mapstructure:"timeout"`
}

type FixturesConfig struct {
	Path string `mapstructure:"path"`
}

type ArtifactsConfig struct {
	Dir         string `mapstructure:"dir"`
	Screenshots bool   `mapstructure:"screenshots"`
	Videos      bool   `mapstructure:"videos"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// SetDefaults registers every key, so that environment overrides reach
// Unmarshal even without a config file.
func SetDefaults(v *viper.Viper) {
	db := database.DefaultConfig()
	schema := wpoptions.DefaultSchema()
	defaults := map[string]any{
		"site.url":                      "http://localhost/",
		"site.basic_auth.user":          "authuser",
		"site.basic_auth.password":      "authpassword",
		"site.title":                    "test_title",
		"site.admin_user":               "test_user",
		"site.admin_password":           "-JfG+L.3-s!A6YmhsKGkGERc+hq&XswU",
		"site.admin_email":              "test@gmail.com",
		"site.language":                 "English (United States)",
		"site.plugin":                   "StaticPress2019",
		"browser.driver":                driver.Playwright,
		"browser.name":                  "chromium",
		"browser.headless":              true,
		"browser.slow_mo":               time.Duration(0),
		"browser.exec_path":             "",
		"browser.remote_url":            "",
		"browser.args":                  []string{},
		"browser.viewport_width":        1920,
		"browser.viewport_height":       1080,
		"browser.no_sandbox":            true,
		"browser.skip_install":          false,
		"timeouts.find":                 30 * time.Second,
		"timeouts.settle":               30 * time.Second,
		"timeouts.rebuild":              3 * time.Minute,
		"timeouts.poll":                 100 * time.Millisecond,
		"timeouts.preflight":            10 * time.Second,
		"database.host":                 db.Host,
		"database.port":                 db.Port,
		"database.user":                 db.User,
		"database.password":             db.Password,
		"database.name":                 db.Name,
		"database.params":               map[string]string{},
		"database.timeout":              db.Timeout,
		"options_table.table_prefix":    schema.TablePrefix,
		"options_table.table":           schema.Table,
		"options_table.id_column":       schema.IDColumn,
		"options_table.name_column":     schema.NameColumn,
		"options_table.value_column":    schema.ValueColumn,
		"options_table.autoload_column": schema.AutoloadColumn,
		"staticpress.static_url":        "http://example.com/sub/",
		"staticpress.static_dir":        "/tmp/static/",
		"staticpress.basic_user":        "authuser",
		"staticpress.basic_password":    "authpassword",
		"staticpress.timeout":           "10",
		"fixtures.path":                 "",
		"artifacts.dir":                 "artifacts",
		"artifacts.screenshots":         true,
		"artifacts.videos":              false,
		"logging.level":                 "info",
		"logging.format":                "text",
		"metrics.textfile":              "",
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// legacyEnv maps the plain variable names used by existing docker-compose
// setups onto config keys. The prefixed name still wins.
var legacyEnv = map[string]string{
	"site.url":         "HOST",
	"database.host":    "DATABASE_HOST",
	"browser.headless": "HEADLESS",
}

// Options controls where Load looks.
type Options struct {
	// File is an optional YAML config file. A missing file is an error only
	// when it was named explicitly.
	File string
	// EnvFile is a KEY=VALUE file preloaded into the environment without
	// overriding variables that are already set.
	EnvFile string
}

// Load merges defaults, the optional YAML file, the .env file and the
// environment, in increasing precedence.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		if err := loadDotEnv(opts.EnvFile); err != nil {
			return nil, err
		}
	}

	v := viper.New()
	SetDefaults(v)

	if opts.File != "" {
		v.SetConfigFile(opts.File)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		v.SetConfigName("staticpress-e2e")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv reads KEY=VALUE lines through viper's env codec and exports
// the ones not already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	ev := viper.New()
	ev.SetConfigFile(path)
	ev.SetConfigType("env")
	if err := ev.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	for _, key := range ev.AllKeys() {
		name := strings.ToUpper(key)
		if os.Getenv(name) != "" {
			continue
		}
		if err := os.Setenv(name, ev.GetString(key)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) normalize() {
	if c.Site.URL != "" && !strings.HasSuffix(c.Site.URL, "/") {
		c.Site.URL += "/"
	}
	c.Browser.Driver = strings.ToLower(strings.TrimSpace(c.Browser.Driver))
	c.Logging.Level = strings.ToLower(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
}

// Validate checks what would otherwise fail late, in the middle of a run.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.Site.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("site.url must be an absolute http(s) URL, got %q", c.Site.URL))
	}
	if !driver.Known(c.Browser.Driver) {
		errs = append(errs, fmt.Errorf("browser.driver %q is not one of %v", c.Browser.Driver, driver.Names()))
	}
	if c.Browser.Driver == driver.WebDriver && c.Browser.RemoteURL == "" {
		errs = append(errs, errors.New("browser.remote_url is required for the webdriver driver"))
	}
	for name, d := range map[string]time.Duration{
		"timeouts.find":    c.Timeouts.Find,
		"timeouts.settle":  c.Timeouts.Settle,
		"timeouts.rebuild": c.Timeouts.Rebuild,
		"timeouts.poll":    c.Timeouts.Poll,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	if err := c.OptionsTable.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("options_table: %w", err))
	}
	if _, err := c.ExpectedResultPath(); err != nil {
		errs = append(errs, err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// AdminURL is the wp-admin entry point of the site.
func (c *Config) AdminURL() string { return c.Site.URL + "wp-admin/" }

// ExpectedResultPath is the file a rebuild must report for the front page:
// the dump directory joined with the path of the static URL.
func (c *Config) ExpectedResultPath() (string, error) {
	u, err := url.Parse(c.StaticPress.StaticURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("staticpress.static_url must be an absolute URL, got %q", c.StaticPress.StaticURL)
	}
	dir := strings.TrimSuffix(c.StaticPress.StaticDir, "/")
	p := strings.Trim(u.Path, "/")
	if p != "" {
		p += "/"
	}
	return dir + "/" + p + "index.html", nil
}

// ExpectedOptions are the option rows a successful form submission stores.
func (c *Config) ExpectedOptions() map[string]string {
	return map[string]string{
		wpoptions.KeyStaticURL: c.StaticPress.StaticURL,
		wpoptions.KeyStaticDir: c.StaticPress.StaticDir,
		wpoptions.KeyTimeout:   c.StaticPress.Timeout,
	}
}

// DriverConfig translates the browser section for driver.Open.
func (c *Config) DriverConfig(videoDir string) driver.Config {
	return driver.Config{
		Name:           c.Browser.Driver,
		Browser:        c.Browser.Name,
		Headless:       c.Browser.Headless,
		SlowMo:         c.Browser.SlowMo,
		ExecPath:       c.Browser.ExecPath,
		RemoteURL:      c.Browser.RemoteURL,
		Args:           c.Browser.Args,
		ViewportWidth:  c.Browser.ViewportWidth,
		ViewportHeight: c.Browser.ViewportHeight,
		VideoDir:       videoDir,
		SkipInstall:    c.Browser.SkipInstall,
		NoSandbox:      c.Browser.NoSandbox,
		Username:       c.Site.BasicAuth.User,
		Password:       c.Site.BasicAuth.Password,
		DefaultTimeout: c.Timeouts.Find,
	}
}
