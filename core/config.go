package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres (lib/pq) | pgx
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	GradesConfig struct {
		MinValue     float64
		MaxValue     float64
		SessionTTL   time.Duration
		NotifyOnSave bool
	}

	AuthzConfig struct {
		Mode string // enforce | disabled
	}

	Config struct {
		AppName          string
		Build            string
		Env              string
		Debug            bool
		TestMode         bool
		SecretKey        string
		WorkDir          string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		RollbarToken     string
		SendgridAPIKey   string

		Server   ServerConfig
		Database DatabaseConfig
		Grades   GradesConfig
		Authz    AuthzConfig
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

// NewConfig loads config/.env.<env> (if present) and reads the environment into a Config.
// ENV selects the environment: DEV (local; default), TEST, QA, PROD.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	setDefaults(v, env)
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd, _ := os.Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		AppName:         v.GetString("app.name"),
		Build:           v.GetString("app.build"),
		Env:             env,
		Debug:           v.GetBool("debug"),
		TestMode:        v.GetBool("test.mode"),
		SecretKey:       v.GetString("secret.key"),
		WorkDir:         wd,
		FrontendBaseURL: v.GetString("frontend.base.url"),
		DefaultFromEmail: mail.Address{
			Name:    v.GetString("app.name"),
			Address: v.GetString("default.from.email"),
		},
		RollbarToken:   v.GetString("rollbar.token"),
		SendgridAPIKey: v.GetString("sendgrid.api.key"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Address:                   v.GetString("server.address"),
			DebugHost:                 v.GetString("server.debug.host"),
			ShutdownTimeout:           v.GetDuration("server.shutdown.timeout"),
			JWTExpirationDelta:        v.GetDuration("jwt.expiration.delta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwt.refresh.expiration.delta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("db.engine"),
			Host:          v.GetString("db.host"),
			Port:          v.GetString("db.port"),
			Name:          v.GetString("db.name"),
			User:          v.GetString("db.user"),
			Password:      v.GetString("db.password"),
			AdminUser:     v.GetString("db.admin.user"),
			AdminPassword: v.GetString("db.admin.password"),
			DisableTLS:    v.GetBool("db.disable.tls"),
		},
		Grades: GradesConfig{
			MinValue:     v.GetFloat64("grades.min.value"),
			MaxValue:     v.GetFloat64("grades.max.value"),
			SessionTTL:   v.GetDuration("grades.session.ttl"),
			NotifyOnSave: v.GetBool("grades.notify.on.save"),
		},
		Authz: AuthzConfig{
			Mode: v.GetString("authz.mode"),
		},
	}
}

func setDefaults(v *viper.Viper, env string) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("app.name", "MiEscuela")
	v.SetDefault("app.build", "develop")
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("test.mode", env == "TEST")
	v.SetDefault("secret.key", "k3v!b#2m9w-dqz6^r0(l@y_fh8s+t1&xpe)4n7j5oa=uic")
	v.SetDefault("frontend.base.url", "http://localhost:3000")
	v.SetDefault("default.from.email", "noreply@localhost")
	v.SetDefault("rollbar.token", "")
	v.SetDefault("sendgrid.api.key", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debug.host", ":4000")
	v.SetDefault("server.shutdown.timeout", 5*time.Second)
	v.SetDefault("jwt.expiration.delta", 7*24*time.Hour)
	v.SetDefault("jwt.refresh.expiration.delta", 4*time.Hour)

	v.SetDefault("db.engine", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", "5432")
	v.SetDefault("db.name", "miescuela")
	v.SetDefault("db.user", "miescuela")
	v.SetDefault("db.password", "miescuela")
	v.SetDefault("db.admin.user", "postgres")
	v.SetDefault("db.admin.password", "postgres")
	v.SetDefault("db.disable.tls", true)

	v.SetDefault("grades.min.value", 0.0)
	v.SetDefault("grades.max.value", 10.0)
	v.SetDefault("grades.session.ttl", 2*time.Hour)
	v.SetDefault("grades.notify.on.save", false)

	v.SetDefault("authz.mode", "enforce")
}
