package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kat-co/vala"
	"github.com/spf13/viper"
)

type (
	serverConfig struct {
		Host                      string
		Port                      string
		DebugHost                 string
		ReadTimeout               time.Duration
		WriteTimeout              time.Duration
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	databaseConfig struct {
		Engine        string // postgres | memory
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	redisConfig struct {
		Address  string
		Password string
		DB       int
	}

	reportCardConfig struct {
		LockTimeout time.Duration
	}

	twilioConfig struct {
		AccountSID        string
		AuthToken         string
		FromNumber        string
		StatusCallbackURL string
	}

	broadcastConfig struct {
		PhoneRegion string
		Concurrency int
	}

	googleSyncConfig struct {
		Domain   string
		Schedule string
		KeepLogs int // days
	}

	Config struct {
		AppName                   string
		Env                       string // DEV (local; default), TEST, QA, PROD
		Build                     string
		Debug                     bool
		TestMode                  bool
		SecretKey                 string
		WorkDir                   string
		FrontendBaseURL           string
		PasswordResetTimeoutDelta time.Duration
		RollbarToken              string
		SendgridAPIKey            string
		TimeZone                  *time.Location

		Server     serverConfig
		Database   databaseConfig
		Redis      redisConfig
		ReportCard reportCardConfig
		Twilio     twilioConfig
		Broadcast  broadcastConfig
		GoogleSync googleSyncConfig

		defaultFromEmail string
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

func (c *Config) ServerAddress() string {
	return net.JoinHostPort(c.Server.Host, c.Server.Port)
}

func (c *Config) InDevMode() bool { return c.Debug || c.TestMode }

func (dc databaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, dc.Port)
}

// Validate checks the values required outside of DEV & TEST.
func (c *Config) Validate() error {
	if c.InDevMode() {
		return nil
	}
	return vala.BeginValidation().Validate(
		vala.StringNotEmpty(c.SecretKey, "secretKey"),
		vala.StringNotEmpty(c.Database.Name, "db_name"),
		vala.StringNotEmpty(c.SendgridAPIKey, "sendgridApiKey"),
		vala.StringNotEmpty(c.Twilio.AccountSID, "twilio_accountSid"),
		vala.StringNotEmpty(c.Twilio.FromNumber, "twilio_fromNumber"),
		positiveDuration(c.ReportCard.LockTimeout, "reportCard_lockTimeout"),
		positiveDuration(c.Server.ShutdownTimeout, "server_shutdownTimeout"),
	).Check()
}

func positiveDuration(d time.Duration, name string) vala.Checker {
	return func() (bool, string) {
		return d > 0, fmt.Sprintf("parameter %s must be a positive duration", name)
	}
}

// NewConfig reads the configuration from the environment, optionally loaded from `config/.env.<env>`.
func NewConfig() *Config {
	conf := viper.New()
	workDir := Getwd()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("testMode", false)
	conf.SetDefault("appName", "Indysis")
	conf.SetDefault("build", "dev")
	conf.SetDefault("secretKey", "w9x0-ksr)ebq$+71=lf&aqz(x!h)#*d3(#mt4h^$ravn5eyk")
	conf.SetDefault("frontendBaseURL", "http://localhost:3000")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)
	conf.SetDefault("timeZone", "America/Toronto")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("sendgridApiKey", "")

	conf.SetDefault("server_host", "")
	conf.SetDefault("server_port", "8000")
	conf.SetDefault("server_debugHost", "localhost:4000")
	conf.SetDefault("server_readTimeout", 5*time.Second)
	conf.SetDefault("server_writeTimeout", 30*time.Second)
	conf.SetDefault("server_shutdownTimeout", 5*time.Second)
	conf.SetDefault("server_jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("server_jwtRefreshExpirationDelta", 4*time.Hour)

	conf.SetDefault("db_engine", "postgres")
	conf.SetDefault("db_host", "localhost")
	conf.SetDefault("db_port", "5432")
	conf.SetDefault("db_name", "indysis")
	conf.SetDefault("db_user", "indysis")
	conf.SetDefault("db_password", "")
	conf.SetDefault("db_adminUser", "")
	conf.SetDefault("db_adminPassword", "")
	conf.SetDefault("db_disableTLS", true)

	conf.SetDefault("redis_address", "")
	conf.SetDefault("redis_password", "")
	conf.SetDefault("redis_db", 0)

	conf.SetDefault("reportCard_lockTimeout", 300*time.Second)

	conf.SetDefault("twilio_accountSid", "")
	conf.SetDefault("twilio_authToken", "")
	conf.SetDefault("twilio_fromNumber", "")
	conf.SetDefault("twilio_statusCallbackUrl", "")

	conf.SetDefault("broadcast_phoneRegion", "CA")
	conf.SetDefault("broadcast_concurrency", 8)

	conf.SetDefault("googleSync_domain", "")
	conf.SetDefault("googleSync_schedule", "0 */4 * * *")
	conf.SetDefault("googleSync_keepLogs", 91)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	loc, err := time.LoadLocation(conf.GetString("timeZone"))
	if err != nil {
		loc = time.UTC
	}

	return &Config{
		AppName:                   conf.GetString("appName"),
		Env:                       env,
		Build:                     conf.GetString("build"),
		Debug:                     conf.GetBool("debug"),
		TestMode:                  conf.GetBool("testMode"),
		SecretKey:                 conf.GetString("secretKey"),
		WorkDir:                   workDir,
		FrontendBaseURL:           conf.GetString("frontendBaseURL"),
		PasswordResetTimeoutDelta: conf.GetDuration("passwordResetTimeoutDelta"),
		RollbarToken:              conf.GetString("rollbarToken"),
		SendgridAPIKey:            conf.GetString("sendgridApiKey"),
		TimeZone:                  loc,
		defaultFromEmail:          conf.GetString("defaultFromEmail"),
		Server: serverConfig{
			Host:                      conf.GetString("server_host"),
			Port:                      conf.GetString("server_port"),
			DebugHost:                 conf.GetString("server_debugHost"),
			ReadTimeout:               conf.GetDuration("server_readTimeout"),
			WriteTimeout:              conf.GetDuration("server_writeTimeout"),
			ShutdownTimeout:           conf.GetDuration("server_shutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("server_jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("server_jwtRefreshExpirationDelta"),
		},
		Database: databaseConfig{
			Engine:        conf.GetString("db_engine"),
			Host:          conf.GetString("db_host"),
			Port:          conf.GetString("db_port"),
			Name:          conf.GetString("db_name"),
			User:          conf.GetString("db_user"),
			Password:      conf.GetString("db_password"),
			AdminUser:     conf.GetString("db_adminUser"),
			AdminPassword: conf.GetString("db_adminPassword"),
			DisableTLS:    conf.GetBool("db_disableTLS"),
		},
		Redis: redisConfig{
			Address:  conf.GetString("redis_address"),
			Password: conf.GetString("redis_password"),
			DB:       conf.GetInt("redis_db"),
		},
		ReportCard: reportCardConfig{
			LockTimeout: conf.GetDuration("reportCard_lockTimeout"),
		},
		Twilio: twilioConfig{
			AccountSID:        conf.GetString("twilio_accountSid"),
			AuthToken:         conf.GetString("twilio_authToken"),
			FromNumber:        conf.GetString("twilio_fromNumber"),
			StatusCallbackURL: conf.GetString("twilio_statusCallbackUrl"),
		},
		Broadcast: broadcastConfig{
			PhoneRegion: conf.GetString("broadcast_phoneRegion"),
			Concurrency: conf.GetInt("broadcast_concurrency"),
		},
		GoogleSync: googleSyncConfig{
			Domain:   conf.GetString("googleSync_domain"),
			Schedule: conf.GetString("googleSync_schedule"),
			KeepLogs: conf.GetInt("googleSync_keepLogs"),
		},
	}
}
