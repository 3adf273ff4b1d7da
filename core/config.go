package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	// Config holds all application settings, loaded once at startup.
	Config struct {
		Env      string
		Debug    bool
		TestMode bool
		AppName  string

		SecretKey        string
		Build            string
		DefaultFromEmail mail.Address

		// CoordinatorEmails receive budget recalculation summaries.
		CoordinatorEmails []mail.Address

		SendgridApiKey string
		RollbarToken   string

		Server   ServerConfig
		Database DatabaseConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      string
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          string
		DisableTLS    bool
	}
)

func (c ServerConfig) Address() string   { return c.Host + ":" + c.Port }
func (c DatabaseConfig) Address() string { return c.Host + ":" + c.Port }

var Conf *Config

func init() {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Gyoryu")
	v.SetDefault("secretKey", "w#3r1=v&yns$t(8d!kq27-hxe9u+0procg^5mz*fjb%l4my6a_")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("coordinatorEmails", "")
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("serverHost", "")
	v.SetDefault("serverPort", "8000")
	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbName", "gyoryu")
	v.SetDefault("dbUser", "gyoryu")
	v.SetDefault("dbPassword", "")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbDisableTLS", true)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	Conf = &Config{
		Env:               env,
		Debug:             v.GetBool("debug"),
		TestMode:          env == "TEST",
		AppName:           v.GetString("appName"),
		SecretKey:         v.GetString("secretKey"),
		Build:             v.GetString("build"),
		DefaultFromEmail:  mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		CoordinatorEmails: parseAddressList(v.GetString("coordinatorEmails")),
		SendgridApiKey:    v.GetString("sendgridApiKey"),
		RollbarToken:      v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			Port:                      v.GetString("serverPort"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
	}
}

// parseAddressList parses a comma-separated email address list; invalid entries are skipped.
func parseAddressList(s string) []mail.Address {
	var addrs []mail.Address
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if addr, err := mail.ParseAddress(part); err == nil {
			addrs = append(addrs, *addr)
		}
	}
	return addrs
}
