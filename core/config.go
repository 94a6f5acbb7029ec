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
	Config struct {
		Debug            bool
		TestMode         bool
		Env              string // DEV (default), TEST, QA, PROD
		Build            string
		AppName          string
		SecretKey        string
		WorkDir          string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address

		SendgridAPIKey string
		RollbarToken   string

		Server       ServerConfig
		Database     DatabaseConfig
		Redis        RedisConfig
		Stripe       StripeConfig
		Siret        SiretConfig
		Registration RegistrationConfig
	}

	ServerConfig struct {
		Host                      string
		Addr                      string
		DebugAddr                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		URI  string
		Name string
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	StripeConfig struct {
		SecretKey string
		Currency  string
	}

	SiretConfig struct {
		BaseURL string
		Token   string
		// NAF code prefixes allowed to register; 85 is the education division.
		AllowedActivityPrefixes []string
	}

	RegistrationConfig struct {
		// PaymentTimeout bounds the wait for a payment webhook before a pending
		// registration is discarded.
		PaymentTimeout      time.Duration
		VerificationCodeTTL time.Duration
	}
)

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("build", "dev")
	conf.SetDefault("appName", "Vlad")
	conf.SetDefault("secretKey", "q0krja&0w2t)-u4fhe0$xh1+&mrfk*n8-a9yl7bk9_j+^6u&3p")
	conf.SetDefault("frontendBaseURL", "http://localhost:8080")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("serverHost", "localhost")
	conf.SetDefault("serverAddr", ":8000")
	conf.SetDefault("serverDebugAddr", ":8001")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)
	conf.SetDefault("jwtExpirationDelta", time.Hour)
	conf.SetDefault("jwtRefreshExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("databaseURI", "mongodb://localhost:27017")
	conf.SetDefault("databaseName", "vlad-db")
	conf.SetDefault("redisAddr", "localhost:6379")
	conf.SetDefault("redisPassword", "")
	conf.SetDefault("redisDB", 0)
	conf.SetDefault("stripeSecretKey", "")
	conf.SetDefault("stripeCurrency", "eur")
	conf.SetDefault("siretBaseURL", "https://api.insee.fr/entreprises/sirene/V3")
	conf.SetDefault("siretToken", "")
	conf.SetDefault("siretAllowedActivityPrefixes", "85")
	conf.SetDefault("paymentTimeout", 600*time.Second)
	conf.SetDefault("verificationCodeTTL", 600*time.Second)

	env := os.Getenv("ENV")
	testMode := false
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		testMode = true
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	wd := getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Debug:            conf.GetBool("debug"),
		TestMode:         testMode,
		Env:              env,
		Build:            conf.GetString("build"),
		AppName:          conf.GetString("appName"),
		SecretKey:        conf.GetString("secretKey"),
		WorkDir:          wd,
		FrontendBaseURL:  conf.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{Name: conf.GetString("appName") + " No-Reply", Address: conf.GetString("defaultFromEmail")},
		SendgridAPIKey:   conf.GetString("sendgridApiKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                      conf.GetString("serverHost"),
			Addr:                      conf.GetString("serverAddr"),
			DebugAddr:                 conf.GetString("serverDebugAddr"),
			ShutdownTimeout:           conf.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			URI:  conf.GetString("databaseURI"),
			Name: conf.GetString("databaseName"),
		},
		Redis: RedisConfig{
			Addr:     conf.GetString("redisAddr"),
			Password: conf.GetString("redisPassword"),
			DB:       conf.GetInt("redisDB"),
		},
		Stripe: StripeConfig{
			SecretKey: conf.GetString("stripeSecretKey"),
			Currency:  conf.GetString("stripeCurrency"),
		},
		Siret: SiretConfig{
			BaseURL:                 conf.GetString("siretBaseURL"),
			Token:                   conf.GetString("siretToken"),
			AllowedActivityPrefixes: strings.Split(conf.GetString("siretAllowedActivityPrefixes"), ","),
		},
		Registration: RegistrationConfig{
			PaymentTimeout:      conf.GetDuration("paymentTimeout"),
			VerificationCodeTTL: conf.GetDuration("verificationCodeTTL"),
		},
	}
}

// getwd walks up from the current directory until it finds the project root.
// go-test changes the working directory to the package being tested; config
// lookups still need the repo root.
func getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if _, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			// deployed binary; config comes from the environment only
			return wd
		}
		currDir = newDir
	}
}
