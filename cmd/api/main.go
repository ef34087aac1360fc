package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-signup-session/internal/application/account"
	"github.com/go-signup-session/internal/application/registration"
	"github.com/go-signup-session/internal/application/session"
	"github.com/go-signup-session/internal/application/tier"
	"github.com/go-signup-session/internal/config"
	"github.com/go-signup-session/internal/domain"
	"github.com/go-signup-session/internal/infrastructure/dynamo"
	"github.com/go-signup-session/internal/infrastructure/idp"
	jwtinfra "github.com/go-signup-session/internal/infrastructure/jwt"
	"github.com/go-signup-session/internal/infrastructure/memory"
	"github.com/go-signup-session/internal/infrastructure/smtp"
	"github.com/go-signup-session/internal/infrastructure/sns"
	transporthttp "github.com/go-signup-session/internal/transport/http"
	appmiddleware "github.com/go-signup-session/internal/transport/http/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

type userRepo interface {
	Create(ctx context.Context, u *domain.User) error
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

type sessionRepo interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Disable(ctx context.Context, sessionID string) error
}

type stores struct {
	users         userRepo
	sessions      sessionRepo
	registrations registration.Store
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := newStores(ctx, cfg)

	tokens, err := jwtinfra.NewProvider(cfg)
	if err != nil {
		if !cfg.IsDevelopment() {
			log.Fatalf("JWT provider not available: %v", err)
		}
		slog.Warn("JWT keys missing, using an ephemeral development key", "err", err)
		key, kerr := rsa.GenerateKey(rand.Reader, 2048)
		if kerr != nil {
			log.Fatalf("generate key: %v", kerr)
		}
		tokens = jwtinfra.NewProviderFromKey(key, &key.PublicKey, cfg.JWTExpiry)
	}

	accounts := account.NewService(st.users)
	promotions := tier.NewService(cfg.PromotionCodes)
	sessionSvc := session.NewService(session.ServiceDeps{
		SessionRepo: st.sessions,
		Accounts:    accounts,
		Verifier:    newVerifiers(cfg),
		Promotions:  promotions,
		Tokens:      tokens,
		SessionTTL:  cfg.SessionTTL,
	})
	registrationSvc := registration.NewService(registration.ServiceDeps{
		Store:       st.registrations,
		Deliverer:   newDeliverer(cfg),
		Accounts:    accounts,
		Promotions:  promotions,
		Sessions:    sessionSvc,
		CodeTTL:     cfg.Registration.CodeTTL,
		EvictAfter:  cfg.Registration.EvictAfter,
		MaxAttempts: cfg.Registration.MaxAttempts,
	})

	sweeper := registration.NewSweeper(st.registrations, cfg.Registration.SweepInterval, time.Now)
	go sweeper.Run(ctx)

	trusted, err := appmiddleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.Fatalf("TRUSTED_PROXIES: %v", err)
	}
	// 5 requests/second, burst of 10 per client IP.
	regLimiter := appmiddleware.NewRateLimiter(rate.Limit(5), 10, trusted)
	go regLimiter.Cleanup(ctx.Done())

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Registrations:       registrationSvc,
		Sessions:            sessionSvc,
		RegistrationLimiter: regLimiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	slog.Info("server stopped")
}

func newStores(ctx context.Context, cfg *config.Config) stores {
	if cfg.StoreBackend == "memory" {
		slog.Warn("using in-memory stores; data is lost on restart")
		return stores{
			users:         memory.NewUserRepo(),
			sessions:      memory.NewSessionRepo(),
			registrations: memory.NewRegistrationStore(),
		}
	}
	client, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("DynamoDB not available: %v", err)
	}
	dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
	return stores{
		users:         dynamo.NewUserRepo(client, cfg.DynamoTables.Users),
		sessions:      dynamo.NewSessionRepo(client, cfg.DynamoTables.Sessions),
		registrations: dynamo.NewRegistrationRepo(client, cfg.DynamoTables.Registrations),
	}
}

func newDeliverer(cfg *config.Config) registration.Deliverer {
	if cfg.CodeDelivery == "sns" {
		d, err := sns.NewCodeDeliverer(cfg)
		if err != nil {
			log.Fatalf("SNS delivery not available: %v", err)
		}
		return d
	}
	return smtp.NewCodeDeliverer(smtp.NewMailer(cfg), cfg.Registration.CodeTTL)
}

func newVerifiers(cfg *config.Config) *idp.Registry {
	reg := idp.NewRegistry()
	if cfg.IdentityProjectID != "" {
		v, err := idp.NewSecureTokenVerifier(cfg.IdentityProjectID, cfg.IdentityJWKSURL)
		if err != nil {
			log.Fatalf("identity token verifier: %v", err)
		}
		reg.Register(domain.ProviderPassword, v).Register(domain.ProviderCustom, v)
	} else {
		slog.Warn("IDENTITY_PROJECT_ID not set, password and custom-token exchange disabled")
	}
	if cfg.GoogleClientID != "" {
		reg.Register(domain.ProviderGoogle, idp.NewGoogleVerifier(cfg.GoogleClientID))
	}
	return reg
}
