// Command provision-operators creates operator identities from a YAML file and prints a
// signed token for each. Operators cannot self-register through the API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/spec-kit/booking-service/internal/config"
	"github.com/spec-kit/booking-service/internal/observability"
	"github.com/spec-kit/booking-service/internal/persistence"
	"github.com/spec-kit/booking-service/internal/repository"
	"github.com/spec-kit/booking-service/internal/service"
)

type operatorEntry struct {
	DisplayName string `yaml:"display_name"`
	Email       string `yaml:"email"`
	PhoneNumber string `yaml:"phone_number"`
	Password    string `yaml:"password"`
}

type operatorFile struct {
	Operators []operatorEntry `yaml:"operators"`
}

func loadOperators(path string) ([]operatorEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file operatorFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(file.Operators) == 0 {
		return nil, fmt.Errorf("%s lists no operators", path)
	}
	return file.Operators, nil
}

func main() {
	path := flag.String("file", "operators.yaml", "YAML file listing operators")
	ttl := flag.Duration("ttl", 24*time.Hour, "lifetime of the issued tokens")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, "provision-operators")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	entries, err := loadOperators(*path)
	if err != nil {
		logger.Fatal("failed to read operators", zap.Error(err))
	}

	ctx := context.Background()
	if cfg.Postgres.DSN == "" {
		logger.Fatal("POSTGRES_DSN is required to provision operators")
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	pool := pg.PoolHandle()
	authService := service.NewAuthService(*cfg, service.AuthDependencies{
		IdentityRepo:     repository.NewIdentityRepository(pool),
		PractitionerRepo: repository.NewPractitionerRepository(pool),
		Logger:           logger,
	})

	failed := 0
	for _, entry := range entries {
		identity, token, expiresAt, err := authService.ProvisionOperator(ctx, service.RegisterInput{
			DisplayName: entry.DisplayName,
			Email:       entry.Email,
			PhoneNumber: entry.PhoneNumber,
			Password:    entry.Password,
		}, *ttl)
		if err != nil {
			failed++
			logger.Error("provision failed", zap.String("email", entry.Email), zap.Error(err))
			continue
		}
		fmt.Printf("%s\t%s\t%s\t%s\n", identity.Email, identity.ID, expiresAt.Format(time.RFC3339), token)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
