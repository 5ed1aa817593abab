package cmd

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Ignatius32/keycloak-auth-template/internal/auth"
	"github.com/Ignatius32/keycloak-auth-template/internal/db/bunx"
	"github.com/Ignatius32/keycloak-auth-template/internal/keycloak"
	"github.com/Ignatius32/keycloak-auth-template/internal/repository"
	"github.com/Ignatius32/keycloak-auth-template/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the authentication API server",
	Long:  `Starts the HTTP server exposing the authentication and profile endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		log.Printf("Connected to database")

		profileRepo := repository.NewBunProfileRepository(db)

		idp := keycloak.NewClient(keycloak.Config{
			BaseURL:       cfg.Keycloak.BaseURL,
			Realm:         cfg.Keycloak.Realm,
			ClientID:      cfg.Keycloak.ClientID,
			ClientSecret:  cfg.Keycloak.ClientSecret,
			AdminUser:     cfg.Keycloak.AdminUser,
			AdminPassword: cfg.Keycloak.AdminPassword,
		})

		tokens := auth.NewTokenIssuer([]byte(cfg.JWT.Secret), cfg.JWT.TTL)

		r := server.NewRouter(server.RouterOptions{
			IdP:                idp,
			Profiles:           profileRepo,
			Tokens:             tokens,
			DB:                 db,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		})

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Printf("Starting server on %s (realm %s)", cfg.ServerAddr, cfg.Keycloak.Realm)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			log.Printf("Received signal %v, shutting down gracefully", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			log.Printf("Server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
