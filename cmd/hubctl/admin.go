package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	config "github.com/phillip/volunteer-hub-go/config"
	models "github.com/phillip/volunteer-hub-go/models"
	store "github.com/phillip/volunteer-hub-go/store"
	utils "github.com/phillip/volunteer-hub-go/utils"
)

var (
	adminEmail    string
	adminPassword string
	adminName     string
)

var createAdminCmd = &cobra.Command{
	Use:   "create-admin",
	Short: "Create an admin account or promote an existing user",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withConfig(cmd, func(ctx context.Context, cfg *config.Config) error {
			created, err := ensureAdmin(ctx, cfg.Store, adminEmail, adminPassword, adminName)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "created admin %s\n", adminEmail)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "promoted %s to admin\n", adminEmail)
			}
			return nil
		})
	},
}

func init() {
	createAdminCmd.Flags().StringVar(&adminEmail, "email", "", "admin email (required)")
	createAdminCmd.Flags().StringVar(&adminPassword, "password", "", "password for a new account, at least 8 characters")
	createAdminCmd.Flags().StringVar(&adminName, "name", "Admin", "display name for a new account")
	_ = createAdminCmd.MarkFlagRequired("email")
}

// ensureAdmin promotes the user with email, or creates it when missing. created
// reports which of the two happened.
func ensureAdmin(ctx context.Context, s *store.Store, email, password, name string) (created bool, err error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false, errors.New("email is required")
	}

	existing, err := s.Users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role == models.RoleAdmin {
			return false, nil
		}
		return false, s.Users.Update(ctx, existing.ID, bson.M{"role": models.RoleAdmin})
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}

	if len(password) < 8 {
		return false, errors.New("a password of at least 8 characters is required for a new account")
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return false, err
	}
	now := time.Now().UTC()
	u := &models.User{
		ID:           primitive.NewObjectID(),
		Email:        email,
		PasswordHash: hash,
		DisplayName:  strings.TrimSpace(name),
		Role:         models.RoleAdmin,
		Skills:       []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return true, s.Users.Create(ctx, u)
}
