package appbootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"cyberwatch-soc/api"
	"cyberwatch-soc/config"
	"cyberwatch-soc/core/auth"
	"cyberwatch-soc/core/maintenance"
	"cyberwatch-soc/core/rbac"
	"cyberwatch-soc/core/store"
	"cyberwatch-soc/core/utils"
)

type runtimeComposition struct {
	server    *api.Server
	scheduler *maintenance.Scheduler
	db        *sql.DB
}

// composeRuntime opens the database, migrates it and wires every service
// object. Nothing here is global: all wiring is explicit.
func composeRuntime(ctx context.Context, cfg *config.AppConfig, logger *utils.Logger) (*runtimeComposition, error) {
	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	users := store.NewUsersStore(db)
	sessions := store.NewSessionsStore(db)
	incidents := store.NewIncidentsStore(db, cfg.Incidents.CodePrefix)
	attachments := store.NewAttachmentsStore(db)
	audits := store.NewAuditStore(db)

	if err := seedInitialAdmin(ctx, users, cfg, logger); err != nil {
		db.Close()
		return nil, err
	}

	policy, err := rbac.NewPolicy(rbac.DefaultRoles())
	if err != nil {
		db.Close()
		return nil, err
	}
	sessionManager := auth.NewSessionManager(sessions, cfg, logger)
	authenticator := auth.NewAuthenticator(users, logger)

	server := api.NewServer(api.ServerDeps{
		Cfg:            cfg,
		Logger:         logger,
		Policy:         policy,
		Users:          users,
		Sessions:       sessions,
		Incidents:      incidents,
		Attachments:    attachments,
		Audits:         audits,
		Authenticator:  authenticator,
		SessionManager: sessionManager,
	})
	scheduler := maintenance.NewScheduler(sessions, audits, cfg, logger)

	return &runtimeComposition{server: server, scheduler: scheduler, db: db}, nil
}

// seedInitialAdmin creates the first admin account on an empty users table
// so a fresh deployment can log in.
func seedInitialAdmin(ctx context.Context, users store.UsersStore, cfg *config.AppConfig, logger *utils.Logger) error {
	n, err := users.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if cfg.Bootstrap.AdminPassword == "" {
		logger.Printf("users table is empty and no bootstrap admin password is set; skipping seed")
		return nil
	}
	hash, err := auth.HashPassword(cfg.Bootstrap.AdminPassword)
	if err != nil {
		return err
	}
	admin := &store.User{
		Email:    cfg.Bootstrap.AdminEmail,
		Password: hash,
		FullName: cfg.Bootstrap.AdminFullName,
		IsActive: true,
		Role:     rbac.RoleAdmin,
	}
	if err := users.Create(ctx, admin); err != nil {
		return fmt.Errorf("seed admin account: %w", err)
	}
	logger.Printf("seeded initial admin account %s", admin.Email)
	return nil
}
