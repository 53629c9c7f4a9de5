package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"datalabel-backend/internal/auth"
	"datalabel-backend/internal/clients"
	"datalabel-backend/internal/config"
	"datalabel-backend/internal/custody"
	"datalabel-backend/internal/db"
	"datalabel-backend/internal/events"
	"datalabel-backend/internal/ledger"
	"datalabel-backend/internal/repository"
	"datalabel-backend/internal/services"

	"github.com/sirupsen/logrus"
)

// ServiceContainer wires storage, ledger access and services from configuration
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// Storage
	Store     repository.Store
	Artifacts clients.ArtifactStore
	poolStats func()

	// Ledger
	Ledger    ledger.Client
	Signer    *custody.Signer
	rpcClient *ledger.RPCClient

	// Tokens
	SessionTokens *auth.TokenIssuer
	AdminTokens   *auth.TokenIssuer

	// Core Services
	UserService       *services.UserService
	AuthService       *services.AuthService
	SubmissionService *services.SubmissionService
	SettlementService *services.SettlementService
	TaskService       *services.TaskService

	// Event Services
	NATSClient           *clients.NATSClient
	WebSocketPushService *services.WebSocketPushService
	SchedulerService     *services.SchedulerService
	MonitoringService    *services.MonitoringService

	startOnce   sync.Once
	cleanupOnce sync.Once
}

// Global service container instance
var Container *ServiceContainer
var containerOnce sync.Once

// InitializeContainer builds the global container once
func InitializeContainer(cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	var initErr error
	containerOnce.Do(func() {
		Container, initErr = NewServiceContainer(cfg, logger)
	})
	return Container, initErr
}

// NewServiceContainer builds every component. Background jobs are not started
// until Start is called.
func NewServiceContainer(cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	logger.Info("🚀 Initializing Service Container...")
	c := &ServiceContainer{Config: cfg, Logger: logger}

	if err := c.initStorage(); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := c.initLedger(); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	if err := c.initCoreServices(); err != nil {
		c.Cleanup()
		return nil, fmt.Errorf("failed to initialize core services: %w", err)
	}

	// NATS is optional: without it events only reach websocket clients
	if err := c.initEventServices(); err != nil {
		logger.WithError(err).Warn("⚠️ Event services initialization skipped or failed")
	}

	logger.Info("✅ Service Container initialized successfully")
	return c, nil
}

// initStorage task store and artifact store
func (c *ServiceContainer) initStorage() error {
	switch c.Config.Database.Driver {
	case "memory":
		c.Logger.Warn("⚠️ Using in-memory store, data is lost on restart")
		c.Store = repository.NewMemoryStore()
	default:
		conn, err := db.InitDB(c.Config.Database)
		if err != nil {
			return err
		}
		c.Store = repository.NewGormStore(conn)
		c.poolStats = func() { db.RecordPoolStats(conn) }
	}

	if c.Config.IPFS.APIURL != "" {
		c.Artifacts = clients.NewIPFSClient(c.Config.IPFS)
		c.Logger.WithField("api", c.Config.IPFS.APIURL).Info("📦 Artifacts stored on IPFS")
		return nil
	}
	dir := c.Config.IPFS.LocalDir
	if dir == "" {
		dir = "./uploads"
	}
	local, err := clients.NewLocalArtifactStore(dir)
	if err != nil {
		return err
	}
	c.Artifacts = local
	c.Logger.WithField("dir", dir).Info("📦 Artifacts stored on local disk")
	return nil
}

// initLedger ledger client and, in custody mode, the payout signer
func (c *ServiceContainer) initLedger() error {
	lc := c.Config.Ledger
	switch {
	case lc.Driver == "memory":
		c.Ledger = ledger.NewMemoryClient()
		c.Logger.Warn("⚠️ Using in-memory ledger")
	case lc.RPCURL != "":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		rpc, err := ledger.DialRPC(ctx, lc.RPCURL, time.Duration(lc.Timeout)*time.Second, lc.Commitment)
		if err != nil {
			return err
		}
		c.rpcClient = rpc
		c.Ledger = rpc
		c.Logger.WithField("rpc", lc.RPCURL).Info("✅ Ledger RPC connected")
	default:
		c.Logger.Warn("⚠️ No ledger RPC configured, balances and presigned transfers are unavailable")
	}

	if c.Config.Settlement.Mode != config.SettlementCustody {
		return nil
	}
	passphrase, err := c.Config.CustodyPassphrase()
	if err != nil {
		return err
	}
	signer, err := custody.LoadSigner(c.Config.Custody.Keystore, passphrase)
	if err != nil {
		return fmt.Errorf("load custody keystore: %w", err)
	}
	c.Signer = signer
	c.Logger.WithField("address", signer.PublicKey().String()).Info("🔑 Custody signer loaded")
	return nil
}

// initCoreServices
func (c *ServiceContainer) initCoreServices() error {
	cfg := c.Config

	c.SessionTokens = auth.NewTokenIssuer(secretOrRandom(cfg.Auth.JWTSecret, "auth.jwtSecret", c.Logger), cfg.Auth.Issuer, cfg.SessionTTL())
	c.AdminTokens = auth.NewTokenIssuer(secretOrRandom(cfg.Admin.JWTSecret, "admin.jwtSecret", c.Logger), cfg.Auth.Issuer+"-admin",
		time.Duration(cfg.Admin.TokenTTLMinutes)*time.Minute)

	challenges := auth.NewChallengeStore(cfg.NonceTTL(), cfg.Auth.Domain).WithStatement(cfg.Auth.Statement)
	c.UserService = services.NewUserService(c.Store, c.Logger)
	c.AuthService = services.NewAuthService(challenges, auth.NewEd25519Verifier(), c.SessionTokens, c.UserService, c.Logger)
	c.SubmissionService = services.NewSubmissionService(c.Store, c.Artifacts, c.Logger)

	settlement, err := services.NewSettlementService(cfg.Settlement, c.Ledger, c.Signer, c.Store, c.Logger)
	if err != nil {
		return err
	}
	c.SettlementService = settlement

	c.WebSocketPushService = services.NewWebSocketPushService(c.Logger)
	c.TaskService = services.NewTaskService(
		c.Store,
		c.UserService,
		c.SubmissionService,
		c.SettlementService,
		c.Artifacts,
		c.WebSocketPushService,
		cfg.Ledger.ProgramID,
		c.Logger,
	)
	c.SchedulerService = services.NewSchedulerService(
		c.TaskService,
		c.AuthService,
		c.Store,
		time.Duration(cfg.Settlement.ReconcileInterval)*time.Second,
		c.Logger,
	)

	c.MonitoringService = services.NewMonitoringService(c.Store, c.SettlementService, c.poolStats, cfg.Custody.MinBalanceLamports, c.Logger)

	c.Logger.WithFields(logrus.Fields{
		"settlement_mode": settlement.Mode(),
		"custody":         settlement.CustodyAddress(),
	}).Info("✅ Core Services initialized")
	return nil
}

// initEventServices NATS publishing and ledger confirmation subscription
func (c *ServiceContainer) initEventServices() error {
	if c.Config.NATS.URL == "" {
		return fmt.Errorf("NATS not configured")
	}
	client, err := clients.NewNATSClient(c.Config.NATS)
	if err != nil {
		return fmt.Errorf("failed to create NATS client: %w", err)
	}
	c.NATSClient = client

	c.TaskService.SetPublisher(events.MultiPublisher{
		c.WebSocketPushService,
		events.NewNATSPublisher(client, c.Logger),
	})
	timeout := time.Duration(c.Config.Settlement.ConfirmTimeout) * time.Second
	if err := events.SubscribeConfirmations(client, c.TaskService, timeout, c.Logger); err != nil {
		return fmt.Errorf("subscribe ledger confirmations: %w", err)
	}
	c.Logger.WithField("url", c.Config.NATS.URL).Info("📡 Event Services initialized")
	return nil
}

// Start background jobs
func (c *ServiceContainer) Start() {
	c.startOnce.Do(func() {
		c.SchedulerService.Start()
		c.MonitoringService.Start()
	})
}

// Cleanup stops background jobs and closes connections
func (c *ServiceContainer) Cleanup() {
	c.cleanupOnce.Do(func() {
		c.Logger.Info("🧹 Cleaning up Service Container...")
		if c.SchedulerService != nil {
			c.SchedulerService.Stop()
		}
		if c.MonitoringService != nil {
			c.MonitoringService.Stop()
		}
		if c.WebSocketPushService != nil {
			c.WebSocketPushService.Stop()
		}
		if c.NATSClient != nil {
			c.NATSClient.Close()
		}
		if c.rpcClient != nil {
			c.rpcClient.Close()
		}
		if closer, ok := c.Store.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				c.Logger.WithError(err).Warn("Failed to close store")
			}
		}
		c.Logger.Info("✅ Service Container cleaned up")
	})
}

// secretOrRandom falls back to a per-process secret; tokens then do not survive a restart
func secretOrRandom(secret, key string, logger *logrus.Logger) string {
	if secret != "" {
		return secret
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("read random secret: %v", err))
	}
	logger.Warnf("⚠️ %s not set, using a random secret for this process", key)
	return hex.EncodeToString(buf)
}
