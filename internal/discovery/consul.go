package discovery

import (
	"fmt"

	"github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"github.com/aihub/vectorstore-go/internal/config"
	"github.com/aihub/vectorstore-go/internal/logger"
)

// consulRegistry 基于Consul的服务注册，使用HTTP健康检查
type consulRegistry struct {
	client    *api.Client
	cfg       *config.Config
	serviceID string
	logger    *zap.Logger
}

func newConsulRegistry(cfg *config.Config) (Registry, error) {
	apiCfg := api.DefaultConfig()
	if cfg.Consul.Address != "" {
		apiCfg.Address = cfg.Consul.Address
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	serviceID := cfg.Consul.ServiceID
	if serviceID == "" {
		serviceID = cfg.Consul.ServiceName + "-1"
	}

	return &consulRegistry{
		client:    client,
		cfg:       cfg,
		serviceID: serviceID,
		logger:    logger.Named("consul"),
	}, nil
}

func (r *consulRegistry) Register() error {
	hostname, port := serviceAddress(r.cfg)
	healthCheckURL := fmt.Sprintf("http://%s:%d/health", hostname, port)

	registration := &api.AgentServiceRegistration{
		ID:      r.serviceID,
		Name:    r.cfg.Consul.ServiceName,
		Tags:    []string{"api", "go", "vectorstore", r.cfg.Server.Env},
		Address: hostname,
		Port:    port,
		Check: &api.AgentServiceCheck{
			HTTP:                           healthCheckURL,
			Interval:                       "10s",
			Timeout:                        "3s",
			DeregisterCriticalServiceAfter: "30s",
		},
		Meta: map[string]string{
			"store_provider": r.cfg.Store.Provider,
			"env":            r.cfg.Server.Env,
		},
	}

	if err := r.client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	r.logger.Info("Service registered with Consul",
		zap.String("service_id", r.serviceID),
		zap.String("service_name", r.cfg.Consul.ServiceName),
		zap.String("address", hostname),
		zap.Int("port", port))

	return nil
}

func (r *consulRegistry) Deregister() error {
	if err := r.client.Agent().ServiceDeregister(r.serviceID); err != nil {
		return fmt.Errorf("failed to deregister service: %w", err)
	}

	r.logger.Info("Service deregistered from Consul",
		zap.String("service_id", r.serviceID))
	return nil
}
