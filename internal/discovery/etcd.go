package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/aihub/vectorstore-go/internal/config"
	"github.com/aihub/vectorstore-go/internal/logger"
)

// etcdRegistry 基于etcd租约的服务注册
// key格式 /services/{serviceName}/instances/{serviceID}，租约到期自动摘除
type etcdRegistry struct {
	client     *clientv3.Client
	cfg        *config.Config
	serviceID  string
	serviceKey string
	leaseTTL   int64
	leaseID    clientv3.LeaseID
	logger     *zap.Logger
}

type etcdServiceInfo struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Address     string            `json:"address"`
	Port        int               `json:"port"`
	HealthCheck string            `json:"health_check"`
	Meta        map[string]string `json:"meta"`
}

func newEtcdRegistry(cfg *config.Config) (Registry, error) {
	endpoints := cfg.Etcd.Endpoints
	if len(endpoints) == 0 {
		endpoints = []string{"http://localhost:2379"}
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	serviceID := cfg.Etcd.ServiceID
	if serviceID == "" {
		serviceID = cfg.Etcd.ServiceName + "-1"
	}

	leaseTTL := int64(cfg.Etcd.LeaseTTL)
	if leaseTTL <= 0 {
		leaseTTL = 15
	}

	return &etcdRegistry{
		client:     client,
		cfg:        cfg,
		serviceID:  serviceID,
		serviceKey: fmt.Sprintf("/services/%s/instances/%s", cfg.Etcd.ServiceName, serviceID),
		leaseTTL:   leaseTTL,
		logger:     logger.Named("etcd"),
	}, nil
}

func (r *etcdRegistry) Register() error {
	hostname, port := serviceAddress(r.cfg)

	info := etcdServiceInfo{
		ID:          r.serviceID,
		Name:        r.cfg.Etcd.ServiceName,
		Address:     hostname,
		Port:        port,
		HealthCheck: fmt.Sprintf("http://%s:%d/health", hostname, port),
		Meta: map[string]string{
			"store_provider": r.cfg.Store.Provider,
			"env":            r.cfg.Server.Env,
		},
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal service info: %w", err)
	}

	ctx := context.Background()
	lease, err := r.client.Grant(ctx, r.leaseTTL)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}
	r.leaseID = lease.ID

	if _, err := r.client.Put(ctx, r.serviceKey, string(data), clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to register service: %w", err)
	}

	keepAlive, err := r.client.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("failed to keep lease alive: %w", err)
	}

	go func() {
		for ka := range keepAlive {
			if ka != nil {
				r.logger.Debug("Service lease kept alive",
					zap.String("service_id", r.serviceID),
					zap.Int64("lease_id", int64(ka.ID)))
			}
		}
		r.logger.Warn("etcd keep-alive channel closed",
			zap.String("service_id", r.serviceID))
	}()

	r.logger.Info("Service registered with etcd",
		zap.String("service_id", r.serviceID),
		zap.String("key", r.serviceKey),
		zap.String("address", hostname),
		zap.Int("port", port))

	return nil
}

func (r *etcdRegistry) Deregister() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if r.leaseID != 0 {
		if _, err := r.client.Revoke(ctx, r.leaseID); err != nil {
			return fmt.Errorf("failed to revoke lease: %w", err)
		}
	} else {
		if _, err := r.client.Delete(ctx, r.serviceKey); err != nil {
			return fmt.Errorf("failed to delete service key: %w", err)
		}
	}

	r.logger.Info("Service deregistered from etcd",
		zap.String("service_id", r.serviceID))
	return r.client.Close()
}
