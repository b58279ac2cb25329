package discovery

import (
	"fmt"
	"os"
	"strconv"

	"github.com/aihub/vectorstore-go/internal/config"
)

// Registry 服务注册接口，进程启动时注册、退出时注销
type Registry interface {
	Register() error
	Deregister() error
}

// noopRegistry 未启用服务发现时的占位实现
type noopRegistry struct{}

func (noopRegistry) Register() error   { return nil }
func (noopRegistry) Deregister() error { return nil }

// NewRegistry 按配置的driver创建注册器
// driver为none或空时返回占位实现
func NewRegistry(cfg *config.Config) (Registry, error) {
	switch cfg.Discovery.Driver {
	case "", "none":
		return noopRegistry{}, nil
	case "consul":
		return newConsulRegistry(cfg)
	case "etcd":
		return newEtcdRegistry(cfg)
	default:
		return nil, fmt.Errorf("unknown discovery driver: %s", cfg.Discovery.Driver)
	}
}

// serviceAddress 确定对外公告的地址与端口
func serviceAddress(cfg *config.Config) (string, int) {
	hostname := os.Getenv("SERVICE_HOST")
	if hostname == "" {
		hostname = "localhost"
	}

	port := 8080
	if cfg.Server.Port != "" {
		if p, err := strconv.Atoi(cfg.Server.Port); err == nil {
			port = p
		}
	}
	return hostname, port
}
