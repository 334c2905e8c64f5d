package discovery

import (
	"fmt"
	"strings"

	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"
)

type Registration struct {
	ServiceID string
	Name      string
	Address   string
	Port      int
	Tags      []string
}

// Registrar registers this instance with a Consul agent.
type Registrar struct {
	client *consulapi.Client
	reg    Registration
	logger *zap.Logger
}

func NewRegistrar(addr string, reg Registration, logger *zap.Logger) (*Registrar, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	consulCfg := consulapi.DefaultConfig()
	consulCfg.Address = addr
	client, err := consulapi.NewClient(consulCfg)
	if err != nil {
		return nil, err
	}
	if reg.ServiceID == "" {
		reg.ServiceID = fmt.Sprintf("%s-%d", reg.Name, reg.Port)
	}
	return &Registrar{client: client, reg: reg, logger: logger}, nil
}

func (r *Registrar) checkURL() string {
	host := r.reg.Address
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d/health", strings.TrimSuffix(host, "/"), r.reg.Port)
}

// Register adds the service with an HTTP health check on /health.
func (r *Registrar) Register() error {
	svc := &consulapi.AgentServiceRegistration{
		ID:      r.reg.ServiceID,
		Name:    r.reg.Name,
		Address: r.reg.Address,
		Port:    r.reg.Port,
		Tags:    r.reg.Tags,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           r.checkURL(),
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := r.client.Agent().ServiceRegister(svc); err != nil {
		return fmt.Errorf("consul register %s: %w", r.reg.ServiceID, err)
	}
	r.logger.Info("registered with consul", zap.String("service_id", r.reg.ServiceID), zap.String("check", r.checkURL()))
	return nil
}

func (r *Registrar) Deregister() error {
	if err := r.client.Agent().ServiceDeregister(r.reg.ServiceID); err != nil {
		return fmt.Errorf("consul deregister %s: %w", r.reg.ServiceID, err)
	}
	r.logger.Info("deregistered from consul", zap.String("service_id", r.reg.ServiceID))
	return nil
}
