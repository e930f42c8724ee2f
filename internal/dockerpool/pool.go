package dockerpool

import (
	"errors"
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"slipway/internal/common"
	"slipway/internal/server/model"
)

// ErrNoHosts means the pool has no endpoints to hand out and environment
// discovery is disabled.
var ErrNoHosts = errors.New("no docker hosts configured")

// Pool hands out daemon clients for jobs. A job's binding to an endpoint is
// recorded on the job itself so repeated resolution, including from another
// worker process, lands on the same daemon.
type Pool struct {
	hosts  []string
	useEnv bool
	log    *zap.Logger
}

func NewPool(cfg common.Config, log *zap.Logger) *Pool {
	return &Pool{
		hosts:  cfg.DockerHosts,
		useEnv: cfg.DockerUseEnv,
		log:    log,
	}
}

// ClientFor resolves the daemon endpoint for a job and connects to it. A
// previously recorded host wins; otherwise environment discovery when
// enabled, otherwise a uniform pseudo-random pick from the pool. The pick is
// a placeholder for real load balancing, not a fairness guarantee. The
// chosen host is written back onto the job immediately; the caller persists
// it.
func (p *Pool) ClientFor(job *model.Job) (*Client, error) {
	if job.DockerClientHost != "" {
		host := p.matchHost(job.DockerClientHost)
		p.log.Debug("reusing recorded docker host",
			zap.String("job", job.Slug()), zap.String("host", host))
		return NewClient(host)
	}

	if p.useEnv {
		cli, err := NewClientFromEnv()
		if err != nil {
			return nil, err
		}
		job.DockerClientHost = cli.Host()
		return cli, nil
	}

	if len(p.hosts) == 0 {
		return nil, ErrNoHosts
	}
	host := p.hosts[rand.Intn(len(p.hosts))]
	job.DockerClientHost = host
	p.log.Debug("picked docker host",
		zap.String("job", job.Slug()), zap.String("host", host))
	return NewClient(host)
}

// matchHost maps a recorded host string back onto a configured pool entry
// by prefix, falling back to the recorded value when the pool has changed
// underneath the job.
func (p *Pool) matchHost(recorded string) string {
	for _, host := range p.hosts {
		if strings.HasPrefix(host, recorded) || strings.HasPrefix(recorded, host) {
			return host
		}
	}
	return recorded
}
