package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pion/webrtc/v4"
)

type Config struct {
	Debug      bool   `env:"DEBUG" envDefault:"false"`
	Port       string `env:"PORT" envDefault:"3000"`
	MetricPort string `env:"METRIC_PORT" envDefault:"9090"`
	Domain     string `env:"DOMAIN" envDefault:"http://localhost:3000"`
	JWTSecret  string `env:"JWT_SECRET,required"`
	StaticDir  string `env:"STATIC_DIR" envDefault:"web"`

	// Rooms with no members older than RoomRetention are swept
	// every RoomSweepInterval.
	RoomRetention     time.Duration `env:"ROOM_RETENTION" envDefault:"30m"`
	RoomSweepInterval time.Duration `env:"ROOM_SWEEP_INTERVAL" envDefault:"5m"`

	StunServers []string `env:"STUN_SERVERS" envDefault:"stun:stun.l.google.com:19302,stun:stun1.l.google.com:19302"`

	CoturnServer CoturnConfig
	Postgres     PostgresConfig
}

type PostgresConfig struct {
	URL string `env:"POSTGRES_URL"`

	Host     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	User     string `env:"POSTGRES_USER" envDefault:"postgres"`
	Password string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	Name     string `env:"POSTGRES_NAME" envDefault:"duocall"`
	SSL      string `env:"POSTGRES_SSL" envDefault:"disable"`
}

func (p *PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}

	return fmt.Sprintf("postgresql://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Name,
		p.SSL,
	)
}

// CoturnConfig is optional. When Host is empty only the STUN list is
// handed out to clients.
type CoturnConfig struct {
	Host     string `env:"COTURN_HOST"`
	Username string `env:"COTURN_USERNAME"`
	Password string `env:"COTURN_PASSWORD"`

	// Secret is the coturn static-auth-secret used to mint
	// short-lived credentials for clients.
	Secret string `env:"COTURN_SECRET"`
}

func New() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	return &c, nil
}

// ICEServers returns the fixed server list clients negotiate through.
func (c *Config) ICEServers() []webrtc.ICEServer {
	servers := []webrtc.ICEServer{
		{URLs: c.StunServers},
	}

	if c.CoturnServer.Host != "" {
		servers = append(servers,
			webrtc.ICEServer{
				URLs:       []string{fmt.Sprintf("turn:%s?transport=udp", c.CoturnServer.Host)},
				Username:   c.CoturnServer.Username,
				Credential: c.CoturnServer.Password,
			},
			webrtc.ICEServer{
				URLs:       []string{fmt.Sprintf("turn:%s?transport=tcp", c.CoturnServer.Host)},
				Username:   c.CoturnServer.Username,
				Credential: c.CoturnServer.Password,
			},
		)
	}

	return servers
}
