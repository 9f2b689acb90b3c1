package config

import "time"

// Config - корневая структура конфигурации сервера
// yaml и validate теги для парсинга и валидации

type Config struct {
	Logger     LoggerConfig     `yaml:"logger" validate:"required"`
	Server     ServerConfig     `yaml:"server" validate:"required"`
	HTTP       HTTPConfig       `yaml:"http-server"`
	Storage    StorageConfig    `yaml:"storage" validate:"required"`
	Filters    FilterConfig     `yaml:"filters" validate:"required"`
	Background BackgroundConfig `yaml:"background"`
	Vacuum     VacuumConfig     `yaml:"vacuum"`
	Discovery  DiscoveryConfig  `yaml:"discovery"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// ServerConfig configures the line protocol listener.
type ServerConfig struct {
	BindAddress string `yaml:"bind_address" validate:"required"`
	TCPPort     int    `yaml:"tcp_port" validate:"required,min=1,max=65535"`
	// Workers caps the number of concurrently served connections.
	Workers int `yaml:"workers" validate:"min=1"`
}

// HTTPConfig configures the admin API. Port 0 disables it.
type HTTPConfig struct {
	Port              int           `yaml:"port" validate:"min=0,max=65535"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

type StorageConfig struct {
	DataDir string `yaml:"data_dir" validate:"required,dir"`
}

// FilterConfig holds the defaults applied to newly created filters.
type FilterConfig struct {
	InitialCapacity      uint64  `yaml:"initial_capacity" validate:"required,gt=10000"`
	DefaultProbability   float64 `yaml:"default_probability" validate:"required,gt=0,lt=0.1"`
	ScaleSize            uint64  `yaml:"scale_size" validate:"required,oneof=2 4"`
	ProbabilityReduction float64 `yaml:"probability_reduction" validate:"required,gt=0.1,lt=1"`
	InMemory             bool    `yaml:"in_memory"`
}

type BackgroundConfig struct {
	FlushInterval    time.Duration `yaml:"flush_interval"`
	ColdInterval     time.Duration `yaml:"cold_interval"`
	FlushConcurrency int           `yaml:"flush_concurrency" validate:"min=1"`
}

type VacuumConfig struct {
	// GracePeriod is how long a dropped filter stays reachable by
	// operations admitted before the drop.
	GracePeriod   time.Duration `yaml:"grace_period"`
	QueueSize     int           `yaml:"queue_size" validate:"min=1"`
	RetryInterval time.Duration `yaml:"retry_interval"`
}

// DiscoveryConfig enables ZooKeeper registration when ZKServers is set.
type DiscoveryConfig struct {
	ZKServers     []string `yaml:"zk_servers"`
	RootPath      string   `yaml:"root_path"`
	AdvertiseAddr string   `yaml:"advertise_addr"`
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "INFO",
			JSON:  false,
		},
		Server: ServerConfig{
			BindAddress: "0.0.0.0",
			TCPPort:     8673,
			Workers:     256,
		},
		HTTP: HTTPConfig{
			Port:              8674,
			ReadHeaderTimeout: time.Second,
		},
		Storage: StorageConfig{
			DataDir: "/tmp/bloomd",
		},
		Filters: FilterConfig{
			InitialCapacity:      100000,
			DefaultProbability:   1e-4,
			ScaleSize:            4,
			ProbabilityReduction: 0.9,
		},
		Background: BackgroundConfig{
			FlushInterval:    60 * time.Second,
			ColdInterval:     time.Hour,
			FlushConcurrency: 4,
		},
		Vacuum: VacuumConfig{
			GracePeriod:   250 * time.Millisecond,
			QueueSize:     1024,
			RetryInterval: time.Second,
		},
		Discovery: DiscoveryConfig{
			RootPath: "/bloomd",
		},
	}
}
