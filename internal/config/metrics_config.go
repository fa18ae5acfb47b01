package config

type MetricsConfig interface {
	GetMetricsAddr() string
	MetricsEnabled() bool
}

type Metrics struct {
	Addr string `yaml:"addr" env:"METRICS_ADDR" env-description:"Prometheus listen address, empty disables the listener"`
}

var _ MetricsConfig = Metrics{}

func (m Metrics) GetMetricsAddr() string {
	return m.Addr
}

func (m Metrics) MetricsEnabled() bool {
	return m.Addr != ""
}
