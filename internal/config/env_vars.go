package config

import "strings"

type EnvVars struct {
	AppName     string `yaml:"name" env:"APP_NAME" env-default:"identity-client" env-description:"application name shown in logs and the User-Agent"`
	Environment string `yaml:"env" env:"ENV" env-default:"DEV" env-description:"deployment environment"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info" env-description:"zerolog level: trace, debug, info, warn, error"`
	LogFormat   string `yaml:"log_format" env:"LOG_FORMAT" env-default:"console" env-description:"console or json"`
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return e.AppName
}

func (e EnvVars) GetEnv() string {
	if e.Environment == "" {
		return "DEV"
	}
	return strings.ToUpper(e.Environment)
}

func (e EnvVars) GetLogLevel() string {
	return strings.ToLower(e.LogLevel)
}

func (e EnvVars) GetLogFormat() string {
	if strings.EqualFold(e.LogFormat, "json") {
		return "json"
	}
	return "console"
}
