package config

// EnvPrefix is the envconfig prefix shared by every binary.
const EnvPrefix = "virtuline"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

// Environment variable names referenced outside struct tags (tests, error messages).
const (
	EnvAppEnv   = "VIRTULINE_APP_ENV"
	EnvPort     = "VIRTULINE_APP_PORT"
	EnvDBDSN    = "VIRTULINE_DB_DSN"
	EnvDBHost   = "VIRTULINE_DB_HOST"
	EnvDBUser   = "VIRTULINE_DB_USER"
	EnvDBName   = "VIRTULINE_DB_NAME"
	EnvRedisURL = "VIRTULINE_REDIS_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
