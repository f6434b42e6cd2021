package config

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "MAZADPAY"

	AppEnvDev  = "development"
	AppEnvProd = "production"

	EnvAppEnv = "MAZADPAY_APP_ENV"
	EnvDBDSN  = "MAZADPAY_DB_DSN"
	EnvDBHost = "MAZADPAY_DB_HOST"
	EnvDBUser = "MAZADPAY_DB_USER"
	EnvDBName = "MAZADPAY_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
