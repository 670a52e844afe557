// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig registers defaults for every key so that a partial config.yaml still loads.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "mycolog")
	viper.SetDefault("main.datadir", "${HOME}/.local/share/mycolog")

	viper.SetDefault("storage.driver", StorageFile)
	viper.SetDefault("storage.backend", BackendBlob)
	viper.SetDefault("storage.sqlite.path", "mycolog.db")
	viper.SetDefault("storage.mysql.host", "localhost")
	viper.SetDefault("storage.mysql.port", 3306)
	viper.SetDefault("storage.mysql.username", "mycolog")
	viper.SetDefault("storage.mysql.password", "")
	viper.SetDefault("storage.mysql.database", "mycolog")

	viper.SetDefault("identify.baseurl", "https://api.mushroom-id.example.com")
	viper.SetDefault("identify.apikey", "")
	viper.SetDefault("identify.timeout", 30*time.Second)
	viper.SetDefault("identify.cachettl", 24*time.Hour)

	viper.SetDefault("geo.latitude", 0.0)
	viper.SetDefault("geo.longitude", 0.0)
	viper.SetDefault("geo.accuracy", 0.0)
	viper.SetDefault("geo.geocodeurl", "https://nominatim.openstreetmap.org/reverse")
	viper.SetDefault("geo.useragent", "mycolog/1.0")
	viper.SetDefault("geo.ratelimit", 1.0)
	viper.SetDefault("geo.cachettl", 24*time.Hour)
	viper.SetDefault("geo.timeout", 10*time.Second)

	viper.SetDefault("images.driver", ImagesFS)
	viper.SetDefault("images.dir", "images")
	viper.SetDefault("images.quality", 70)
	viper.SetDefault("images.s3.bucket", "")
	viper.SetDefault("images.s3.region", "us-east-1")
	viper.SetDefault("images.s3.endpoint", "")
	viper.SetDefault("images.s3.pathstyle", false)

	viper.SetDefault("server.listen", "127.0.0.1:8080")
	viper.SetDefault("server.debug", false)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "mycolog/collection")
	viper.SetDefault("mqtt.clientid", "mycolog")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.debug", false)

	viper.SetDefault("logging.defaultlevel", "info")
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", "info")
	viper.SetDefault("logging.fileoutput.enabled", false)
	viper.SetDefault("logging.fileoutput.path", "logs/mycolog.log")
	viper.SetDefault("logging.fileoutput.level", "info")
}
