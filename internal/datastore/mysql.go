package datastore

import (
	"fmt"

	"github.com/mycolog/mycolog/internal/conf"
	"github.com/mycolog/mycolog/internal/logger"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// mysqlDSN builds the go-sql-driver DSN; parseTime is required for time.Time columns.
func mysqlDSN(s *conf.MySQLSettings) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		s.Username, s.Password, s.Host, s.Port, s.Database)
}

func openMySQL(s *conf.MySQLSettings, cfg *gorm.Config, log logger.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(mysqlDSN(s)), cfg)
	if err != nil {
		log.Error("failed to open MySQL database",
			logger.String("host", s.Host),
			logger.Int("port", s.Port),
			logger.String("database", s.Database),
			logger.Error(err))
		return nil, dbError(err, "open_mysql", "host", s.Host, "database", s.Database)
	}
	return db, nil
}
