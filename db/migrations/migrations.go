package migrations

import (
	"database/sql"
	"embed"

	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"
)

//go:embed sql/*.sql
var files embed.FS

const dir = "sql"

// Run применяет все миграции, встроенные в бинарник
func Run(db *sql.DB) error {
	goose.SetBaseFS(files)
	goose.SetLogger(gooseLogger{})

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, "failed to set dialect")
	}

	log.Info().Msg("Running migrations")
	if err := goose.Up(db, dir); err != nil {
		return errors.Wrap(err, "failed to run migrations")
	}
	return nil
}

// Version возвращает текущую версию схемы
func Version(db *sql.DB) (int64, error) {
	goose.SetBaseFS(files)
	if err := goose.SetDialect("postgres"); err != nil {
		return 0, errors.Wrap(err, "failed to set dialect")
	}
	return goose.GetDBVersion(db)
}

// Files - встроенные файлы миграций
func Files() embed.FS {
	return files
}

// gooseLogger пишет вывод goose в zerolog
type gooseLogger struct{}

func (gooseLogger) Fatalf(format string, v ...interface{}) { log.Fatal().Msgf(format, v...) }
func (gooseLogger) Printf(format string, v ...interface{}) { log.Info().Msgf(format, v...) }
