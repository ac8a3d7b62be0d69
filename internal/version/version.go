package version

import "fmt"

// Значения подставляются при сборке через -ldflags "-X .../internal/version.version=...".
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Info возвращает версию, коммит и дату сборки.
func Info() (v, c, d string) { return version, commit, date }

// GetVersion возвращает версию сборки.
func GetVersion() string { return version }

// GetCommit возвращает хеш коммита сборки.
func GetCommit() string { return commit }

// GetDate возвращает дату сборки.
func GetDate() string { return date }

// String возвращает строку для логов при старте сервиса.
func String() string {
	return fmt.Sprintf("marketplace version=%s commit=%s date=%s", version, commit, date)
}
