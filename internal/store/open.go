package store

import "context"

// Open returns a Postgres repository when databaseURL is set and a SQLite
// repository at sqlitePath otherwise. Migrations are applied in both cases.
func Open(ctx context.Context, databaseURL, sqlitePath string) (Repo, error) {
	if databaseURL != "" {
		r, err := OpenPostgres(ctx, databaseURL)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	r, err := OpenSQLite(ctx, sqlitePath)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Backend names the storage engine Open would select.
func Backend(databaseURL string) string {
	if databaseURL != "" {
		return "postgres"
	}
	return "sqlite"
}
